package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		api.POST("/accounts", h.OpenAccount)
		api.GET("/accounts/:number", h.GetAccount)

		wallet := api.Group("/ewallet", AccountMiddleware())
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/transactions", h.GetTransactions)
			wallet.POST("/deposit", h.Deposit)
			wallet.POST("/withdrawal", h.Withdrawal)
			wallet.POST("/transfer", h.Transfer)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
