package handler

import (
	"log"
	"strconv"
	"time"

	"ewallet/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAccountNumber 网关层完成认证后注入的账号
	HeaderAccountNumber  = "X-Account-Number"
	HeaderIdempotencyKey = "Idempotency-Key"

	ctxAccountNumber = "accountNumber"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if query := c.Request.URL.RawQuery; query != "" {
			path = path + "?" + query
		}

		c.Next()

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s | account=%s",
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetHeader(HeaderAccountNumber),
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				response.ServerError(c)
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Account-Number, Idempotency-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AccountMiddleware 读取已认证的账号，本服务不做身份校验
func AccountMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderAccountNumber)
		if raw == "" {
			response.Unauthorized(c, "缺少 "+HeaderAccountNumber)
			return
		}
		accountNumber, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || accountNumber <= 0 {
			response.Unauthorized(c, HeaderAccountNumber+" 格式错误")
			return
		}
		c.Set(ctxAccountNumber, accountNumber)
		c.Next()
	}
}

func accountNumber(c *gin.Context) int64 {
	return c.GetInt64(ctxAccountNumber)
}
