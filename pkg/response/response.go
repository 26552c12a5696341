package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const CodeSuccess = 0

// Response 统一响应结构
// 失败时 Kind 为稳定的错误类型，Message 为可展示的描述，不包含内部细节
type Response struct {
	Code    int         `json:"code"`
	Kind    string      `json:"kind,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 以 HTTP 状态码作为 code
func Error(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    status,
		Kind:    kind,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "validation_error", message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "unauthorized", message)
}

func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "internal_error", "服务器内部错误")
}
