package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

// Fail 以业务错误码响应；code 为客户端可识别的字符串常量
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message, Error: code})
}

func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, "INVALID_PARAM", message)
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, "CREDENTIAL_REQUIRED", message)
}

func Forbidden(c *gin.Context, code, message string) {
	Fail(c, http.StatusForbidden, code, message)
}

func TooManyRequests(c *gin.Context) {
	Fail(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "rate limit exceeded")
}

func ServiceUnavailable(c *gin.Context, message string) {
	Fail(c, http.StatusServiceUnavailable, "UNAVAILABLE", message)
}

// InternalError 记录到 gin 错误栈（sentry 中间件会上报），对外不暴露细节
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
