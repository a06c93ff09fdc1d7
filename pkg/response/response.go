package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ExposeErrors 为 true 时 500 响应携带原始错误信息（仅 debug 模式开启）
var ExposeErrors = false

// Response 通用响应体
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success 200，fields 合并进响应体
func Success(c *gin.Context, fields gin.H) {
	c.JSON(http.StatusOK, body(true, fields))
}

// Created 201
func Created(c *gin.Context, fields gin.H) {
	c.JSON(http.StatusCreated, body(true, fields))
}

func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message, nil)
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, message, nil)
}

func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, message, nil)
}

func Conflict(c *gin.Context, message string) {
	Fail(c, http.StatusConflict, message, nil)
}

func TooManyRequests(c *gin.Context) {
	Fail(c, http.StatusTooManyRequests, "too many requests", nil)
}

// InternalError 500；原始错误只在 ExposeErrors 时返回
func InternalError(c *gin.Context, message string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	fields := gin.H{}
	if ExposeErrors && err != nil {
		fields["error"] = err.Error()
	}
	Fail(c, http.StatusInternalServerError, message, fields)
}

// Fail 以 {success:false, message} 结束请求，extra 合并进响应体
func Fail(c *gin.Context, status int, message string, extra gin.H) {
	fields := gin.H{"message": message}
	for k, v := range extra {
		fields[k] = v
	}
	c.AbortWithStatusJSON(status, body(false, fields))
}

func body(success bool, fields gin.H) gin.H {
	out := gin.H{"success": success}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
