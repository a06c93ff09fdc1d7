package middleware

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// Sentry 捕获 panic 并上报到 Sentry（未初始化 Sentry 时 hub 无 client，上报为空操作）
func Sentry() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

// ReportErrors 把处理器通过 c.Error 记录的 5xx 错误上报到 Sentry
func ReportErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() < 500 || len(c.Errors) == 0 {
			return
		}
		hub := sentrygin.GetHubFromContext(c)
		if hub == nil {
			return
		}
		for _, e := range c.Errors {
			hub.CaptureException(e.Err)
		}
	}
}
