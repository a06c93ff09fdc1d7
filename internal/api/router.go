package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/tutorlink/config"
	_ "github.com/d60-Lab/tutorlink/docs"
	"github.com/d60-Lab/tutorlink/internal/api/handler"
	"github.com/d60-Lab/tutorlink/internal/api/middleware"
	"github.com/d60-Lab/tutorlink/pkg/response"
)

// NewRouter 组装中间件与路由
func NewRouter(cfg *config.Config, h *handler.Handler) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)
	response.ExposeErrors = cfg.Server.Mode == gin.DebugMode

	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Sentry(), middleware.ReportErrors())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.Logger())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if cfg.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware())
	}

	base := r.Group(cfg.Server.BasePath)
	base.GET("/health", h.Health)
	base.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	conns := base.Group("/connections")
	conns.Use(middleware.Identity(cfg.JWT.Secret))
	{
		conns.POST("", h.CreateConnection)
		conns.GET("", h.ListConnections)
		conns.GET("/:connectionId", h.GetConnection)
		conns.PUT("/:connectionId", h.UpdateConnectionStatus)
		conns.DELETE("/:connectionId", h.DeleteConnection)
	}
	return r, nil
}
