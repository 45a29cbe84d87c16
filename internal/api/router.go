package api

import (
    "net/http"

    sentrygin "github.com/getsentry/sentry-go/gin"
    "github.com/gin-contrib/gzip"
    "github.com/gin-gonic/gin"
    swaggerFiles "github.com/swaggo/files"
    ginSwagger "github.com/swaggo/gin-swagger"
    "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

    "github.com/d60-Lab/timeline-fanout/config"
    _ "github.com/d60-Lab/timeline-fanout/docs"
    "github.com/d60-Lab/timeline-fanout/internal/api/handler"
    "github.com/d60-Lab/timeline-fanout/internal/api/middleware"
)

// NewRouter 注册全部路由
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
    handler.RegisterValidators()

    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
    if cfg.Tracing.Enabled {
        r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
    }
    r.Use(middleware.Logger())

    r.GET("/healthz", func(c *gin.Context) {
        c.JSON(http.StatusOK, gin.H{"status": "ok"})
    })
    r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

    auth := middleware.Auth(cfg.JWT.Secret)
    limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

    v1 := r.Group("/api/v1")
    {
        v1.POST("/notes/create", auth, limiter.Middleware(), h.CreateNote)
        v1.POST("/notes/mutual-timeline",
            gzip.Gzip(gzip.DefaultCompression),
            auth,
            limiter.Middleware(),
            h.MutualTimeline,
        )
        // websocket 不能套 gzip
        v1.GET("/streaming", auth, limiter.Middleware(), h.Streaming)
    }
    return r
}
