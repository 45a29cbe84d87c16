package middleware

import (
    "time"

    "github.com/gin-gonic/gin"
    "go.uber.org/zap"

    "github.com/d60-Lab/timeline-fanout/pkg/logger"
)

// Logger 访问日志
func Logger() gin.HandlerFunc {
    return func(c *gin.Context) {
        start := time.Now()
        c.Next()

        fields := []zap.Field{
            zap.Int("status", c.Writer.Status()),
            zap.String("method", c.Request.Method),
            zap.String("path", c.FullPath()),
            zap.Duration("latency", time.Since(start)),
            zap.String("ip", c.ClientIP()),
        }
        if v := ViewerID(c); v != "" {
            fields = append(fields, zap.String("viewer", v))
        }
        if len(c.Errors) > 0 {
            fields = append(fields, zap.String("errors", c.Errors.String()))
        }
        switch {
        case c.Writer.Status() >= 500:
            logger.Error("request", fields...)
        case c.Writer.Status() >= 400:
            logger.Warn("request", fields...)
        default:
            logger.Debug("request", fields...)
        }
    }
}
