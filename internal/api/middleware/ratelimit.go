package middleware

import (
    "sync"
    "time"

    "github.com/gin-gonic/gin"
    "golang.org/x/time/rate"

    "github.com/d60-Lab/timeline-fanout/pkg/response"
)

type visitor struct {
    limiter  *rate.Limiter
    lastSeen time.Time
}

// RateLimiter 按用户（未认证时按 IP）限流
type RateLimiter struct {
    mu       sync.Mutex
    visitors map[string]*visitor
    rps      rate.Limit
    burst    int
    idle     time.Duration
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
    if burst <= 0 {
        burst = 1
    }
    return &RateLimiter{
        visitors: make(map[string]*visitor),
        rps:      rate.Limit(rps),
        burst:    burst,
        idle:     10 * time.Minute,
    }
}

func (l *RateLimiter) get(key string, now time.Time) *rate.Limiter {
    l.mu.Lock()
    defer l.mu.Unlock()
    v, ok := l.visitors[key]
    if !ok {
        // 顺带清理长时间不活跃的条目
        for k, old := range l.visitors {
            if now.Sub(old.lastSeen) > l.idle {
                delete(l.visitors, k)
            }
        }
        v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
        l.visitors[key] = v
    }
    v.lastSeen = now
    return v.limiter
}

// Middleware rps <= 0 时不限流
func (l *RateLimiter) Middleware() gin.HandlerFunc {
    return func(c *gin.Context) {
        if l.rps <= 0 {
            c.Next()
            return
        }
        key := ViewerID(c)
        if key == "" {
            key = "ip:" + c.ClientIP()
        }
        if !l.get(key, time.Now()).Allow() {
            response.TooManyRequests(c)
            return
        }
        c.Next()
    }
}
