package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RatePerSecond float64 // 0 表示不限流
	Burst         int
}

// RateLimiter 基于 Token Bucket 的控制面限流器，所有客户端共享一个桶。
// 串口是单一物理资源，按客户端分桶没有意义。
type RateLimiter struct {
	limiter  *rate.Limiter
	allowed  atomic.Int64
	rejected atomic.Int64
}

// RateLimiterStats 限流统计
type RateLimiterStats struct {
	AllowedTotal  int64 `json:"allowed_total"`
	RejectedTotal int64 `json:"rejected_total"`
}

// NewRateLimiter 创建限流器；RatePerSecond 不大于0时返回 nil
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RatePerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RatePerSecond * 2) // 默认突发为稳定速率的2倍
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)}
}

// Allow 非阻塞检查
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowed.Add(1)
		return true
	}
	l.rejected.Add(1)
	return false
}

// Stats 限流统计
func (l *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		AllowedTotal:  l.allowed.Load(),
		RejectedTotal: l.rejected.Load(),
	}
}

// RateLimit 限流中间件，超限返回 429
func RateLimit(l *RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.Allow() {
			c.Next()
			return
		}
		logger.Warn("api rate limited",
			zap.String("path", c.Request.URL.Path),
			zap.String("remote_addr", c.ClientIP()),
		)
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "rate_limited",
			"message": "请求过于频繁，请稍后重试",
		})
	}
}
