package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type RateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:  rate.Limit(rps),
		burst: burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	return v.(*rate.Limiter)
}

func (rl *RateLimiter) reject(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       "rate limit exceeded",
		"retry_after": time.Second.String(),
	})
	c.Abort()
}

func (rl *RateLimiter) RateLimitByIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			rl.reject(c)
			return
		}
		c.Next()
	}
}

// RateLimitByAPIKey 按 API key 限流，没有 key 时按 IP
func (rl *RateLimiter) RateLimitByAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := apiKey(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.getLimiter(key).Allow() {
			rl.reject(c)
			return
		}
		c.Next()
	}
}
