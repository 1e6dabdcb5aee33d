package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/SecretSanta/middleware/log"
	"github.com/Gopher0727/SecretSanta/utils/ratelimit"
)

// MaxConcurrencyMiddleware rejects requests with 503 while maxConcurrent are
// already being served.
func MaxConcurrencyMiddleware(maxConcurrent int) gin.HandlerFunc {
	if maxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "too many concurrent requests"})
		}
	}
}

// RemainingHeader reports the hits left in the current window.
const RemainingHeader = "X-RateLimit-Remaining"

// SetRemaining writes RemainingHeader for key. Lookup failures only drop the
// header.
func SetRemaining(c *gin.Context, limiter *ratelimit.Limiter, key string, rule ratelimit.Rule) {
	if rule.Limit <= 0 {
		return
	}
	remaining, err := limiter.Remaining(c.Request.Context(), key, rule)
	if err != nil {
		return
	}
	c.Header(RemainingHeader, strconv.Itoa(remaining))
}

// RateLimitMiddleware limits requests per key. A nil limiter disables it; an
// empty key skips the check.
func RateLimitMiddleware(limiter *ratelimit.Limiter, rule ratelimit.Rule, key func(c *gin.Context) string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if limiter == nil || k == "" {
			c.Next()
			return
		}
		allowed, err := limiter.Allow(c.Request.Context(), k, rule)
		if err != nil {
			log.ErrorContext(c.Request.Context(), "rate limiter unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter unavailable"})
			return
		}
		SetRemaining(c, limiter, k, rule)
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			return
		}
		c.Next()
	}
}
