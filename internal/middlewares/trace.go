package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

const TraceHeader = "X-Trace-ID"

// TraceMiddleware puts a trace id into the request context, taken from the
// X-Trace-ID header when present, echoes it back and logs the request.
func TraceMiddleware(log *logger.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		ctx := logger.WithTraceID(c.Request.Context(), c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, logger.GetTraceID(ctx))

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if client := c.GetString(ClientKey); client != "" {
			fields = append(fields, zap.String("client", client))
		}
		if c.Writer.Status() >= 500 {
			log.ErrorContext(ctx, "request failed", fields...)
			return
		}
		log.InfoContext(ctx, "request", fields...)
	}
}

// RecoveryMiddleware turns a panic into a 500 and logs it.
func RecoveryMiddleware(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.ErrorContext(c.Request.Context(), "handler panicked", zap.Any("panic", recovered))
		c.AbortWithStatusJSON(500, gin.H{"error": "internal error"})
	})
}
