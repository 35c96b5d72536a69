package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-case-api/pkg/middleware/requestid"
)

// Audit writes one structured audit entry for every successful request
// handled by the wrapped routes.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("audit")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("resource_id", c.Param("id")),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", requestid.Value(c)),
		}
		if claims, ok := Claims(c); ok {
			fields = append(fields, zap.String("actor", claims.UserID), zap.String("role", string(claims.Role)))
		}
		logger.Info("audit", fields...)
	}
}
