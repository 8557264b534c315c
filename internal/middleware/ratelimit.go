package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimit budgets requests per authenticated principal. It must run
// after AuthMiddleware. metrics may be nil.
func RateLimit(l ratelimit.Limiter, metrics *observ.Metrics, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetPrincipalID(c).String()
		ok, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			// Limiter outages never block sending.
			logger.Warn("rate limiter failed, allowing request", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			if metrics != nil {
				metrics.RateLimited.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, slow down",
			})
			return
		}
		c.Next()
	}
}
