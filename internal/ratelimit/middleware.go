package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Middleware limits requests per client IP under the given scope. When the store is unreachable
// requests are let through and the failure is logged.
func Middleware(l *Limiter, scope string, limits Limits, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := l.Check(c.Request.Context(), scope+":"+c.ClientIP(), limits)
		if err != nil {
			logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Success {
			c.Next()
			return
		}

		retry := int(res.RetryAfter(l.now()).Seconds())
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "RateLimited",
			"message": fmt.Sprintf("Too many requests. Please try again in %d seconds.", retry),
		})
	}
}
