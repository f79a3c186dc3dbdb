package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/circlesplus/backend/pkg/ratelimiter"
	"github.com/circlesplus/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// GlobalWriteRateLimit throttles all mutating requests per user. A nil Redis
// client disables the limit.
func GlobalWriteRateLimit(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		userID, err := response.GetUserID(c)
		if err != nil {
			// Unauthenticated requests are rejected downstream.
			c.Next()
			return
		}

		limit := ratelimiter.GetDurationFromEnv("RATE_LIMIT_GLOBAL", 2*time.Second)
		if limit <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		allowed, err := ratelimiter.CheckAndSetRateLimit(ctx, rdb, userID, ratelimiter.ScopeGlobal, limit)
		if err != nil {
			// Redis trouble should not take writes down with it.
			c.Next()
			return
		}
		if !allowed {
			ttl, _ := ratelimiter.GetRateLimitTTL(ctx, rdb, userID, ratelimiter.ScopeGlobal)
			c.Header("Retry-After", fmt.Sprintf("%.0f", ttl.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			c.Abort()
			return
		}

		c.Next()
	}
}
