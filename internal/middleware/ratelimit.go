package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// RateLimit caps requests per client IP per second using redis counters.
// A nil client disables the limiter (no redis configured).
func RateLimit(client *redis.Client, maxRequests int) gin.HandlerFunc {
	if client == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()
		count, _ := client.Get(c.Request.Context(), key).Int()
		if count >= maxRequests {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		client.Incr(c.Request.Context(), key)
		client.Expire(c.Request.Context(), key, time.Second)
		c.Next()
	}
}
