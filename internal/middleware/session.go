package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireSession pulls the caller's session id from the X-Session-ID
// header. Session ids are client-generated opaque strings; the handlers
// validate them against membership rows, not here.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("X-Session-ID")
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session ID header required"})
			return
		}
		c.Set("session_id", sessionID)
		c.Next()
	}
}
