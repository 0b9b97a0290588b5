package middleware

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminModeMiddleware lets the request through only while the session is in
// admin mode, which itself requires an admin managing the assigned store
func AdminModeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := CurrentSession(c) // Set by SessionMiddleware
		if m == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		// AdminMode is false unless storeId == signal
		if !m.AdminMode() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin mode required"})
			return
		}
		c.Next()
	}
}
