package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"kiosk_system/internal/utils" // JWT utility functions

	"github.com/gin-gonic/gin" // Gin web framework
)

// SessionCookie carries the token across the payment gateway redirect
const SessionCookie = "kiosk_session"

// Context keys
const (
	KeySessionID = "sessionID"
	KeyEmail     = "email"
	KeySession   = "session"
)

// tokenFrom reads the bearer token, falling back to the session cookie
func tokenFrom(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// JWTAuthMiddleware validates the session token and stores its claims
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFrom(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing session token"})
			return
		}
		claims, err := utils.ParseJWT(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(KeySessionID, claims.SessionID) // Session the token was issued for
		c.Set(KeyEmail, claims.Email)         // Identity the token was issued to
		c.Next()
	}
}
