package middleware

import (
	"context"  // Request-scoped lookups
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"kiosk_system/internal/session" // Session state machine

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging
)

// Sessions resolves a session id to its machine
type Sessions interface {
	Get(ctx context.Context, sid string) (*session.Machine, error)
}

// SessionMiddleware loads the machine named by the token. Runs after JWTAuthMiddleware.
func SessionMiddleware(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetString(KeySessionID)
		if sid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		m, err := sessions.Get(c.Request.Context(), sid)
		if errors.Is(err, session.ErrUnknownSession) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		if errors.Is(err, session.ErrIdentityMissing) {
			// The user record was deleted while the session slept
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{"session": sid, "error": err.Error()}).Error("Failed to load session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}
		// A token for a different identity never reaches this session
		if id, ok := m.Identity(); !ok || id.Email != c.GetString(KeyEmail) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		c.Set(KeySession, m)
		c.Next()
	}
}

// CurrentSession returns the machine stored by SessionMiddleware
func CurrentSession(c *gin.Context) *session.Machine {
	v, ok := c.Get(KeySession)
	if !ok {
		return nil
	}
	m, _ := v.(*session.Machine)
	return m
}
