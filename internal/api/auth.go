package api

import (
	"context"  // Request contexts
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"time"     // Token lifetime

	"kiosk_system/internal/domain"     // Domain models
	"kiosk_system/internal/identity"   // Identity provider
	"kiosk_system/internal/middleware" // Session context helpers
	"kiosk_system/internal/session"    // Session state machine
	"kiosk_system/internal/utils"      // JWT helpers

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging
)

// Registrar creates user accounts
type Registrar interface {
	Register(ctx context.Context, reg identity.Registration) (*domain.Identity, error)
}

// SessionManager owns the session machines
type SessionManager interface {
	Login(ctx context.Context, creds identity.Credentials) (*session.Machine, error)
	Get(ctx context.Context, sid string) (*session.Machine, error)
	Logout(ctx context.Context, sid string) error
}

// LoginResponse carries the session token and the initial session view
type LoginResponse struct {
	Token   string       `json:"token"`   // JWT bound to the session
	Session session.View `json:"session"` // State right after login
}

// RegisterHandler creates a user account
func RegisterHandler(reg Registrar) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req identity.Registration
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		id, err := reg.Register(c.Request.Context(), req)
		if errors.Is(err, identity.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{"email": req.Email, "error": err.Error()}).Error("Registration failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
			return
		}
		c.JSON(http.StatusCreated, id)
	}
}

// LoginHandler opens a session, sets the session cookie and returns the token
func LoginHandler(sessions SessionManager, secret string, ttl time.Duration, secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req identity.Credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		m, err := sessions.Login(c.Request.Context(), req)
		var authErr *session.AuthError
		switch {
		case errors.As(err, &authErr):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		case errors.Is(err, session.ErrIdentityMissing):
			// Terminal: the account authenticated but has no user record
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		case err != nil:
			logrus.WithFields(logrus.Fields{"email": req.Email, "error": err.Error()}).Error("Login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
			return
		}
		id, _ := m.Identity()
		token, err := utils.GenerateJWT(m.ID(), id.Email, secret, ttl)
		if err != nil {
			_ = sessions.Logout(c.Request.Context(), m.ID())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		// Lax so the cookie rides along on the gateway's top-level redirect back
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.SessionCookie, token, int(ttl.Seconds()), "/", "", secureCookie, true)
		c.JSON(http.StatusOK, LoginResponse{Token: token, Session: m.View()})
	}
}

// LogoutHandler tears the session down from any state
func LogoutHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetString(middleware.KeySessionID)
		err := sessions.Logout(c.Request.Context(), sid)
		if err != nil && !errors.Is(err, session.ErrUnknownSession) {
			logrus.WithFields(logrus.Fields{"session": sid, "error": err.Error()}).Error("Logout cleanup failed")
		}
		c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// SessionHandler returns the current session view
func SessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, middleware.CurrentSession(c).View())
	}
}

// sessionError maps session errors onto responses
func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": "No store assigned yet"})
	case errors.Is(err, session.ErrLoggedOut):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
	case errors.Is(err, session.ErrAdminModeUnavailable):
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin mode is not available for this store"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
