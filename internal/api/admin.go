package api

import (
	"context"  // Request contexts
	"net/http" // HTTP status codes

	"kiosk_system/internal/domain"     // Domain models
	"kiosk_system/internal/menu"       // Menu store
	"kiosk_system/internal/middleware" // Session context helpers
	"kiosk_system/internal/session"    // Session errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging
)

// MenuStore is the menu read side plus first-use initialisation
type MenuStore interface {
	menu.Reader
	InitDefault(ctx context.Context, storeID string) (*domain.Menu, error)
}

// ToggleAdminHandler flips admin mode for an admin standing in their own store
func ToggleAdminHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := middleware.CurrentSession(c)
		on, err := m.ToggleAdmin()
		if err != nil {
			sessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"adminMode": on})
	}
}

// InitMenuHandler creates the default menu document for the assigned store.
// Mounted behind AdminModeMiddleware.
func InitMenuHandler(menus MenuStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := middleware.CurrentSession(c)
		signal, ok := m.Signal()
		if !ok {
			sessionError(c, session.ErrNotAssigned)
			return
		}
		doc, err := menus.InitDefault(c.Request.Context(), signal)
		if err != nil {
			logrus.WithFields(logrus.Fields{"store": signal, "error": err.Error()}).Error("Failed to initialise menu")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initialise menu"})
			return
		}
		c.JSON(http.StatusCreated, doc)
	}
}
