package api

import (
	"time"

	"kiosk_system/internal/domain"
	"kiosk_system/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the HTTP surface needs
type Deps struct {
	Registrar    Registrar
	Sessions     SessionManager
	Menus        MenuStore
	Payments     Payments
	JWTSecret    string
	TokenTTL     time.Duration
	SecureCookie bool
}

// RegisterRoutes mounts the kiosk API on r
func RegisterRoutes(r gin.IRouter, d Deps) {
	// Public routes
	r.POST("/user", RegisterHandler(d.Registrar))
	r.POST("/session", LoginHandler(d.Sessions, d.JWTSecret, d.TokenTTL, d.SecureCookie))

	// Token only, the session may already be gone
	r.DELETE("/session", middleware.JWTAuthMiddleware(d.JWTSecret), LogoutHandler(d.Sessions))

	// Routes bound to a live session
	s := r.Group("")
	s.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.SessionMiddleware(d.Sessions))
	s.GET("/session", SessionHandler())
	s.POST("/admin-mode", ToggleAdminHandler())

	s.GET("/kiosk/menu", MenuHandler(d.Menus))
	s.POST("/kiosk/menu", middleware.AdminModeMiddleware(), InitMenuHandler(d.Menus))

	s.GET("/cart", CartHandler())
	// The cart is frozen while its snapshot is at the gateway
	edit := s.Group("", CartLockMiddleware(d.Payments))
	edit.POST("/cart/items", AddItemHandler(d.Menus))
	edit.PATCH("/cart/items/:index", ChangeQuantityHandler())
	edit.DELETE("/cart/items/:index", RemoveItemHandler())
	edit.DELETE("/cart", ClearCartHandler())

	s.POST("/checkout", CheckoutHandler(d.Payments))
	s.GET("/payments/status", PaymentStatusHandler(d.Payments))
	s.GET("/payments/success", SuccessHandler(d.Payments))
	s.GET("/payments/cancel", AbortHandler(d.Payments, domain.StatusCancelled))
	s.GET("/payments/fail", AbortHandler(d.Payments, domain.StatusFailed))
	s.GET("/receipt", ReceiptHandler(d.Payments))
	s.POST("/receipt/ack", AcknowledgeHandler(d.Payments))
}
