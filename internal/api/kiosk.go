package api

import (
	"errors"
	"net/http"
	"strconv"

	"kiosk_system/internal/cart"
	"kiosk_system/internal/domain"
	"kiosk_system/internal/menu"
	"kiosk_system/internal/middleware"
	"kiosk_system/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MenuResponse is one screen of the kiosk menu
type MenuResponse struct {
	StoreID    string    `json:"storeId"`
	Title      string    `json:"menuTitle"`
	Categories []string  `json:"categories"`
	Page       menu.Page `json:"page"`
}

// AddItemRequest picks a menu item with its options
type AddItemRequest struct {
	ItemID  string         `json:"itemId" binding:"required"`
	Options domain.Options `json:"selectedOptions"`
}

// QuantityRequest changes a line's quantity by Delta
type QuantityRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// MenuHandler serves the menu of the assigned store, ?category=&page= (0-based)
func MenuHandler(menus menu.Reader) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := middleware.CurrentSession(c)
		signal, ok := m.Signal()
		if !ok {
			sessionError(c, session.ErrNotAssigned)
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
		doc, err := menus.GetMenu(c.Request.Context(), signal)
		if errors.Is(err, menu.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":         "Menu not found",
				"canInitialize": m.AdminMode(), // The kiosk offers to create one
			})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{"store": signal, "error": err.Error()}).Error("Failed to load menu")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load menu"})
			return
		}
		c.JSON(http.StatusOK, MenuResponse{
			StoreID:    doc.StoreID,
			Title:      doc.Title,
			Categories: doc.Categories,
			Page:       menu.Paginate(doc, c.Query("category"), page),
		})
	}
}

// CartHandler returns the cart lines and total
func CartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		withCart(c, http.StatusOK, nil)
	}
}

// AddItemHandler adds a menu item; same item and options merge into one line
func AddItemHandler(menus menu.Reader) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		m := middleware.CurrentSession(c)
		signal, ok := m.Signal()
		if !ok {
			sessionError(c, session.ErrNotAssigned)
			return
		}
		doc, err := menus.GetMenu(c.Request.Context(), signal)
		if errors.Is(err, menu.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load menu"})
			return
		}
		item, found := menu.FindItem(doc, req.ItemID)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		withCart(c, http.StatusCreated, func(ct *cart.Cart) error {
			return ct.AddItem(cart.Item{ID: item.ID, Name: item.Name, UnitPrice: item.Price}, req.Options)
		})
	}
}

// ChangeQuantityHandler applies {delta}; a line that would drop below 1 is removed
func ChangeQuantityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid line index"})
			return
		}
		var req QuantityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		withCart(c, http.StatusOK, func(ct *cart.Cart) error {
			return ct.ChangeQuantity(index, req.Delta)
		})
	}
}

// RemoveItemHandler deletes one line
func RemoveItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid line index"})
			return
		}
		withCart(c, http.StatusOK, func(ct *cart.Cart) error {
			return ct.RemoveItem(index)
		})
	}
}

// ClearCartHandler empties the cart
func ClearCartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		withCart(c, http.StatusOK, func(ct *cart.Cart) error {
			ct.Clear()
			return nil
		})
	}
}

// withCart runs fn on the session cart and answers with the resulting snapshot
func withCart(c *gin.Context, status int, fn func(*cart.Cart) error) {
	var snapshot domain.OrderDetails
	err := middleware.CurrentSession(c).WithCart(func(ct *cart.Cart) error {
		if fn != nil {
			if err := fn(ct); err != nil {
				return err
			}
		}
		snapshot = ct.Snapshot()
		return nil
	})
	switch {
	case errors.Is(err, cart.ErrIndexOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart line not found"})
		return
	case errors.Is(err, cart.ErrQuantityLimit), errors.Is(err, cart.ErrTotalOverflow), errors.Is(err, cart.ErrInvalidPrice):
		// The cart is left as it was
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "maxQuantity": cart.MaxQuantity})
		return
	}
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(status, snapshot)
}
