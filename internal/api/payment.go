package api

import (
	"context"
	"errors"
	"net/http"

	"kiosk_system/internal/cart"
	"kiosk_system/internal/domain"
	"kiosk_system/internal/middleware"
	"kiosk_system/internal/payment"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Payments is the checkout handshake
type Payments interface {
	Ready(ctx context.Context, sid string, order domain.OrderDetails) (*payment.ReadyResult, error)
	Approve(ctx context.Context, sid, pgToken string) (*domain.Receipt, error)
	Abort(ctx context.Context, sid string, status domain.TransactionStatus) error
	Acknowledge(ctx context.Context, sid string) (*domain.Receipt, error)
	Pending(ctx context.Context, sid string) (*domain.Transaction, error)
	Receipt(ctx context.Context, sid string) (*domain.Receipt, error)
}

// CheckoutResponse sends the browser to the gateway
type CheckoutResponse struct {
	RedirectURL    string `json:"redirectUrl"`
	PartnerOrderID string `json:"partner_order_id"`
	TotalAmount    int64  `json:"totalAmount"`
}

// CartLockMiddleware refuses cart edits from ready until the transaction is
// terminal and its receipt acknowledged
func CartLockMiddleware(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := middleware.CurrentSession(c).ID()
		pending, err := payments.Pending(c.Request.Context(), sid)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if pending != nil {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": payment.ErrTransactionInFlight.Error()})
			return
		}
		receipt, err := payments.Receipt(c.Request.Context(), sid)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if receipt != nil {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": payment.ErrReceiptPending.Error()})
			return
		}
		c.Next()
	}
}

// CheckoutHandler freezes the cart and opens a gateway transaction
func CheckoutHandler(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := middleware.CurrentSession(c)
		var order domain.OrderDetails
		if err := m.WithCart(func(ct *cart.Cart) error {
			order = ct.Snapshot()
			return nil
		}); err != nil {
			sessionError(c, err)
			return
		}
		res, err := payments.Ready(c.Request.Context(), m.ID(), order)
		switch {
		case errors.Is(err, payment.ErrEmptyCart), errors.Is(err, payment.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, payment.ErrTransactionInFlight), errors.Is(err, payment.ErrReceiptPending):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			// The cart is untouched, the customer may retry
			c.JSON(http.StatusBadGateway, gin.H{"error": "Payment could not be started", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, CheckoutResponse{
			RedirectURL:    res.RedirectURL,
			PartnerOrderID: res.Transaction.PartnerOrderID,
			TotalAmount:    res.Transaction.OrderDetails.TotalAmount,
		})
	}
}

// SuccessHandler is the gateway's approval return path, ?pg_token=
func SuccessHandler(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := middleware.CurrentSession(c).ID()
		receipt, err := payments.Approve(c.Request.Context(), sid, c.Query("pg_token"))
		var approveErr *payment.ApproveError
		switch {
		case errors.As(err, &approveErr):
			status := http.StatusBadGateway
			if errors.Is(err, payment.ErrMissingToken) || errors.Is(err, payment.ErrMissingIdentifiers) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error(), "status": approveErr.Status})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": domain.StatusApproved, "receipt": receipt})
	}
}

// AbortHandler serves the cancel and fail return paths
func AbortHandler(payments Payments, status domain.TransactionStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := middleware.CurrentSession(c).ID()
		if err := payments.Abort(c.Request.Context(), sid, status); err != nil {
			logrus.WithFields(logrus.Fields{"session": sid, "error": err.Error()}).Error("Failed to clear aborted payment")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear payment state"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	}
}

// PaymentStatusHandler reports the in-flight transaction and any unacknowledged receipt
func PaymentStatusHandler(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := middleware.CurrentSession(c).ID()
		pending, err := payments.Pending(c.Request.Context(), sid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		receipt, err := payments.Receipt(c.Request.Context(), sid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": pending, "receipt": receipt})
	}
}

// ReceiptHandler returns the unacknowledged receipt
func ReceiptHandler(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		receipt, err := payments.Receipt(c.Request.Context(), middleware.CurrentSession(c).ID())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if receipt == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No receipt"})
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

// AcknowledgeHandler dismisses the receipt and starts a fresh order
func AcknowledgeHandler(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := middleware.CurrentSession(c)
		receipt, err := payments.Acknowledge(c.Request.Context(), m.ID())
		if errors.Is(err, payment.ErrNoReceipt) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		m.ClearCart()
		c.JSON(http.StatusOK, gin.H{"message": "Receipt acknowledged", "receiptNumber": receipt.Number})
	}
}
