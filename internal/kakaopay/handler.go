package kakaopay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"kiosk_system/internal/payment"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// API is what the handlers need from KakaoPay
type API interface {
	Ready(ctx context.Context, p ReadyParams) (*ReadyResult, error)
	Approve(ctx context.Context, tid, partnerOrderID, pgToken string) (json.RawMessage, error)
}

// errorBody is the {message, error} shape of every failure
func errorBody(message string, err error) gin.H {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return gin.H{"message": message, "error": apiErr.Body}
	}
	return gin.H{"message": message, "error": err.Error()}
}

// ReadyHandler serves POST /api/payments/ready
func ReadyHandler(api API) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.ReadyRequest // Same body the kiosk gateway client sends
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request", "error": err.Error()})
			return
		}
		names := make([]string, 0, len(req.CartItems))
		quantity := 0
		for _, it := range req.CartItems {
			names = append(names, it.Name)
			quantity += it.Quantity
		}
		res, err := api.Ready(c.Request.Context(), ReadyParams{
			PartnerOrderID: req.PartnerOrderID,
			ItemName:       ItemName(names),
			Quantity:       quantity,
			TotalAmount:    req.TotalAmount,
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"partner_order_id": req.PartnerOrderID,
				"error":            err.Error(),
			}).Error("KakaoPay ready failed")
			c.JSON(http.StatusInternalServerError, errorBody("Payment ready failed", err))
			return
		}
		logrus.WithFields(logrus.Fields{
			"partner_order_id": req.PartnerOrderID,
			"tid":              res.TID,
			"amount":           req.TotalAmount,
		}).Info("KakaoPay ready")
		c.JSON(http.StatusOK, payment.ReadyResponse{TID: res.TID, RedirectURL: res.NextRedirectPCURL})
	}
}

// ApproveHandler serves POST /api/payments/approve
func ApproveHandler(api API) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.ApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request", "error": err.Error()})
			return
		}
		if req.TID == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Payment approve failed", "error": "tid is required"})
			return
		}
		raw, err := api.Approve(c.Request.Context(), req.TID, req.PartnerOrderID, req.PGToken)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"tid":   req.TID,
				"error": err.Error(),
			}).Error("KakaoPay approve failed")
			c.JSON(http.StatusInternalServerError, errorBody("Payment approve failed", err))
			return
		}
		logrus.WithField("tid", req.TID).Info("KakaoPay approved")
		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
	}
}

// Register mounts the payment API on r
func Register(r gin.IRouter, api API) {
	r.POST("/api/payments/ready", ReadyHandler(api))
	r.POST("/api/payments/approve", ApproveHandler(api))
}
