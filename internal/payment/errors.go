package payment

import (
	"errors" // Sentinel errors
	"fmt"    // Error formatting

	"kiosk_system/internal/domain" // Transaction status
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidAmount       = errors.New("order total must be positive")
	ErrTransactionInFlight = errors.New("a payment is already in progress")
	ErrReceiptPending      = errors.New("previous receipt has not been acknowledged")
	ErrMissingToken        = errors.New("approval token missing from return url")
	ErrMissingIdentifiers  = errors.New("no pending transaction for this session")
	ErrTimeout             = errors.New("payment gateway timed out")
	ErrNoReceipt           = errors.New("no receipt to acknowledge")
)

// ReadyError is a failed phase 1. The cart is untouched and the user may retry.
type ReadyError struct {
	Err error
}

func (e *ReadyError) Error() string {
	return "payment ready failed: " + e.Err.Error()
}

func (e *ReadyError) Unwrap() error {
	return e.Err
}

// ApproveError is a failed phase 2. Persisted identifiers are already cleared.
type ApproveError struct {
	Status domain.TransactionStatus // Failed or Cancelled
	Err    error
}

func (e *ApproveError) Error() string {
	return fmt.Sprintf("payment approve %s: %v", e.Status, e.Err)
}

func (e *ApproveError) Unwrap() error {
	return e.Err
}

// GatewayError is a non-2xx answer from the payment API, body {message, error}
type GatewayError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *GatewayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("gateway returned %d: %s (%s)", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}
