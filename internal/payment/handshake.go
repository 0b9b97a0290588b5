// Package payment runs the two-phase ready/approve checkout against the
// payment gateway. Everything needed to finish a payment is written to the
// session's durable store before the browser leaves for the gateway page.
package payment

import (
	"context" // Request contexts
	"errors"  // Error matching
	"strconv" // Partner order ids
	"strings" // Receipt numbers
	"sync"    // Per-session locks
	"time"    // Clock

	"kiosk_system/internal/domain" // Transaction and receipt models

	"github.com/google/uuid"     // Receipt randomness
	"github.com/sirupsen/logrus" // Logging
)

// Store is the durable per-session payment state
type Store interface {
	SavePending(ctx context.Context, sid string, tx domain.Transaction) error
	LoadPending(ctx context.Context, sid string) (*domain.Transaction, error)
	TakeIdentifiers(ctx context.Context, sid string) (tid, partnerOrderID string, err error)
	LoadOrderDetails(ctx context.Context, sid string) (*domain.OrderDetails, error)
	SaveReceipt(ctx context.Context, sid string, r domain.Receipt) error
	LoadReceipt(ctx context.Context, sid string) (*domain.Receipt, error)
	ClearTransaction(ctx context.Context, sid string) error
}

// Phase names reported to the outcome hook
const (
	PhaseReady   = "ready"
	PhaseApprove = "approve"
	PhaseReturn  = "return"
)

// OutcomeFunc is told about every finished phase
type OutcomeFunc func(phase string, status domain.TransactionStatus)

// ReadyResult is what the client needs to leave for the gateway
type ReadyResult struct {
	Transaction domain.Transaction
	RedirectURL string
}

// Handshake drives Transaction through Pending to a terminal status
type Handshake struct {
	gateway   Gateway          // Payment API
	store     Store            // Durable per-session state
	log       *logrus.Entry    // Component logger
	now       func() time.Time // Clock
	receiptNo func() string    // Receipt number generator
	outcome   OutcomeFunc      // Metrics hook, may be nil

	mu        sync.Mutex
	sessions  map[string]*sync.Mutex // Per-session step locks, dropped by Discard
	lastOrder int64                  // Last partner order millis handed out
}

// Option configures a Handshake
type Option func(*Handshake)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(h *Handshake) { h.now = now }
}

// WithReceiptNumbers replaces the receipt number generator
func WithReceiptNumbers(next func() string) Option {
	return func(h *Handshake) { h.receiptNo = next }
}

// WithOutcome registers a hook for phase outcomes
func WithOutcome(fn OutcomeFunc) Option {
	return func(h *Handshake) { h.outcome = fn }
}

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(h *Handshake) { h.log = log }
}

// NewHandshake creates a handshake over gateway and store
func NewHandshake(gateway Gateway, store Store, opts ...Option) *Handshake {
	h := &Handshake{
		gateway:   gateway,
		store:     store,
		log:       logrus.NewEntry(logrus.StandardLogger()),
		now:       time.Now,
		receiptNo: NewReceiptNumber,
		sessions:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewReceiptNumber returns a short random receipt number like "7F3A9C1E"
func NewReceiptNumber() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

// lock serializes handshake steps of one session
func (h *Handshake) lock(sid string) func() {
	h.mu.Lock()
	m, ok := h.sessions[sid]
	if !ok {
		m = &sync.Mutex{}
		h.sessions[sid] = m
	}
	h.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// nextPartnerOrderID is "order_<unix millis>", bumped to stay strictly increasing
func (h *Handshake) nextPartnerOrderID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms := h.now().UnixMilli()
	if ms <= h.lastOrder {
		ms = h.lastOrder + 1
	}
	h.lastOrder = ms
	return "order_" + strconv.FormatInt(ms, 10)
}

func (h *Handshake) report(phase string, status domain.TransactionStatus) {
	if h.outcome != nil {
		h.outcome(phase, status)
	}
}

// Ready runs phase 1 for the frozen cart. On any error nothing is persisted.
func (h *Handshake) Ready(ctx context.Context, sid string, order domain.OrderDetails) (*ReadyResult, error) {
	if len(order.Items) == 0 {
		return nil, &ReadyError{Err: ErrEmptyCart}
	}
	if order.TotalAmount <= 0 {
		return nil, &ReadyError{Err: ErrInvalidAmount} // Never hand the gateway a zero or wrapped total
	}
	unlock := h.lock(sid)
	defer unlock()

	pending, err := h.store.LoadPending(ctx, sid)
	if err != nil {
		return nil, &ReadyError{Err: err}
	}
	if pending != nil {
		return nil, &ReadyError{Err: ErrTransactionInFlight}
	}
	receipt, err := h.store.LoadReceipt(ctx, sid)
	if err != nil {
		return nil, &ReadyError{Err: err}
	}
	if receipt != nil {
		return nil, &ReadyError{Err: ErrReceiptPending}
	}

	poid := h.nextPartnerOrderID()
	log := h.log.WithFields(logrus.Fields{
		"session":          sid,
		"partner_order_id": poid,
		"amount":           order.TotalAmount,
	})

	resp, err := h.gateway.Ready(ctx, ReadyRequest{
		CartItems:      order.Items,
		TotalAmount:    order.TotalAmount,
		PartnerOrderID: poid,
	})
	if err != nil {
		log.WithField("error", err.Error()).Error("Payment ready failed")
		h.report(PhaseReady, domain.StatusFailed)
		return nil, &ReadyError{Err: err}
	}

	tx := domain.Transaction{
		PartnerOrderID:       poid,
		GatewayTransactionID: resp.TID,
		Status:               domain.StatusPending,
		OrderDetails:         order,
	}
	// Must be durable before the browser navigates away
	if err := h.store.SavePending(ctx, sid, tx); err != nil {
		log.WithFields(logrus.Fields{"tid": resp.TID, "error": err.Error()}).Error("Failed to persist pending transaction")
		h.report(PhaseReady, domain.StatusFailed)
		return nil, &ReadyError{Err: err}
	}

	log.WithField("tid", resp.TID).Info("Payment ready")
	h.report(PhaseReady, domain.StatusPending)
	return &ReadyResult{Transaction: tx, RedirectURL: resp.RedirectURL}, nil
}

// Approve runs phase 2 when the browser lands on the success path. The
// identifiers are taken out of the store before the gateway is called, so
// approve runs at most once per tid. A reload after approval returns the
// stored receipt.
func (h *Handshake) Approve(ctx context.Context, sid, pgToken string) (*domain.Receipt, error) {
	unlock := h.lock(sid)
	defer unlock()                         // One step per session at a time
	log := h.log.WithField("session", sid) // Session-scoped logger

	pending, err := h.store.LoadPending(ctx, sid)
	if err != nil {
		return nil, &ApproveError{Status: domain.StatusFailed, Err: err}
	}
	if pending == nil {
		receipt, err := h.store.LoadReceipt(ctx, sid)
		if err != nil {
			return nil, &ApproveError{Status: domain.StatusFailed, Err: err}
		}
		if receipt != nil {
			log.WithField("receipt", receipt.Number).Info("Success path reloaded, returning stored receipt")
			return receipt, nil // Reload never approves twice
		}
	}

	if pgToken == "" {
		h.clear(ctx, log, sid)
		log.Warn("Return without approval token")
		h.report(PhaseApprove, domain.StatusFailed)
		return nil, &ApproveError{Status: domain.StatusFailed, Err: ErrMissingToken}
	}

	tid, poid, err := h.store.TakeIdentifiers(ctx, sid) // Gone from the store from here on
	if err != nil {
		return nil, &ApproveError{Status: domain.StatusFailed, Err: err}
	}
	if tid == "" || poid == "" {
		h.clear(ctx, log, sid)
		log.Warn("Return without pending transaction identifiers")
		h.report(PhaseApprove, domain.StatusFailed)
		return nil, &ApproveError{Status: domain.StatusFailed, Err: ErrMissingIdentifiers}
	}
	log = log.WithFields(logrus.Fields{"tid": tid, "partner_order_id": poid})

	if _, err := h.gateway.Approve(ctx, ApproveRequest{TID: tid, PGToken: pgToken, PartnerOrderID: poid}); err != nil {
		h.clear(ctx, log, sid)
		log.WithField("error", err.Error()).Error("Payment approve failed")
		h.report(PhaseApprove, domain.StatusFailed)
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout // Treated as a failure, never retried
		}
		return nil, &ApproveError{Status: domain.StatusFailed, Err: err}
	}

	details, err := h.store.LoadOrderDetails(ctx, sid)
	if err != nil || details == nil {
		log.WithField("error", errString(err)).Warn("Order details missing after approval")
		details = &domain.OrderDetails{} // Receipt without lines
	}
	receipt := domain.Receipt{
		Number:         h.receiptNo(),
		PartnerOrderID: poid,
		OrderDetails:   *details,
		ApprovedAt:     h.now().UnixMilli(),
	}
	if err := h.store.SaveReceipt(ctx, sid, receipt); err != nil {
		// The payment went through; the receipt is still shown once
		log.WithField("error", err.Error()).Error("Failed to persist receipt")
	}

	log.WithFields(logrus.Fields{
		"receipt": receipt.Number,
		"amount":  receipt.OrderDetails.TotalAmount,
	}).Info("Payment approved")
	h.report(PhaseApprove, domain.StatusApproved)
	return &receipt, nil
}

// Abort handles the cancel and fail return paths. Approve is never called.
// An unacknowledged receipt survives.
func (h *Handshake) Abort(ctx context.Context, sid string, status domain.TransactionStatus) error {
	unlock := h.lock(sid)
	defer unlock()
	log := h.log.WithFields(logrus.Fields{"session": sid, "status": status})

	receipt, err := h.store.LoadReceipt(ctx, sid)
	if err != nil {
		return err
	}
	if receipt != nil {
		if _, _, err := h.store.TakeIdentifiers(ctx, sid); err != nil {
			return err
		}
	} else if err := h.store.ClearTransaction(ctx, sid); err != nil {
		return err
	}
	log.Info("Payment aborted on gateway")
	h.report(PhaseReturn, status)
	return nil
}

// Acknowledge clears the receipt and all transaction state
func (h *Handshake) Acknowledge(ctx context.Context, sid string) (*domain.Receipt, error) {
	unlock := h.lock(sid)
	defer unlock()

	receipt, err := h.store.LoadReceipt(ctx, sid)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrNoReceipt
	}
	if err := h.store.ClearTransaction(ctx, sid); err != nil {
		return nil, err
	}
	h.log.WithFields(logrus.Fields{"session": sid, "receipt": receipt.Number}).Info("Receipt acknowledged")
	return receipt, nil
}

// Pending returns the in-flight transaction, nil when none
func (h *Handshake) Pending(ctx context.Context, sid string) (*domain.Transaction, error) {
	return h.store.LoadPending(ctx, sid)
}

// Receipt returns the unacknowledged receipt, nil when none
func (h *Handshake) Receipt(ctx context.Context, sid string) (*domain.Receipt, error) {
	return h.store.LoadReceipt(ctx, sid)
}

// Discard drops all payment state and the step lock of a session (logout or eviction)
func (h *Handshake) Discard(ctx context.Context, sid string) error {
	unlock := h.lock(sid)
	err := h.store.ClearTransaction(ctx, sid)
	unlock()

	h.mu.Lock()
	delete(h.sessions, sid) // The lock map holds live sessions only
	h.mu.Unlock()
	return err
}

func (h *Handshake) clear(ctx context.Context, log *logrus.Entry, sid string) {
	if err := h.store.ClearTransaction(ctx, sid); err != nil {
		log.WithField("error", err.Error()).Error("Failed to clear transaction state")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
