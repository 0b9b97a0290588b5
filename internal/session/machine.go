// Package session owns what a kiosk client may show: who is logged in, which
// store their presence signal points at, admin mode, and the cart.
package session

import (
	"context" // Request contexts
	"errors"  // Error matching
	"sync"    // Machine guard

	"kiosk_system/internal/cart"     // Order in progress
	"kiosk_system/internal/domain"   // Identity and signal models
	"kiosk_system/internal/identity" // Login provider
	"kiosk_system/internal/presence" // Presence subscriptions

	"github.com/sirupsen/logrus" // Logging
)

// State of a kiosk session
type State int

const (
	LoggedOut State = iota
	Authenticated
	Watching
	Assigned
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Authenticated:
		return "authenticated"
	case Watching:
		return "watching"
	case Assigned:
		return "assigned"
	}
	return "unknown"
}

// Transition describes one state change
type Transition struct {
	From        State
	To          State
	Signal      string // Signal after the transition, "" when unassigned
	CartCleared bool   // The cart held lines that were dropped
}

// IdentityStore persists the identity so a session can be restored
type IdentityStore interface {
	SaveIdentity(ctx context.Context, sid string, id domain.Identity) error
	LoadIdentity(ctx context.Context, sid string) (*domain.Identity, error)
	DeleteIdentity(ctx context.Context, sid string) error
}

// PaymentState drops a session's payment state and its per-session lock on
// logout or eviction
type PaymentState interface {
	Discard(ctx context.Context, sid string) error
}

// Config wires a machine to its collaborators
type Config struct {
	Provider     identity.Provider              // Password check at login
	Lookup       identity.Lookup                // Optional, re-reads the user on restore
	Presence     presence.Source                // Store assignment signals
	Identities   IdentityStore                  // Persisted identity per session
	Payments     PaymentState                   // Dropped on logout and eviction
	Log          *logrus.Entry                  // Base logger
	OnTransition func(sid string, t Transition) // Metrics hook
}

// View is a read-only copy of the machine for rendering
type View struct {
	SessionID      string            `json:"sessionId"`
	State          string            `json:"state"`
	Identity       *domain.Identity  `json:"identity,omitempty"`
	Signal         string            `json:"signal,omitempty"`
	AdminMode      bool              `json:"adminMode"`
	CanToggleAdmin bool              `json:"canToggleAdmin"`
	Cart           []domain.CartItem `json:"cart"`
	Total          int64             `json:"total"`
}

// Machine is one client session. Presence deliveries and user actions are
// serialized by mu, so no two mutations interleave.
type Machine struct {
	id      string            // Session id carried in the JWT
	cfg     Config            // Collaborators
	log     *logrus.Entry     // Logger with the session field
	watcher *presence.Watcher // At most one presence subscription

	mu        sync.Mutex
	state     State            // Current state
	identity  *domain.Identity // nil while logged out
	signal    string           // Assigned store, "" when unassigned
	adminMode bool             // Only honoured while canToggleAdminLocked holds
	cart      *cart.Cart       // Order in progress
	token     uint64           // Owning-session token of the current subscription
}

// NewMachine creates a logged out machine for session id
func NewMachine(id string, cfg Config) *Machine {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	log := cfg.Log.WithField("session", id)
	return &Machine{
		id:      id,
		cfg:     cfg,
		log:     log,
		watcher: presence.NewWatcher(cfg.Presence, log),
		cart:    cart.New(),
	}
}

// ID returns the session id
func (m *Machine) ID() string {
	return m.id
}

// Login authenticates and starts watching the user's presence signal
func (m *Machine) Login(ctx context.Context, creds identity.Credentials) error {
	id, err := m.cfg.Provider.Login(ctx, creds)
	switch {
	case errors.Is(err, identity.ErrIdentityNotFound):
		m.log.WithField("email", creds.Email).Error("Identity record missing after login")
		return ErrIdentityMissing
	case err != nil:
		m.log.WithFields(logrus.Fields{"email": creds.Email, "error": err.Error()}).Warn("Login rejected")
		return &AuthError{Err: err}
	case id == nil:
		return ErrIdentityMissing
	}
	if err := m.cfg.Identities.SaveIdentity(ctx, m.id, *id); err != nil {
		// The session works until the next restart
		m.log.WithField("error", err.Error()).Error("Failed to persist identity")
	}
	return m.start(ctx, *id)
}

// Resume re-enters Authenticated with a persisted identity, e.g. after a restart
func (m *Machine) Resume(ctx context.Context, id domain.Identity) error {
	return m.start(ctx, id)
}

func (m *Machine) start(ctx context.Context, id domain.Identity) error {
	m.mu.Lock()
	from := m.state
	if from != LoggedOut && m.identity != nil && m.identity.Email != id.Email {
		// Switching identity drops the previous user's order
		m.cart.Clear()
	}
	m.token++        // New owning-session token
	token := m.token // Captured by the delivery callback
	m.identity = &id
	m.signal = ""
	m.adminMode = false
	m.state = Authenticated
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"email": id.Email, "is_admin": id.IsAdmin}).Info("Session authenticated")
	m.emit(Transition{From: from, To: Authenticated})

	// The subscription outlives the request that opened it
	err := m.watcher.Watch(context.WithoutCancel(ctx), id.Email,
		func(signal string) { m.deliver(token, signal) },
		m.subscriptionError)
	if err != nil {
		m.log.WithField("error", err.Error()).Error("Presence subscription failed to open")
		return nil
	}

	m.mu.Lock()
	moved := m.token == token && m.state == Authenticated
	if moved {
		m.state = Watching
	}
	m.mu.Unlock()
	if moved {
		m.emit(Transition{From: Authenticated, To: Watching})
	}
	return nil
}

func (m *Machine) subscriptionError(err error) {
	// Stale state is preferred over forcing a logout
	m.log.WithField("error", err.Error()).Warn("Presence subscription error")
}

// deliver applies one presence value. Values from a stale token are dropped
// and a repeated value is a no-op.
func (m *Machine) deliver(token uint64, raw string) {
	signal := domain.NormalizeSignal(raw)

	m.mu.Lock()
	if token != m.token || m.state == LoggedOut {
		m.mu.Unlock()
		return
	}
	from := m.state
	var t *Transition
	switch {
	case from == Assigned && signal == m.signal:
		// idempotent redelivery
	case signal == "" && from == Assigned:
		t = &Transition{From: from, To: Watching, CartCleared: m.resetLocked("")}
		m.state = Watching
	case signal == "":
		if from == Authenticated {
			m.state = Watching
			t = &Transition{From: from, To: Watching}
		}
	default:
		t = &Transition{From: from, To: Assigned, Signal: signal, CartCleared: m.resetLocked(signal)}
		m.state = Assigned
	}
	m.mu.Unlock()

	if t != nil {
		m.log.WithFields(logrus.Fields{
			"from":         t.From.String(),
			"to":           t.To.String(),
			"signal":       t.Signal,
			"cart_cleared": t.CartCleared,
		}).Info("Presence signal changed")
		m.emit(*t)
	}
}

// resetLocked moves to signal, clearing the cart and admin mode
func (m *Machine) resetLocked(signal string) bool {
	cleared := m.cart.Len() > 0
	m.cart.Clear()
	m.adminMode = false
	m.signal = signal
	return cleared
}

func (m *Machine) emit(t Transition) {
	if m.cfg.OnTransition != nil {
		m.cfg.OnTransition(m.id, t)
	}
}

// CanToggleAdmin reports whether the admin toggle is offered
func (m *Machine) CanToggleAdmin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canToggleAdminLocked()
}

// An admin may only administer the store they are physically assigned to
func (m *Machine) canToggleAdminLocked() bool {
	return m.state == Assigned && m.identity != nil && m.identity.ManagesStore(m.signal)
}

// ToggleAdmin flips admin mode and returns the new value
func (m *Machine) ToggleAdmin() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.canToggleAdminLocked() {
		return false, ErrAdminModeUnavailable
	}
	m.adminMode = !m.adminMode
	m.log.WithField("admin_mode", m.adminMode).Info("Admin mode toggled")
	return m.adminMode, nil
}

// AdminMode reports the current admin mode bit
func (m *Machine) AdminMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adminMode && m.canToggleAdminLocked()
}

// Signal returns the assigned store and whether one is assigned
func (m *Machine) Signal() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal, m.state == Assigned
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns a copy of the logged in identity
func (m *Machine) Identity() (domain.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return domain.Identity{}, false
	}
	return *m.identity, true
}

// WithCart runs fn on the cart while a store is assigned
func (m *Machine) WithCart(fn func(c *cart.Cart) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case LoggedOut:
		return ErrLoggedOut
	case Assigned:
		return fn(m.cart)
	}
	return ErrNotAssigned
}

// ClearCart empties the cart regardless of state
func (m *Machine) ClearCart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart.Clear()
}

// View copies the machine state
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := View{
		SessionID:      m.id,
		State:          m.state.String(),
		Signal:         m.signal,
		AdminMode:      m.adminMode,
		CanToggleAdmin: m.canToggleAdminLocked(),
		Cart:           m.cart.Lines(),
		Total:          m.cart.Total(),
	}
	if m.identity != nil {
		id := *m.identity
		v.Identity = &id
	}
	return v
}

// Logout tears down the subscription and clears cart, transaction and identity
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	from := m.state
	m.token++ // Late deliveries from the old subscription are dropped
	m.state = LoggedOut
	m.identity = nil
	m.signal = ""
	m.adminMode = false
	m.cart.Clear()
	m.mu.Unlock()

	m.watcher.Stop() // Never called with mu held

	var errs []error
	if m.cfg.Payments != nil {
		if err := m.cfg.Payments.Discard(ctx, m.id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.cfg.Identities.DeleteIdentity(ctx, m.id); err != nil {
		errs = append(errs, err)
	}
	m.log.Info("Session logged out")
	if from != LoggedOut {
		m.emit(Transition{From: from, To: LoggedOut})
	}
	return errors.Join(errs...)
}
