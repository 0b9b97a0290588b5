package session

import (
	"context" // Request and sweep contexts
	"errors"  // Error matching
	"sync"    // Map guard
	"time"    // Sweep interval

	"kiosk_system/internal/domain"   // Identity model
	"kiosk_system/internal/identity" // Login credentials and user lookups

	"github.com/google/uuid"         // Session ids
	"github.com/sirupsen/logrus"     // Logging
	"golang.org/x/sync/singleflight" // One restore per session id
)

// Registry maps session ids to machines. Every lookup checks the persisted
// identity first, so a machine never outlives its session key. One identity
// holds at most one live machine.
type Registry struct {
	cfg      Config
	restores singleflight.Group // Concurrent restores of one sid share a machine

	mu       sync.Mutex
	sessions map[string]*Machine // Published only after Login or Resume succeeded
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{cfg: cfg, sessions: make(map[string]*Machine)}
}

// Login opens a new session for creds. Nothing is registered on failure.
// Earlier sessions of the same identity are logged out.
func (r *Registry) Login(ctx context.Context, creds identity.Credentials) (*Machine, error) {
	m := NewMachine(uuid.NewString(), r.cfg)
	if err := m.Login(ctx, creds); err != nil {
		return nil, err
	}
	id, _ := m.Identity()

	r.mu.Lock()
	superseded := r.takeByEmailLocked(id.Email) // Same kiosk account logging in again
	r.sessions[m.ID()] = m
	r.mu.Unlock()

	for _, old := range superseded {
		r.cfg.Log.WithFields(logrus.Fields{"session": old.ID(), "email": id.Email}).Info("Session superseded by a new login")
		r.retire(ctx, old)
	}
	return m, nil
}

// Get returns the machine for sid, restoring it if needed. A session whose
// persisted identity is gone is evicted and reported as ErrUnknownSession.
func (r *Registry) Get(ctx context.Context, sid string) (*Machine, error) {
	id, err := r.cfg.Identities.LoadIdentity(ctx, sid)
	if err != nil {
		return nil, err
	}
	if id == nil {
		r.evict(ctx, sid)
		return nil, ErrUnknownSession
	}
	if m := r.lookup(sid); m != nil {
		return m, nil
	}

	// Callers racing on the same sid wait for the one restore
	ch := r.restores.DoChan(sid, func() (any, error) {
		if m := r.lookup(sid); m != nil {
			return m, nil
		}
		return r.restore(context.WithoutCancel(ctx), sid, *id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Machine), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// restore rebuilds a machine from its persisted identity and publishes it once resumed
func (r *Registry) restore(ctx context.Context, sid string, id domain.Identity) (*Machine, error) {
	log := r.cfg.Log.WithFields(logrus.Fields{"session": sid, "email": id.Email})
	if r.cfg.Lookup != nil {
		fresh, err := r.cfg.Lookup.Find(ctx, id.Email)
		switch {
		case errors.Is(err, identity.ErrIdentityNotFound):
			log.Error("Identity record missing on restore")
			if err := r.cfg.Identities.DeleteIdentity(ctx, sid); err != nil {
				log.WithField("error", err.Error()).Error("Failed to delete orphaned identity")
			}
			return nil, ErrIdentityMissing
		case err != nil:
			return nil, err
		}
		id = *fresh // Picks up is_admin and store_id changes
		if err := r.cfg.Identities.SaveIdentity(ctx, sid, id); err != nil {
			log.WithField("error", err.Error()).Warn("Failed to refresh persisted identity")
		}
	}

	m := NewMachine(sid, r.cfg)
	if err := m.Resume(ctx, id); err != nil {
		m.watcher.Stop()
		return nil, err
	}
	r.mu.Lock()
	if len(r.findByEmailLocked(id.Email)) > 0 {
		r.mu.Unlock()
		// A newer login of this identity already owns the subscription
		m.watcher.Stop()
		if err := r.cfg.Identities.DeleteIdentity(ctx, sid); err != nil {
			log.WithField("error", err.Error()).Error("Failed to delete superseded identity")
		}
		return nil, ErrUnknownSession
	}
	r.sessions[sid] = m
	r.mu.Unlock()
	log.Info("Session restored")
	return m, nil
}

// Logout tears the session down and forgets it
func (r *Registry) Logout(ctx context.Context, sid string) error {
	m, err := r.Get(ctx, sid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.sessions, sid)
	r.mu.Unlock()
	return m.Logout(ctx)
}

// Sweep evicts every live machine whose persisted identity has expired and
// returns how many were evicted
func (r *Registry) Sweep(ctx context.Context) int {
	r.mu.Lock()
	sids := make([]string, 0, len(r.sessions))
	for sid := range r.sessions {
		sids = append(sids, sid)
	}
	r.mu.Unlock()

	evicted := 0
	for _, sid := range sids {
		id, err := r.cfg.Identities.LoadIdentity(ctx, sid)
		if err != nil {
			r.cfg.Log.WithFields(logrus.Fields{"session": sid, "error": err.Error()}).Warn("Sweep could not read identity")
			continue // Keep the machine when the store is unreachable
		}
		if id == nil && r.evict(ctx, sid) {
			evicted++
		}
	}
	return evicted
}

// Run sweeps every interval until ctx is done. A non-positive interval disables sweeping.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 {
				r.cfg.Log.WithField("evicted", n).Info("Expired sessions evicted")
			}
		}
	}
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every subscription without clearing persisted state
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, m := range r.sessions {
		m.watcher.Stop()
		delete(r.sessions, sid)
	}
}

func (r *Registry) lookup(sid string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sid]
}

// evict drops sid from memory and logs its machine out, reporting whether one was live
func (r *Registry) evict(ctx context.Context, sid string) bool {
	r.mu.Lock()
	m, ok := r.sessions[sid]
	delete(r.sessions, sid)
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.cfg.Log.WithField("session", sid).Info("Session expired")
	r.retire(ctx, m)
	return true
}

// retire stops the subscription and drops the payment and identity state of m
func (r *Registry) retire(ctx context.Context, m *Machine) {
	if err := m.Logout(context.WithoutCancel(ctx)); err != nil {
		r.cfg.Log.WithFields(logrus.Fields{"session": m.ID(), "error": err.Error()}).Warn("Failed to clean up evicted session")
	}
}

func (r *Registry) findByEmailLocked(email string) []string {
	var sids []string
	for sid, m := range r.sessions {
		if id, ok := m.Identity(); ok && id.Email == email {
			sids = append(sids, sid)
		}
	}
	return sids
}

// takeByEmailLocked removes and returns the machines logged in as email
func (r *Registry) takeByEmailLocked(email string) []*Machine {
	var out []*Machine
	for _, sid := range r.findByEmailLocked(email) {
		out = append(out, r.sessions[sid])
		delete(r.sessions, sid)
	}
	return out
}
