package presence

import (
	"context" // Subscription lifetime
	"sync"    // Generation guard

	"github.com/sirupsen/logrus" // Logging
)

// Watcher keeps at most one subscription open. Watching a new identity cancels
// the previous subscription first, and callbacks from a cancelled generation
// are dropped before they reach the consumer.
type Watcher struct {
	source Source        // Where records live
	log    *logrus.Entry // Component logger

	mu   sync.Mutex
	gen  uint64             // Bumped on every Watch and Stop
	key  string             // Identity being watched
	sub  Subscription       // nil when idle
	stop context.CancelFunc // Cancels the subscription context
}

// NewWatcher creates a watcher over source
func NewWatcher(source Source, log *logrus.Entry) *Watcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Watcher{source: source, log: log}
}

// Watch subscribes to identityKey. onChange is only invoked while this
// subscription is the current one.
func (w *Watcher) Watch(ctx context.Context, identityKey string, onChange ChangeFunc, onError ErrorFunc) error {
	w.mu.Lock()
	w.cancelLocked()
	w.gen++
	gen := w.gen
	w.key = identityKey
	w.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := w.source.Subscribe(subCtx, identityKey,
		func(signal string) {
			if !w.current(gen) {
				w.log.WithFields(logrus.Fields{"identity": identityKey, "signal": signal}).Debug("Dropped stale presence delivery")
				return
			}
			onChange(signal)
		},
		func(err error) {
			if !w.current(gen) {
				return
			}
			if onError != nil {
				onError(&SubscriptionError{IdentityKey: identityKey, Err: err})
			}
		})
	if err != nil {
		cancel()
		return &SubscriptionError{IdentityKey: identityKey, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		// Stop or another Watch ran while subscribing
		sub.Unsubscribe()
		cancel()
		return nil
	}
	w.sub = sub
	w.stop = cancel
	w.log.WithField("identity", identityKey).Info("Presence subscription opened")
	return nil
}

// Stop cancels the active subscription, if any
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked()
	w.gen++
}

// Active reports whether a subscription is open
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sub != nil
}

func (w *Watcher) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen == gen
}

func (w *Watcher) cancelLocked() {
	if w.sub != nil {
		w.sub.Unsubscribe()
		w.log.WithField("identity", w.key).Info("Presence subscription closed")
	}
	if w.stop != nil {
		w.stop()
	}
	w.sub = nil
	w.stop = nil
	w.key = ""
}
