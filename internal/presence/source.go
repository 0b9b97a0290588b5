// Package presence delivers a user's store assignment ("signal") as it changes.
//
// A Source pushes every observed value of the per-user presence record. Values
// may repeat; consumers treat repeated values as no-ops.
package presence

import (
	"context" // Subscription lifetime
	"fmt"     // Error formatting
)

// ChangeFunc receives the raw signal value of each delivery
type ChangeFunc func(signal string)

// ErrorFunc receives transport errors. The subscription stays open.
type ErrorFunc func(err error)

// Subscription is a handle to an open stream of presence values
type Subscription interface {
	Unsubscribe()
}

// Source opens presence subscriptions keyed by identity (email)
type Source interface {
	Subscribe(ctx context.Context, identityKey string, onChange ChangeFunc, onError ErrorFunc) (Subscription, error)
}

// SubscriptionError wraps transport failures reported while watching
type SubscriptionError struct {
	IdentityKey string
	Err         error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("presence subscription for %s: %v", e.IdentityKey, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
