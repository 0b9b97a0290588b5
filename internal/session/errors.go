package session

import "errors"

var (
	ErrIdentityMissing      = errors.New("identity record missing, cannot proceed")    // Terminal login failure
	ErrNotAssigned          = errors.New("no store assigned to this session")          // Cart used outside a store
	ErrAdminModeUnavailable = errors.New("admin mode is not available for this store") // Toggle gated off
	ErrLoggedOut            = errors.New("session is logged out")                      // Machine already torn down
	ErrUnknownSession       = errors.New("unknown session")                            // Nothing to restore
)

// AuthError is a rejected login. The machine does not change state.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
