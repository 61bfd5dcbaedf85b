package identity

import "errors"

// The caller-facing failure kinds for identity operations. Every
// operation either returns a value or fails with exactly one of these
// (possibly wrapped with operation context).
var (
	// ErrValidation indicates malformed input the caller can correct.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication indicates bad credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrCredentialConflict indicates the email is already registered.
	ErrCredentialConflict = errors.New("email already registered")
	// ErrNotFound indicates a missing user record.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyLinked indicates the link target is paired with someone else.
	ErrAlreadyLinked = errors.New("partner already linked to another user")
	// ErrPersistence indicates a store-level failure.
	ErrPersistence = errors.New("persistence error")
)
