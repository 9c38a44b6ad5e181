package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing key material. Fatal for the
	// operation that hit it.
	ErrValidation = errors.New("invalid key material")

	// ErrSignature is returned when a signed prekey does not verify against the
	// bundle's signing key. It deliberately does not say which key was at fault.
	ErrSignature = errors.New("signed prekey verification failed")

	// ErrAllocationExhausted reports an empty one-time prekey pool. Callers
	// continue with the three-DH handshake.
	ErrAllocationExhausted = errors.New("no one-time prekey available")

	// ErrAuthentication is returned when SecureChannel cannot open a message.
	ErrAuthentication = errors.New("decryption failed")

	// ErrStaleSession is returned when a session id is no longer known to the
	// relay; establishment must restart from NoSession.
	ErrStaleSession = errors.New("session no longer exists")

	// ErrNotFound is returned by stores for absent records.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateOneTimeKey signals a one-time prekey id collision.
	ErrDuplicateOneTimeKey = errors.New("duplicate one-time prekey id")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsRecoverable reports whether err belongs to the recoverable part of the
// taxonomy (allocation exhausted, authentication failure, stale session).
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrAllocationExhausted) ||
		errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrStaleSession)
}
