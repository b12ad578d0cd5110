package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the outcomes callers branch on.
var (
	// ErrNotConfigured means the credential for the requested mode is
	// missing or incomplete. Surfaced to the operator, never retried
	// automatically.
	ErrNotConfigured = errors.New("square connection not configured")

	// ErrNotFound means no matching local donation or subscription exists.
	// Webhook handlers log it and acknowledge the event so the provider
	// does not retry indefinitely.
	ErrNotFound = errors.New("no matching local record")
)

// TransientError wraps a timeout or 5xx from the provider. The caller
// leaves local state untouched so the next scheduled attempt can retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a TransientError anywhere in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ProviderRejection is an explicit invalid/expired-token response from the
// provider. It escalates the credential to invalid and requires
// re-authorization.
type ProviderRejection struct {
	Op     string
	Status int
	Detail string
}

func (e *ProviderRejection) Error() string {
	return fmt.Sprintf("provider rejected %s (status %d): %s", e.Op, e.Status, e.Detail)
}

// IsProviderRejection reports whether err is a ProviderRejection.
func IsProviderRejection(err error) bool {
	var pr *ProviderRejection
	return errors.As(err, &pr)
}

// ValidationError is a malformed webhook payload. The receiver answers 400
// and mutates no state.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid webhook payload: %s (%s)", e.Detail, e.Field)
	}
	return fmt.Sprintf("invalid webhook payload: %s", e.Detail)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigurationError is a malformed or incomplete provider response during
// credential acquisition. Surfaced to the operator and never persisted.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Detail)
}

// IsConfiguration reports whether err is a ConfigurationError or
// ErrNotConfigured.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce) || errors.Is(err, ErrNotConfigured)
}
