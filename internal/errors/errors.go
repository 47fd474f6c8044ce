// Package errors defines the domain errors shared by the service layers and
// mapped to HTTP responses by the handlers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Re-exported so callers importing this package as "errors" keep the stdlib helpers.
var (
	New = stderrors.New
	Is  = stderrors.Is
	As  = stderrors.As
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = stderrors.New("not found")

	// ErrRateLimited is returned when a client exceeded its request window.
	ErrRateLimited = stderrors.New("rate limit exceeded")

	// ErrGatewayAuth is returned when neither refresh nor login produced a token.
	ErrGatewayAuth = stderrors.New("payment gateway authentication failed")

	// ErrGatewayNotConfigured is returned when credentials are missing and mock
	// payments are not allowed.
	ErrGatewayNotConfigured = stderrors.New("payment gateway is not configured")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = stderrors.New("invalid status transition")

	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = stderrors.New("unauthorized")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Details: map[string]string{field: message},
	}
}

// UpstreamError reports a failed call to the payment gateway. StatusCode is
// zero when no response was received.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("gateway %s unreachable: %s", e.Endpoint, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("gateway %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway %s returned status %d", e.Endpoint, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return stderrors.As(err, &v)
}
