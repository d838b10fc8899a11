package models

import "errors"

var (
	// ErrNotFound is returned when a requested product id does not exist.
	ErrNotFound = errors.New("product not found")

	// ErrBackendUnavailable wraps failures and timeouts of retrieval or model backends.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrSessionNotFound is returned by session lookups for unknown ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionConflict signals a lost race on first session creation.
	ErrSessionConflict = errors.New("session conflict")
)

// ValidationError rejects a request before it reaches the chat pipeline.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
