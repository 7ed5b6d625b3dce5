package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document, case, or decision does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusLocked is returned when a triage action targets an invoice
	// whose payment status is terminal.
	ErrStatusLocked = errors.New("invoice status is terminal and cannot be changed")

	// ErrStaleVersion is returned when a policy update carries an expected
	// version that no longer matches the live policy.
	ErrStaleVersion = errors.New("policy version conflict")
)

// ValidationError reports a rejected field in a policy update or a
// malformed request. The whole update is discarded when any field fails.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
