package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrMissingField        = errors.New("missing required field")
	ErrEmptyQuery          = errors.New("query text is empty")
	ErrLimitOutOfRange     = errors.New("limit out of range")
	ErrThresholdOutOfRange = errors.New("similarity threshold out of range")
)

// Sentinel errors for dependency and state failures.
var (
	ErrStoreUnavailable = errors.New("relational store unavailable")
	ErrIndexUnavailable = errors.New("vector index unavailable")
	ErrModelUnavailable = errors.New("embedding model unavailable")
	ErrCountMismatch    = errors.New("record and vector counts differ")
	ErrNoTexts          = errors.New("no texts to embed")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// IsValidation reports whether err is a request validation failure, as
// opposed to a dependency or internal failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
