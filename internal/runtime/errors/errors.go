package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrBrokerRequired    = sterrors.New("queueflow: broker is required")
	ErrLoggerRequired    = sterrors.New("queueflow: logger is required")
	ErrEnvelopeRequired  = sterrors.New("queueflow: envelope is required")
	ErrQueueNameRequired = sterrors.New("queueflow: queue name is required")
	ErrUnknownCategory   = sterrors.New("queueflow: unknown message category")
)

// ConfigValidationError wraps configuration problems discovered before any
// broker work starts. It is never retryable.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "queueflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, returning nil for a nil err.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// ValidationError reports an envelope missing a category-required field. It
// is caught before the message reaches the broker and never surfaces as a
// broker-level failure.
type ValidationError struct {
	// Category is the envelope category being validated.
	Category string
	// Field is the offending field name.
	Field string
	// Reason describes the violation.
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("queueflow: invalid %s envelope: field %q %s", e.Category, e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a missing or invalid field.
func NewValidationError(category, field, reason string) error {
	return ValidationError{Category: category, Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return sterrors.As(err, &ve)
}
