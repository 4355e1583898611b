package validate

import (
	"errors"
	"fmt"
)

// Code classifies why an input was rejected
type Code int

const (
	CodeUnknown Code = iota
	CodeEmpty
	CodeTooShort
	CodeTooLong
	CodeInvalidCharacter
	CodeControlCharacter
	CodeUnsafeScheme
	CodeHostNotAllowed
	CodeOriginMismatch
	CodeUnsafePayload
	CodePayloadTooLarge
	CodeMissingField
)

// String returns a stable name for the code
func (c Code) String() string {
	switch c {
	case CodeEmpty:
		return "empty"
	case CodeTooShort:
		return "too_short"
	case CodeTooLong:
		return "too_long"
	case CodeInvalidCharacter:
		return "invalid_character"
	case CodeControlCharacter:
		return "control_character"
	case CodeUnsafeScheme:
		return "unsafe_scheme"
	case CodeHostNotAllowed:
		return "host_not_allowed"
	case CodeOriginMismatch:
		return "origin_mismatch"
	case CodeUnsafePayload:
		return "unsafe_payload"
	case CodePayloadTooLarge:
		return "payload_too_large"
	case CodeMissingField:
		return "missing_field"
	default:
		return "unknown"
	}
}

// ValidationError describes a rejected input with a user-displayable reason.
// It never carries the rejected value itself, so it is safe to log and to
// surface directly in the UI.
type ValidationError struct {
	Field  string // input being validated, e.g. "documentSource", "signerName"
	Code   Code
	Reason string // human-readable explanation
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("validation failed for %s (%s): %s", e.Field, e.Code, e.Reason)
}

// NewValidationError creates a validation error for the given input field
func NewValidationError(field string, code Code, reason string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Reason: reason}
}

// IsValidationError reports whether err is a ValidationError and returns it
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
