// Package domainerrors carries a closed set of error kinds across component
// boundaries so callers can branch on the kind without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is the closed error-kind set. Components map their failure taxonomy
// onto these codes; the HTTP layer maps codes onto statuses.
type Code string

const (
	// CodeBadRequest marks caller mistakes: malformed input, missing
	// mandatory invoice fields. Never retried.
	CodeBadRequest Code = "bad_request"

	// CodeNotFound marks lookups that found nothing.
	CodeNotFound Code = "not_found"

	// CodeConflict marks state collisions such as a concurrent duplicate
	// insert losing the race.
	CodeConflict Code = "conflict"

	// CodeInvalidTransition marks state-machine violations (activating a
	// certificate that is not issued, retrying a succeeded transmission).
	CodeInvalidTransition Code = "invalid_transition"

	// CodeUnavailable marks transient downstream failures: regulatory
	// endpoint 5xx, signing backend down. Retryable by the caller.
	CodeUnavailable Code = "unavailable"

	// CodeExhausted marks fatal resource exhaustion such as the IRN
	// sequence space running out. Requires operator intervention.
	CodeExhausted Code = "exhausted"

	// CodeInternal marks everything else; details stay server-side.
	CodeInternal Code = "internal"
)

// Error is a tagged error with a kind code and operator-facing message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// untagged errors and empty for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message, falling back to the code name.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return string(CodeInternal)
}
