// Package resilience provides the retry policy, error taxonomy and dead-letter
// reporting for row-store calls.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry: timeouts, dropped
// connections, rate limiting, serialization conflicts.
type TransientError struct {
	Err  error
	Code string // store-specific code (SQLSTATE, SQLite result code), may be empty
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient.
func NewTransientError(err error, code string) *TransientError {
	return &TransientError{Err: err, Code: code}
}

// ValidationError marks a payload the store rejected as malformed. Retrying
// the same payload can never succeed.
type ValidationError struct {
	Err  error
	Code string
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps err as a validation failure.
func NewValidationError(err error, code string) *ValidationError {
	return &ValidationError{Err: err, Code: code}
}

// IsValidation reports whether err (or its chain) is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient returns true if the error chain holds a TransientError, or if
// it matches common transient patterns (network timeouts, connection resets).
// Validation errors and context cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for errors that lost their type on the way up.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"i/o timeout",
		"server closed idle connection",
		"too many connections",
		"rate limit",
		"database is locked",
		"statement timeout",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
