package translator

import (
	"errors"
	"fmt"
)

// Error is a translation-service failure. Retryable errors (rate limits,
// transient network faults) may be retried by the caller; non-retryable
// ones (oversized input, malformed responses) trigger the verbatim
// fallback branch instead.
type Error struct {
	Service   string
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewRetryable creates a retryable translation error.
func NewRetryable(service, message string, cause error) *Error {
	return &Error{Service: service, Message: message, Retryable: true, Cause: cause}
}

// NewFatal creates a non-retryable translation error.
func NewFatal(service, message string, cause error) *Error {
	return &Error{Service: service, Message: message, Retryable: false, Cause: cause}
}

// IsRetryable reports whether err is a translation error marked retryable.
func IsRetryable(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Retryable
}
