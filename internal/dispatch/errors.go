package dispatch

import (
	"errors"
	"fmt"
)

// TransientError is a failure expected to clear on its own: network errors,
// timeouts, 5xx and 429 responses. Poll cycles and reconnects retry these.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: temporarily unavailable: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RejectedError is a refused transition: ownership violation, already
// assigned, terminal state. The operator's view is left unchanged.
type RejectedError struct {
	Op     string
	CallID string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.CallID == "" {
		return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s %s rejected: %s", e.Op, e.CallID, e.Reason)
}

// AuthError means the bearer credential was refused. It is never retried
// silently.
type AuthError struct {
	Op     string
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: re-authentication required (HTTP %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: re-authentication required: %s", e.Op, e.Detail)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	var target *RejectedError
	return errors.As(err, &target)
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// Reject builds a RejectedError.
func Reject(op, callID, reason string) error {
	return &RejectedError{Op: op, CallID: callID, Reason: reason}
}
