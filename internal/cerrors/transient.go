package cerrors

import (
	"context"
	"errors"
	"net"
)

// transientError marks a failure as retryable I/O (store or transport unreachable).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that IsTransient reports true. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var te *transientError
	if errors.As(err, &te) {
		return err
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth retrying: explicitly marked errors,
// network errors and deadline expiry. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
