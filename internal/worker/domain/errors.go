package domain

import "errors"

var (
	// ErrInvalidTask is returned when a queue message cannot be decoded into a stitch task
	ErrInvalidTask = errors.New("invalid stitch task")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
