package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidInput is matched by every ValidationError
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTurnIndex is returned when a turn index is outside the job's turns
	ErrInvalidTurnIndex = errors.New("invalid turn index")

	// ErrNothingToStitch is returned when a stitch request resolves to no video refs
	ErrNothingToStitch = errors.New("no video refs available to stitch")

	// ErrStitchInProgress is returned when a job already has a queued or running stitch
	ErrStitchInProgress = errors.New("stitch already in progress")

	// ErrStaleStitch is returned when a stitch task no longer matches the job's pending stitch
	ErrStaleStitch = errors.New("stitch is no longer pending")
)

// ValidationError describes a rejected field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidInput) true for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
