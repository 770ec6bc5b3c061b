package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")

	// ErrWorkerCorrupted marks a failure that left a pooled worker unusable.
	// The orchestrator destroys the worker instead of returning it to the pool.
	ErrWorkerCorrupted = errors.New("worker corrupted")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput and ErrValidationFailed,
// so validation failures classify as InvalidInput without extra wrapping.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput || target == ErrValidationFailed
}
