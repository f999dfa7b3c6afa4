package types

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers match with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failed")
	ErrNotification = errors.New("notification failed")
	ErrPublish      = errors.New("publish failed")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }
