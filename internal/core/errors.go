package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized covers missing, malformed, invalid or expired credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyMaterialized is returned when an occurrence of a template was
	// already created for the given due date.
	ErrAlreadyMaterialized = errors.New("occurrence already materialized")
)

// ValidationError describes missing or malformed input. Its message is safe
// to show to the caller.
type ValidationError struct {
	Field   string
	Message string
	// Missing lists required fields that were absent, when known.
	Missing map[string]bool
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PersistenceError wraps a store failure. The wrapped error is for logs only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError unless it already carries a
// domain meaning (validation, not found, unauthorized).
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var pe *PersistenceError
	switch {
	case errors.As(err, &ve), errors.As(err, &pe),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrAlreadyMaterialized):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NewEmailTakenError reports a registration with an email already in use.
func NewEmailTakenError() *ValidationError {
	return NewValidationError("email", "email already registered")
}
