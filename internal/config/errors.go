package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is matched by every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Error describes a rejected configuration value. Configuration errors are
// raised before any packet is produced and are never retried.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Errorf builds a configuration error for field.
func Errorf(field, format string, args ...any) error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// validationError joins several problems into a single configuration error.
type validationError struct {
	errs []error
}

func (v *validationError) Error() string {
	messages := make([]string, 0, len(v.errs))
	for _, err := range v.errs {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func (v *validationError) Unwrap() []error { return append(v.errs, ErrInvalid) }

func writeErr(allErrors []error) error {
	if len(allErrors) == 0 {
		return nil
	}
	if len(allErrors) == 1 {
		return allErrors[0]
	}
	return &validationError{errs: allErrors}
}
