package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category returns the taxonomy name for an error
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrInvalidConfig):
		return "ErrInvalidConfig"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrDuplicate):
		return "ErrDuplicate"
	case errors.Is(err, ErrLocked):
		return "ErrLocked"
	case errors.Is(err, ErrStateMissing):
		return "ErrStateMissing"
	case errors.Is(err, ErrNoStaff):
		return "ErrNoStaff"
	case errors.Is(err, ErrWrongMailbox):
		return "ErrWrongMailbox"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapTransient keeps the cause and marks it transient
func WrapTransient(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", message, ErrTransient, err)
}

// NotFound wraps error as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps error as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// InvalidConfig wraps error as invalid config
func InvalidConfig(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidConfig)
}

// Transient wraps error as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// Internal wraps error as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// IsRetryable reports whether the next tick may succeed without intervention
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

// IsPoison reports whether a per-message failure should count toward quarantine
func IsPoison(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTransient),
		errors.Is(err, ErrNoStaff),
		errors.Is(err, ErrWrongMailbox),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
