package service

import (
	"errors"
	"fmt"
)

var (
	ErrPolicyNotAccepted = errors.New("cancellation policy not accepted")
	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrTooManyAttempts   = errors.New("too many checkout attempts")
	ErrPaymentLink       = errors.New("payment link unavailable")
)

// ValidationError reports a bad or missing draft field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
