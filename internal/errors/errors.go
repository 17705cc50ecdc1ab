// Package errors defines the error taxonomy shared by the checkout service.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrNotFound            = stderrors.New("not found")
	ErrInvalidSignature    = stderrors.New("invalid payment signature")
	ErrPersistenceConflict = stderrors.New("order was modified concurrently")
	ErrUnauthorized        = stderrors.New("unauthorized")
	ErrForbidden           = stderrors.New("forbidden")
)

// ValidationError reports caller input that was rejected before any mutation.
type ValidationError struct {
	Field   string            `json:"field"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Details: map[string]string{field: message},
	}
}

// DeliveryError wraps a failed email or notification delivery.
type DeliveryError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery to %s failed: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError wraps err for the given channel and recipient.
func NewDeliveryError(channel, recipient string, err error) *DeliveryError {
	return &DeliveryError{Channel: channel, Recipient: recipient, Err: err}
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func New(text string) error {
	return stderrors.New(text)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return stderrors.As(err, &v)
}
