package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCartFull  = fmt.Errorf("cart cannot hold more than %d items", MaxCartItems)
	ErrEmptyCart = errors.New("cart is empty")
)

// ValidationError marks a malformed request rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
