// Package apperr defines the error taxonomy shared by the store, the gateway
// adapter, the reconciliation services and the HTTP boundary.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrStateConflict      = errors.New("state conflict")
	ErrSignatureInvalid   = errors.New("signature invalid")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrAmountMismatch     = errors.New("amount mismatch")
)

// ValidationError names the offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Conflict reports an illegal transition for an order.
func Conflict(orderID any, from, to any) error {
	return fmt.Errorf("order %v: %v -> %v: %w", orderID, from, to, ErrStateConflict)
}

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrStateConflict):
		return "state_conflict"

	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"

	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"

	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrAmountMismatch):
		return http.StatusBadRequest

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrStateConflict):
		return http.StatusConflict

	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}
