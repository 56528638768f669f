package common

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel errors. Every error produced by the services is marked with one of
// these so callers can branch with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotFound         = errors.New("not found")
	ErrExpired          = errors.New("expired")
	ErrOverpayment      = errors.New("overpayment")
	ErrMethodNotAllowed = errors.New("payment method not allowed")
	ErrTransport        = errors.New("transport error")

	statusCodeMap = map[error]int{
		ErrValidation:       http.StatusBadRequest,
		ErrInvalidState:     http.StatusConflict,
		ErrNotFound:         http.StatusNotFound,
		ErrExpired:          http.StatusGone,
		ErrOverpayment:      http.StatusUnprocessableEntity,
		ErrMethodNotAllowed: http.StatusUnprocessableEntity,
		ErrTransport:        http.StatusBadGateway,
	}

	errorCodeMap = map[error]string{
		ErrValidation:       "VALIDATION_ERROR",
		ErrInvalidState:     "INVALID_STATE",
		ErrNotFound:         "NOT_FOUND",
		ErrExpired:          "EXPIRED",
		ErrOverpayment:      "OVERPAYMENT",
		ErrMethodNotAllowed: "METHOD_NOT_ALLOWED",
		ErrTransport:        "TRANSPORT_ERROR",
	}
)

// ValidationError carries the offending field so handlers can report it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) error {
	return errors.Mark(&ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}, ErrValidation)
}

func NewInvalidStateError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidState)
}

func NewNotFoundError(resource string, id any) error {
	return errors.Mark(errors.Newf("%s %v not found", resource, id), ErrNotFound)
}

func NewExpiredError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrExpired)
}

func NewOverpaymentError(total, attempted fmt.Stringer) error {
	err := errors.Newf("payments would total %s, exceeding invoice total %s", attempted, total)
	return errors.Mark(errors.WithHint(err, "reduce the amount to the outstanding balance"), ErrOverpayment)
}

func NewMethodNotAllowedError(method string) error {
	return errors.Mark(errors.Newf("payment method %q is not allowed for this link", method), ErrMethodNotAllowed)
}

// WrapTransportError marks a delivery failure on a notification or gateway channel.
func WrapTransportError(err error, channel string) error {
	return errors.Mark(errors.Wrapf(err, "%s delivery failed", channel), ErrTransport)
}

// HTTPStatusFromErr maps a service error onto an HTTP status code
func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// ErrorCode returns the machine readable code used in error responses
func ErrorCode(err error) string {
	for e, code := range errorCodeMap {
		if errors.Is(err, e) {
			return code
		}
	}
	return "SERVER_ERROR"
}
