// Package apperr implements the error taxonomy from the error handling
// design: a closed set of error kinds, each mapped to an HTTP status, used
// by every handler instead of ad hoc status literals.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds from the error handling design.
type Kind string

const (
	Validation     Kind = "validation"
	Authorization  Kind = "authorization"
	NotFound       Kind = "not_found"
	Conflict       Kind = "conflict"
	CreditExhausted Kind = "credit_exhausted"
	ProviderTransient Kind = "provider_transient"
	ProviderPermanent Kind = "provider_permanent"
	Internal       Kind = "internal"
)

// Error is an application error carrying a Kind for HTTP/worker
// classification plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(k Kind) int {
	switch k {
	case Validation:
		return http.StatusUnprocessableEntity
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case CreditExhausted:
		return http.StatusPaymentRequired
	case ProviderTransient, ProviderPermanent, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a worker should nack-and-retry (true) or
// ack-and-dead-letter/fail (false) for the given kind.
func Retryable(k Kind) bool {
	return k == ProviderTransient
}
