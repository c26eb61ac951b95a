// Package apperr defines the error taxonomy shared by the booking and billing
// services. Services return these typed errors; the HTTP layer maps the kind
// to a status code and the transaction runner uses it to decide what may be
// retried.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and rendering.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindForbidden
	KindTransient
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindTransient:
		return "transient"
	case KindInvariant:
		return "invariant"
	default:
		return "internal"
	}
}

// Error is a classified error with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error { return newf(KindValidation, format, args...) }
func Conflict(format string, args ...interface{}) error   { return newf(KindConflict, format, args...) }
func NotFound(format string, args ...interface{}) error   { return newf(KindNotFound, format, args...) }
func Forbidden(format string, args ...interface{}) error  { return newf(KindForbidden, format, args...) }
func Invariant(format string, args ...interface{}) error  { return newf(KindInvariant, format, args...) }

// Transient wraps a store failure that may succeed when the whole unit of
// work is re-executed.
func Transient(err error, msg string) error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(k Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the client-facing message of a classified error. Internal
// errors return the fallback so driver details are not leaked.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindTransient {
		return e.Message
	}
	return fallback
}

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
