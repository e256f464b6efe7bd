package progression

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell "fix your input" from "try again later".
type Kind string

const (
	KindValidation  Kind = "VALIDATION_ERROR"
	KindOutOfOrder  Kind = "OUT_OF_ORDER_EVENT"
	KindPersistence Kind = "PERSISTENCE_FAILURE"
	KindConflict    Kind = "CONCURRENCY_CONFLICT"
	KindNotFound    Kind = "NOT_FOUND"
	KindForbidden   Kind = "FORBIDDEN"
	KindCanceled    Kind = "CANCELED"
)

// Error is the structured error returned by the engine and the export path.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when the target carries no message,
// so errors.Is(err, ErrValidation) works for every validation failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrOutOfOrderEvent     = &Error{Kind: KindOutOfOrder}
	ErrPersistence         = &Error{Kind: KindPersistence}
	ErrConcurrencyConflict = &Error{Kind: KindConflict}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrCanceled            = &Error{Kind: KindCanceled}

	ErrInvalidEffortTier = errors.New("invalid effort tier")
	ErrExportFormat      = errors.New("unsupported export format")
)

// Validation builds a validation error with a human message.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Persistence wraps a storage failure.
func Persistence(msg string, err error) error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Canceled wraps a context error. The caller's context ended before anything
// was committed, so the same request can be sent again.
func Canceled(msg string, err error) error {
	return &Error{Kind: KindCanceled, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindPersistence, KindConflict, KindCanceled:
		return true
	default:
		return false
	}
}
