package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service outcome. Every business-rule failure carries one.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidState     Kind = "invalid_state"
	KindNotParticipant   Kind = "not_participant"
	KindSelfJoin         Kind = "self_join"
	KindOutOfTurn        Kind = "out_of_turn"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindConflict         Kind = "conflict"
	KindValidation       Kind = "validation_error"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	// KindUnavailable marks infrastructure failures; callers may retry.
	KindUnavailable Kind = "unavailable"
)

// Error is the structured error returned by every service operation.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState     = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrNotParticipant   = &Error{Kind: KindNotParticipant, Message: "not a participant"}
	ErrSelfJoin         = &Error{Kind: KindSelfJoin, Message: "cannot join own battle"}
	ErrOutOfTurn        = &Error{Kind: KindOutOfTurn, Message: "not your turn"}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded, Message: "too many active battles"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "concurrent update, re-fetch and retry"}
	ErrValidation       = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden        = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrUnavailable      = &Error{Kind: KindUnavailable, Message: "store unavailable"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// unavailable wraps an infrastructure error. Errors that already carry a Kind pass through.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: KindUnavailable, Message: op, Cause: err}
}

// KindOf returns the Kind of err, KindUnavailable for foreign errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnavailable
}
