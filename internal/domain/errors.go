package domain

import (
	"errors"
	"fmt"
)

// Code is the externally visible error vocabulary.
type Code string

const (
	CodeUnauthenticated   Code = "unauthenticated"
	CodeValidation        Code = "validation"
	CodeNotFound          Code = "not_found"
	CodeInactive          Code = "inactive"
	CodeConflict          Code = "conflict"
	CodeBlackout          Code = "blackout"
	CodeInvalidTransition Code = "invalid_transition"
	CodeForbidden         Code = "forbidden"
	CodeUnavailable       Code = "temporarily_unavailable"
	CodeDeadlineExceeded  Code = "deadline_exceeded"
	CodeInternal          Code = "internal"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by code so callers can compare against the sentinel
// constructors with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func Unauthenticated(msg string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: msg}
}

func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func Inactive(msg string) *Error {
	return &Error{Code: CodeInactive, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

func Blackout(reason string) *Error {
	return &Error{Code: CodeBlackout, Message: fmt.Sprintf("dates include a blackout day: %s", reason)}
}

func InvalidTransition(from, to BookingStatus) *Error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf("cannot move booking from %s to %s", from, to)}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func Unavailable(msg string, err error) *Error {
	return &Error{Code: CodeUnavailable, Message: msg, Err: err}
}

func DeadlineExceeded(msg string) *Error {
	return &Error{Code: CodeDeadlineExceeded, Message: msg}
}

func Internal(msg string, err error) *Error {
	return &Error{Code: CodeInternal, Message: msg, Err: err}
}

// CodeOf extracts the error code, defaulting to internal for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
