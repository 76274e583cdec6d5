// Package apperr defines the typed failures returned by the auth core. Every
// business-rule failure is an *Error with a Kind; persistence and hashing
// failures are wrapped as KindInternal and keep their cause for logging only.
package apperr

import (
	stderrors "errors"
	"net/http"

	"github.com/pkg/errors"
)

// Kind is the machine-readable failure category sent to clients as "code".
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindConflict           Kind = "CONFLICT"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindForbidden          Kind = "FORBIDDEN"
	KindTokenInvalid       Kind = "TOKEN_INVALID"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindInternal           Kind = "INTERNAL"
)

var statusByKind = map[Kind]int{
	KindValidation:         http.StatusBadRequest,
	KindConflict:           http.StatusConflict,
	KindInvalidCredentials: http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindTokenInvalid:       http.StatusUnauthorized,
	KindUnauthorized:       http.StatusUnauthorized,
	KindRateLimited:        http.StatusTooManyRequests,
	KindInternal:           http.StatusInternalServerError,
}

// HTTPStatus returns the status code used when rendering k.
func (k Kind) HTTPStatus() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is a typed auth failure.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.ErrTokenInvalid)
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Predefined failures with the user-visible messages of the original service.
// Messages never reveal whether an email exists or why a token was rejected.
var (
	ErrEmailInUse         = &Error{Kind: KindConflict, Message: "Email already registered"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "Invalid credentials"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "Account is not active"}
	ErrTokenInvalid       = &Error{Kind: KindTokenInvalid, Message: "Invalid or expired token"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "Invalid authentication token"}
	ErrRateLimited        = &Error{Kind: KindRateLimited, Message: "Too many attempts, try again later"}
)

// Validation builds a VALIDATION failure from rejected fields.
func Validation(fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "Invalid request", Fields: fields}
}

// Internal wraps a collaborator failure. The cause gets a stack trace and
// the op as context; clients only ever see a generic message.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal error", Err: errors.Wrap(err, op)}
}

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From returns err as an *Error, wrapping untyped errors as internal.
func From(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Internal("unclassified", err)
}
