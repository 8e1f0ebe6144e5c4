// Package apperr defines the typed failures returned by the credential core.
//
// Expected conditions (bad input, missing entities, forbidden transitions) are
// reported as *Error values with a Kind. Storage and other unexpected failures
// are returned as plain wrapped errors and never carry a Kind.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an expected failure.
type Kind int

const (
	// Validation means the input was malformed or incomplete. No state was
	// changed.
	Validation Kind = iota + 1
	// NotFound means a referenced entity does not exist.
	NotFound
	// Policy means the input was well formed but the requested transition is
	// not allowed.
	Policy
	// Forbidden means the actor may not act on the referenced entity.
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Policy:
		return "policy"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error is a typed failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validationf returns a validation error.
func Validationf(op, format string, args ...any) *Error {
	return New(Validation, op, format, args...)
}

// NotFoundf returns a not-found error.
func NotFoundf(op, format string, args ...any) *Error {
	return New(NotFound, op, format, args...)
}

// Policyf returns a policy violation.
func Policyf(op, format string, args ...any) *Error {
	return New(Policy, op, format, args...)
}

// Forbiddenf returns a forbidden error.
func Forbiddenf(op, format string, args ...any) *Error {
	return New(Forbidden, op, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsValidation(err error) bool { return KindOf(err) == Validation }
func IsNotFound(err error) bool   { return KindOf(err) == NotFound }
func IsPolicy(err error) bool     { return KindOf(err) == Policy }
func IsForbidden(err error) bool  { return KindOf(err) == Forbidden }
