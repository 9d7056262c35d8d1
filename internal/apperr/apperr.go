package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind string

const (
	// KindValidation is a malformed input. Reported without any state change.
	KindValidation Kind = "validation"
	// KindNotFound means the addressed stay, line or reservation does not exist.
	KindNotFound Kind = "not_found"
	// KindGuard is an expected precondition failure that blocks a transition.
	KindGuard Kind = "guard"
	// KindConflict means another stay (or a concurrent writer) holds the resource.
	KindConflict Kind = "conflict"
	// KindUnavailable is a timeout or transport failure of an external collaborator.
	KindUnavailable Kind = "external_unavailable"
	// KindInvariant is a programming or integration fault. Never swallowed.
	KindInvariant Kind = "invariant"
)

// Error carries a Kind plus a stable Code naming the guard or invariant involved.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg = e.Code + ": " + e.Message
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code. A target with an empty Kind matches any kind, which lets
// packages export sentinels such as folio.ErrVoidNotAllowed that match the error
// regardless of whether it was raised as a validation or an invariant failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// Sentinel returns a code-only error for use with errors.Is.
func Sentinel(code string) *Error {
	return &Error{Code: code}
}

// New builds an error of the given kind.
func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, code string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(code, format string, args ...any) *Error {
	return New(KindValidation, code, format, args...)
}

func Guard(code, format string, args ...any) *Error {
	return New(KindGuard, code, format, args...)
}

func Invariant(code, format string, args ...any) *Error {
	return New(KindInvariant, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return New(KindConflict, code, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return New(KindNotFound, code, format, args...)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// CodeOf reports the code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
