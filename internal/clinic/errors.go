package clinic

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindConflict   Kind = "CONFLICT"
	KindNotFound   Kind = "NOT_FOUND"
	KindForbidden  Kind = "FORBIDDEN"
	KindBadRequest Kind = "BAD_REQUEST"
	KindUpstream   Kind = "UPSTREAM_FAILURE"
	KindInternal   Kind = "INTERNAL"
)

// Error is the error type returned across package boundaries.
// A kind-only Error (empty Msg) matches any Error of the same kind in errors.Is.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrBadRequest = &Error{Kind: KindBadRequest}
	ErrUpstream   = &Error{Kind: KindUpstream}
)

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
