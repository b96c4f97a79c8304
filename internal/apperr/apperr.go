// Package apperr defines the typed failures every toolshelf operation
// returns. Callers branch on the Kind, never on message text.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindUnexpected:     "unexpected",
	KindValidation:     "validation",
	KindAuthentication: "authentication",
	KindAuthorization:  "authorization",
	KindNotFound:       "not_found",
	KindConflict:       "conflict",
	KindUnavailable:    "unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Op names the operation that failed
// (e.g. "team.ChangeRole"); Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind, so that
// errors.Is(err, apperr.ErrConflict) matches any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrUnavailable    = &Error{Kind: KindUnavailable}
	ErrUnexpected     = &Error{Kind: KindUnexpected}
)

func newErr(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func Validation(op, msg string) error     { return newErr(KindValidation, op, msg) }
func Authentication(op, msg string) error { return newErr(KindAuthentication, op, msg) }
func Authorization(op, msg string) error  { return newErr(KindAuthorization, op, msg) }
func NotFound(op, msg string) error       { return newErr(KindNotFound, op, msg) }
func Conflict(op, msg string) error       { return newErr(KindConflict, op, msg) }

// Unavailable marks a transient failure; the operation may be retried.
func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Op: op, Message: "service temporarily unavailable", Err: err}
}

// Unexpected wraps an unclassified failure.
func Unexpected(op string, err error) error {
	return &Error{Kind: KindUnexpected, Op: op, Message: "unexpected error", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Context
// deadline and cancellation count as unavailable; anything else that is
// not an *Error is unexpected.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnexpected
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindUnexpected
}

// Message returns the caller-safe message for err. Unexpected failures
// never leak their cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnexpected && e.Message != "" {
		return e.Message
	}
	switch KindOf(err) {
	case KindUnavailable:
		return "service temporarily unavailable"
	default:
		return "unexpected error"
	}
}

// WithOp returns err with Op set when err is an *Error that has none.
func WithOp(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		cp := *e
		cp.Op = op
		return &cp
	}
	return err
}
