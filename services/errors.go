package services

import (
	stderrors "errors"
	"fmt"

	"educenter_go/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrorKind classifies workflow failures for the HTTP layer.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindInvalidState ErrorKind = "invalid_state"
	KindMalformed    ErrorKind = "malformed"
	KindScopeDenied  ErrorKind = "scope_denied"
	KindConflict     ErrorKind = "conflict"
	KindInternal     ErrorKind = "internal"
)

// Error is returned by workflows when an invariant rejects the request.
// Nothing has been written when one is returned.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidStatef(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Malformedf(format string, args ...interface{}) error {
	return &Error{Kind: KindMalformed, Message: fmt.Sprintf(format, args...)}
}

func Deniedf(format string, args ...interface{}) error {
	return &Error{Kind: KindScopeDenied, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a workflow error, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// notFoundOr turns a missing or out-of-scope row into a NotFound error with
// msg and wraps anything else.
func notFoundOr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return NotFoundf("%s", msg)
	}
	return errors.Wrap(err, msg)
}

// dbErr wraps a write failure, turning unique violations into Conflict.
func dbErr(err error, conflictMsg, op string) error {
	if err == nil {
		return nil
	}
	if utils.IsUniqueViolation(err) {
		return Conflictf("%s", conflictMsg)
	}
	return errors.Wrap(err, op)
}
