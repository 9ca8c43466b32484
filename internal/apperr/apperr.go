// Package apperr carries the workflow error taxonomy. Every error returned by a
// service is either one of these kinds or an unexpected infrastructure failure.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindPrecondition Kind = "precondition_failed"
	KindNotFound     Kind = "not_found"
)

// Error is a classified, user-facing failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newf(KindForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newf(KindConflict, format, args...)
}

func PreconditionFailed(format string, args ...interface{}) error {
	return newf(KindPrecondition, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

// KindOf returns the taxonomy kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
