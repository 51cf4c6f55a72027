// Package errs defines the error kinds the trading core uses to distinguish
// validation failures, missing entities, risk rejections, and transient vs.
// fatal exchange errors, matched with errors.Is/errors.As instead of string
// comparison.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for dispatch purposes (retry vs. abort vs. surface
// to the operator).
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindConflict
	KindRiskRejected
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRiskRejected:
		return "risk_rejected"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a domain error carrying a Kind alongside the usual message/cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, errs.NotFound("")) style kind comparisons.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error     { return New(KindValidation, message) }
func NotFound(message string) *Error       { return New(KindNotFound, message) }
func Conflict(message string) *Error       { return New(KindConflict, message) }
func RiskRejected(message string) *Error   { return New(KindRiskRejected, message) }
func Transient(message string, cause error) *Error {
	return Wrap(KindTransient, message, cause)
}
func Fatal(message string, cause error) *Error {
	return Wrap(KindFatal, message, cause)
}

// IsKind reports whether err (or any error it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
