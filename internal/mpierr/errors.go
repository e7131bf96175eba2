// Package mpierr defines the error taxonomy shared by every component of the
// matching and persistence cores, independent of any particular collaborator
// (database driver, index, transport).
package mpierr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error independent of its message, so callers can branch
// on failure category without string matching.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidationFailed    Kind = "validation_failed"
	KindUniquenessViolated Kind = "uniqueness_violated"
	KindDatabase           Kind = "database"
	KindIndex              Kind = "index"
	KindAudit              Kind = "audit"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Error is the structured error type returned across component boundaries.
// It carries a Kind for programmatic dispatch and a human-readable message;
// it deliberately carries nothing about transport (HTTP status, FHIR
// OperationOutcome, etc) — mapping Kind to a wire representation is the
// caller's responsibility.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// ValidationFailed builds a KindValidationFailed error.
func ValidationFailed(message string) *Error { return New(KindValidationFailed, message) }

// UniquenessViolated builds a KindUniquenessViolated error.
func UniquenessViolated(message string) *Error { return New(KindUniquenessViolated, message) }

// Database builds a KindDatabase error wrapping a driver-level cause.
func Database(message string, cause error) *Error { return Wrap(KindDatabase, message, cause) }

// Index builds a KindIndex error wrapping a blocking-index failure.
func Index(message string, cause error) *Error { return Wrap(KindIndex, message, cause) }

// Audit builds a KindAudit error wrapping an audit-writer failure.
func Audit(message string, cause error) *Error { return Wrap(KindAudit, message, cause) }

// Cancelled builds a KindCancelled error.
func Cancelled(message string) *Error { return New(KindCancelled, message) }

// Internal builds a KindInternal error for programming-invariant violations.
func Internal(message string) *Error { return New(KindInternal, message) }

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
