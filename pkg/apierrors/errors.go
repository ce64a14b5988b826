// Package apierrors defines the Reddwarf error taxonomy shared by the KV
// engine, the version store, and the API layer. Every error that crosses a
// layer boundary carries a Kind drawn from a closed vocabulary so the API
// layer can map it to an HTTP status and a Status response without
// inspecting error strings.
package apierrors

import (
	"errors"
	"fmt"
)

// Kind is the closed vocabulary of error categories described in spec §7.
type Kind string

const (
	NotFound         Kind = "NotFound"
	AlreadyExists    Kind = "AlreadyExists"
	Conflict         Kind = "Conflict"
	BadRequest       Kind = "BadRequest"
	ValidationFailed Kind = "ValidationFailed"
	Internal         Kind = "Internal"
	Corruption       Kind = "Corruption"
)

// Error is the single error type that flows between KV, VS and API.
type Error struct {
	Kind    Kind
	Message string
	// Err wraps the underlying cause, if any, for %w-style chains.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &apierrors.Error{Kind: apierrors.NotFound}) style
// sentinels work by comparing kinds rather than identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func new_(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return new_(NotFound, format, args...)
}

func AlreadyExistsf(format string, args ...interface{}) *Error {
	return new_(AlreadyExists, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return new_(Conflict, format, args...)
}

func BadRequestf(format string, args ...interface{}) *Error {
	return new_(BadRequest, format, args...)
}

func ValidationFailedf(format string, args ...interface{}) *Error {
	return new_(ValidationFailed, format, args...)
}

func Internalf(format string, args ...interface{}) *Error {
	return new_(Internal, format, args...)
}

func Corruptionf(format string, args ...interface{}) *Error {
	return new_(Corruption, format, args...)
}

// Wrap attaches a Kind to an arbitrary error, preserving it for %w chains.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind of err, defaulting to Internal for errors that
// never passed through this package (e.g. raw I/O errors from bbolt).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
