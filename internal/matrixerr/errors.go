// Package matrixerr defines the error taxonomy surfaced by the
// orchestration core: configuration/factory errors are fatal at startup,
// mode/state errors are recoverable, and quorum timeouts leave the system
// in a defined, degraded intermediate state.
package matrixerr

import (
	"errors"
	"fmt"
)

// Kind identifies which row of the error taxonomy an error belongs to.
type Kind string

const (
	ConfigurationMalformed Kind = "ConfigurationMalformed"
	UnknownComponentType   Kind = "UnknownComponentType"
	UnknownMode            Kind = "UnknownMode"
	InvalidState           Kind = "InvalidState"
	QuorumTimeout          Kind = "QuorumTimeout"
	ComponentError         Kind = "ComponentError"
	ResourceError          Kind = "ResourceError"
)

// Error wraps a Kind with a human-readable message and an optional cause.
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

func (e *Error) Unwrap() error { return e.Cause }

// New returns an *Error of the given kind carrying message and no cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind carried by err, and false if err does not carry one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
