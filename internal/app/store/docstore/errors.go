package docstore

import (
	"errors"
	"fmt"

	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
)

// Code classifies store failures independently of the backend.
type Code string

const (
	CodeUnknown           Code = "unknown"
	CodeNotFound          Code = "not-found"
	CodeConflict          Code = "conflict"
	CodeResourceExhausted Code = "resource-exhausted"
	CodeUnavailable       Code = "unavailable"
	CodeCanceled          Code = "canceled"
)

// Error is a classified store failure.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// NewError wraps err with code. A nil err gets a message from the code.
func NewError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match store failures against the engine's error kinds.
func (e *Error) Is(target error) bool {
	switch target {
	case turnerr.ErrNotFound:
		return e.Code == CodeNotFound
	case turnerr.ErrTransientStore:
		return e.Code == CodeResourceExhausted || e.Code == CodeUnavailable
	}
	return false
}

// CodeOf returns the classification of err, or CodeUnknown.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// IsResourceExhausted reports whether err is a quota or capacity failure.
func IsResourceExhausted(err error) bool {
	return CodeOf(err) == CodeResourceExhausted
}
