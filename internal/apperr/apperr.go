package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the machine-distinguishable category of an error.
type Kind string

const (
	// KindValidation is returned for rejected input (unknown timeframe, bad bar count).
	KindValidation Kind = "bad_request"
	// KindUpstream is returned when an upstream call fails at the transport or HTTP level.
	KindUpstream Kind = "upstream_failure"
	// KindParse is returned for malformed upstream payloads.
	KindParse Kind = "parse"
	// KindInternal marks broken internal invariants.
	KindInternal Kind = "internal"
)

// Error carries a Kind, a human readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StackTracer is implemented by errors created with github.com/pkg/errors.
type StackTracer interface {
	StackTrace() errors.StackTrace
}

// StackTrace returns the stack recorded on the cause, if any.
func (e *Error) StackTrace() errors.StackTrace {
	if st, ok := e.Err.(StackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	e := &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
	if cause != nil {
		if _, ok := cause.(StackTracer); ok {
			e.Err = cause
		} else {
			e.Err = errors.WithStack(cause)
		}
	}
	return e
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) error {
	return newError(KindValidation, nil, format, args...)
}

// Upstream wraps a transport or status failure from an upstream call.
func Upstream(cause error, format string, args ...any) error {
	return newError(KindUpstream, cause, format, args...)
}

// Parse wraps a decoding failure.
func Parse(cause error, format string, args ...any) error {
	return newError(KindParse, cause, format, args...)
}

// Internal builds a KindInternal error.
func Internal(format string, args ...any) error {
	return newError(KindInternal, nil, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
