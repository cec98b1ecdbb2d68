// Package apierr carries the gateway's error taxonomy so that every HTTP
// handler's error path reduces to "return apierr.Wrap(...)" and the HTTP
// boundary owns the sole status-code mapping.
package apierr

import "fmt"

// Kind classifies a failure the way the gateway's error handling design does.
type Kind string

const (
	Unauthenticated Kind = "unauthenticated"
	Forbidden       Kind = "forbidden"
	NotFound        Kind = "not_found"
	BadRequest      Kind = "bad_request"
	Conflict        Kind = "conflict"
	Upstream        Kind = "upstream"
	Timeout         Kind = "timeout"
)

// Error is a typed, classified failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As reports whether err (or something it wraps) is an *Error, and returns it.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	if ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}

func Unauthenticatedf(format string, a ...interface{}) *Error {
	return New(Unauthenticated, fmt.Sprintf(format, a...))
}

func Forbiddenf(format string, a ...interface{}) *Error {
	return New(Forbidden, fmt.Sprintf(format, a...))
}

func NotFoundf(format string, a ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, a...))
}

func BadRequestf(format string, a ...interface{}) *Error {
	return New(BadRequest, fmt.Sprintf(format, a...))
}

func Conflictf(format string, a ...interface{}) *Error {
	return New(Conflict, fmt.Sprintf(format, a...))
}

func Upstreamf(cause error, format string, a ...interface{}) *Error {
	return Wrap(Upstream, fmt.Sprintf(format, a...), cause)
}

func Timeoutf(format string, a ...interface{}) *Error {
	return New(Timeout, fmt.Sprintf(format, a...))
}
