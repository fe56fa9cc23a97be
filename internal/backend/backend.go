// Package backend defines the contract between the gateway and the two
// answer-producing services.
//
// The gateway needs exactly one capability from each backend: answer a
// query, failing with a classifiable error. Everything else (routing,
// fallback, breakers, caching) lives above this interface.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// ID identifies one of the two backends.
type ID string

const (
	// Cloud is the hosted large model.
	Cloud ID = "cloud"

	// Local is the on-device model server.
	Local ID = "local"
)

// Backend produces an answer for one query. Process blocks until the
// answer is complete or ctx expires; the caller supplies the deadline.
type Backend interface {
	Name() ID
	Process(ctx context.Context, query string) (string, error)
	Close() error
}

// StreamCallback receives partial output as the model produces it.
// final is true exactly once, with the last chunk (possibly empty).
type StreamCallback func(chunk string, final bool)

// StreamingCapable is implemented by backends that can deliver partial
// output while the full answer is still being generated. The gateway
// checks for this interface rather than the backend's concrete type.
type StreamingCapable interface {
	SetStreamingCallback(fn StreamCallback)
}

// ErrorType classifies a backend failure for the circuit breaker and
// telemetry.
type ErrorType int

const (
	// ErrTypeProcessing covers generic failures: non-2xx responses,
	// malformed bodies, model errors.
	ErrTypeProcessing ErrorType = iota

	// ErrTypeUnavailable means the backend cannot be reached at all:
	// connection refused, missing credentials, process not running.
	ErrTypeUnavailable

	// ErrTypeTimeout means the call exceeded its deadline.
	ErrTypeTimeout
)

// String returns the snake_case name used in logs.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeUnavailable:
		return "unavailable"
	case ErrTypeTimeout:
		return "timeout"
	default:
		return "processing"
	}
}

// Sentinel errors for errors.Is checks.
var (
	// ErrUnavailable matches any unavailable-class backend error.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrTimeout matches any timeout-class backend error.
	ErrTimeout = errors.New("backend timed out")
)

// Error is a classified backend failure.
type Error struct {
	Backend ID
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s backend: %s", e.Backend, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is maps the error's class onto the package sentinels so callers can use
// errors.Is without knowing the concrete type.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Type == ErrTypeUnavailable
	case ErrTimeout:
		return e.Type == ErrTypeTimeout
	}
	return false
}

// NewError builds a classified backend error.
func NewError(id ID, t ErrorType, message string, cause error) *Error {
	return &Error{Backend: id, Type: t, Message: message, Cause: cause}
}

// IsUnavailable reports whether err is an unavailable-class failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsTimeout reports whether err is a timeout-class failure, including a
// plain context deadline from the per-call timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
