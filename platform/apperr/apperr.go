// Package apperr provides standardized error kinds for the sync pipeline.
// Every failure path carries a Kind so callers can branch on the category of
// failure instead of inspecting concrete error types.
package apperr

import (
	"errors"
	"fmt"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindTransport indicates a network, timeout or malformed-response failure
	// talking to an external system. Recoverable on the next run.
	KindTransport
	// KindEmptyResult indicates an upstream reported that it has nothing new.
	KindEmptyResult
	// KindValidation indicates invalid input data.
	KindValidation
	// KindConfig indicates missing or invalid configuration.
	KindConfig
	// KindConflict indicates a conflict with existing state (e.g. a held lock).
	KindConflict
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindInternal indicates an unexpected internal error (store failures included).
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindEmptyResult:
		return "empty_result"
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a pipeline error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
	Status  int    // Upstream HTTP status, 0 when there was no response
	Body    []byte // Upstream response body (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the operation and returns the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithResponse attaches the upstream status code and body.
func (e *Error) WithResponse(status int, body []byte) *Error {
	e.Status = status
	e.Body = body
	return e
}

// Transport creates a transport error.
func Transport(message string, err error) *Error {
	return Wrap(KindTransport, message, err)
}

// EmptyResult creates an empty-result error.
func EmptyResult(message string) *Error {
	return New(KindEmptyResult, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Config creates a configuration error.
func Config(message string) *Error {
	return New(KindConfig, message)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Internal wraps an unexpected error.
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is present.
func GetKind(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
