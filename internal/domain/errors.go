package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"         // bad input, unknown tier or metric
	EUNAUTHORIZED = "unauthorized"    // missing or wrong API token
	ENOTFOUND     = "not_found"       // no account for the user id
	ECONFLICT     = "conflict"        // account already provisioned
	ERATELIMIT    = "rate_limit"      // too many failed or total requests
	ESTORAGE      = "storage_failure" // store unavailable or constraint violation
	EINTERNAL     = "internal"        // anything unclassified
)

const genericMessage = "An internal error occurred. Please try again later."

// Error is the error type returned by services. Op names the failing
// operation ("quota.increment"); Message is safe to show to API clients
// unless Code is ESTORAGE or EINTERNAL.
type Error struct {
	Code    string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, op, message string, err error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// Errorf creates an Error with a formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return newError(code, op, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches a code, op and message to err.
func Wrap(err error, code, op, message string) *Error {
	return newError(code, op, message, err)
}

func NotFound(op, resource, id string) *Error {
	return newError(ENOTFOUND, op, fmt.Sprintf("%s with ID %q not found", resource, id), nil)
}

func Invalid(op, message string) *Error {
	return newError(EINVALID, op, message, nil)
}

func Conflict(op, message string) *Error {
	return newError(ECONFLICT, op, message, nil)
}

// StorageFailure wraps an error returned by the store.
func StorageFailure(err error, op, message string) *Error {
	return newError(ESTORAGE, op, message, err)
}

func Internal(err error, op, message string) *Error {
	return newError(EINTERNAL, op, message, err)
}

func asError(err error) (*Error, bool) {
	var e *Error
	if err == nil || !errors.As(err, &e) {
		return nil, false
	}
	return e, true
}

// ErrorCode returns the code of the outermost Error in err's chain.
// Errors from outside the domain are EINTERNAL.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := asError(err); ok {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the client-facing message. Storage and internal
// failures get a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	e, ok := asError(err)
	if !ok || e.Code == EINTERNAL || e.Code == ESTORAGE {
		return genericMessage
	}
	return e.Message
}

func ErrorOp(err error) string {
	if e, ok := asError(err); ok {
		return e.Op
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// ValidationError carries per-field messages for request bodies.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError creates a ValidationError holding one field message.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op:     op,
		Fields: map[string]string{field: message},
	}
}
