package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a neoprompts error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404
	ErrFileNotFound    ErrorCode = "FILE_NOT_FOUND"   // 404
	ErrConflict        ErrorCode = "CONFLICT"         // 409
	ErrNotConfigured   ErrorCode = "NOT_CONFIGURED"   // 412
	ErrMalformedImport ErrorCode = "MALFORMED_IMPORT" // 422
	ErrCancelled       ErrorCode = "CANCELLED"        // 499
	ErrInternal        ErrorCode = "INTERNAL"         // 500
	ErrStoreFailure    ErrorCode = "STORE_FAILURE"    // 500
	ErrRemoteFailure   ErrorCode = "REMOTE_FAILURE"   // 502
)

// Error represents a structured error with code, status, and details.
// Cause, when set, is the underlying failure reported by a backing store.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entity.
func NewNotFound(kind, id string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *Error {
	return &Error{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConflict creates a 409 error for uniqueness violations and concurrent operations.
func NewConflict(msg string) *Error {
	return &Error{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewNotConfigured creates a 412 error for a store that lacks the configuration it needs.
func NewNotConfigured(msg string) *Error {
	return &Error{
		Code:    ErrNotConfigured,
		Status:  412,
		Message: msg,
	}
}

// NewMalformedImport creates a 422 error for import payloads that cannot be applied.
func NewMalformedImport(msg string) *Error {
	return &Error{
		Code:    ErrMalformedImport,
		Status:  422,
		Message: msg,
	}
}

// NewCancelled creates a 499 error when an operation is abandoned because its context ended.
func NewCancelled(op string) *Error {
	return &Error{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"op": op},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// NewStoreFailure creates a 500 error wrapping a backing-store failure.
func NewStoreFailure(op string, cause error) *Error {
	return &Error{
		Code:    ErrStoreFailure,
		Status:  500,
		Message: fmt.Sprintf("%s failed", op),
		Details: map[string]any{"op": op},
		Cause:   cause,
	}
}

// NewRemoteFailure creates a 502 error carrying the remote service's own status, code, and message.
func NewRemoteFailure(op string, status int, code, msg string) *Error {
	if msg == "" {
		msg = fmt.Sprintf("remote service returned status %d", status)
	}
	return &Error{
		Code:    ErrRemoteFailure,
		Status:  502,
		Message: fmt.Sprintf("%s: %s", op, msg),
		Details: map[string]any{"op": op, "remote_status": status, "remote_code": code},
	}
}

// Is checks if err, or any error it wraps, is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}
