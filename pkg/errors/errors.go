// Package errors defines common error types for the shuffle engine.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the shuffle engine.
const (
	CodeUnknown             = "UNKNOWN_ERROR"
	CodeSchemaError         = "SCHEMA_ERROR"
	CodeIOError             = "IO_ERROR"
	CodeShapeMismatch       = "SHAPE_MISMATCH"
	CodeConservationFailure = "CONSERVATION_FAILURE"
	CodeCollectiveTimeout   = "COLLECTIVE_TIMEOUT"
	CodeTransportError      = "TRANSPORT_ERROR"
	CodeAssignmentOutOfRange = "ASSIGNMENT_OUT_OF_RANGE"
	CodeBadTopology         = "BAD_TOPOLOGY"
	CodeConfigError         = "CONFIG_ERROR"
)

// AppError represents a fatal engine error with a code, a human message and
// an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Sentinel errors, one per fatal error kind the engine distinguishes.
var (
	ErrSchemaError         = New(CodeSchemaError, "schema error")
	ErrIOError             = New(CodeIOError, "I/O error")
	ErrShapeMismatch       = New(CodeShapeMismatch, "shape mismatch")
	ErrConservationFailure = New(CodeConservationFailure, "conservation check failed")
	ErrCollectiveTimeout   = New(CodeCollectiveTimeout, "collective operation timed out")
	ErrTransportError      = New(CodeTransportError, "transport error")
	ErrAssignmentOutOfRange = New(CodeAssignmentOutOfRange, "partition assignment out of range")
	ErrBadTopology         = New(CodeBadTopology, "bad cluster topology")
	ErrConfigError         = New(CodeConfigError, "configuration error")
)

// IsSchemaError reports whether err is (or wraps) a schema error.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchemaError)
}

// IsConservationFailure reports whether err is (or wraps) a conservation failure.
func IsConservationFailure(err error) bool {
	return errors.Is(err, ErrConservationFailure)
}

// IsCollectiveTimeout reports whether err is (or wraps) a collective timeout.
func IsCollectiveTimeout(err error) bool {
	return errors.Is(err, ErrCollectiveTimeout)
}

// GetErrorCode extracts the error code from an error, or CodeUnknown.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
