package apperr

import (
	"errors"
	"fmt"
)

// Re-exported standard library helpers
var (
	New    = errors.New
	Unwrap = errors.Unwrap
	Is     = errors.Is
	As     = errors.As
)

// Common error codes
const (
	CodeInternal        = "INTERNAL"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeConflict        = "CONFLICT"
	CodeTimeout         = "TIMEOUT"
)

// AppError carries a machine-readable code alongside the message
type AppError struct {
	code    string
	message string
	err     error
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.message, e.err.Error())
	}
	return e.message
}

// Code returns the error code
func (e *AppError) Code() string {
	return e.code
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.err
}

// NewAppError creates an application error
func NewAppError(code string, message string, err error) *AppError {
	return &AppError{
		code:    code,
		message: message,
		err:     err,
	}
}

// Wrap wraps an error preserving an existing AppError code
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if As(err, &appErr) {
		return NewAppError(appErr.Code(), message, err)
	}

	return NewAppError(CodeInternal, message, err)
}
