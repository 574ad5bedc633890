// Package errors provides coded errors for the offline sync layer.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a failure so callers can branch on it without string matching.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Storage errors
	ErrStorage          ErrorCode = "STORAGE_ERROR"
	ErrSchemaVersion    ErrorCode = "SCHEMA_VERSION"
	ErrUnknownPartition ErrorCode = "UNKNOWN_PARTITION"

	// Remote API errors
	ErrNetwork ErrorCode = "NETWORK_ERROR"
	ErrHTTP    ErrorCode = "HTTP_ERROR"
	ErrAuth    ErrorCode = "AUTH_FAILED"

	// Offline layer errors
	ErrNotCached       ErrorCode = "NOT_CACHED"
	ErrQueueExhausted  ErrorCode = "QUEUE_EXHAUSTED"
	ErrOfflineUnmapped ErrorCode = "OFFLINE_UNMAPPED"
	ErrConfigInvalid   ErrorCode = "CONFIG_INVALID"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
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

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether any error in err's chain carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or ErrInternal when
// the chain carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
