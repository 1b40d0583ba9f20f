// Package errors provides error code definitions for the Tableside POS core.
package errors

import "fmt"

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local storage errors
	ErrStorage               ErrorCode = "STORAGE_ERROR"
	ErrStorageNotInitialized ErrorCode = "STORAGE_NOT_INITIALIZED"
	ErrMigration             ErrorCode = "MIGRATION_FAILED"

	// Remote system errors
	ErrRemote            ErrorCode = "REMOTE_ERROR"
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrRemoteAuthFailed  ErrorCode = "REMOTE_AUTH_FAILED"
	ErrUploadFailed      ErrorCode = "UPLOAD_FAILED"

	// Queue and sync errors
	ErrQueue                ErrorCode = "QUEUE_ERROR"
	ErrSyncFailed           ErrorCode = "SYNC_FAILED"
	ErrUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// Domain errors
	ErrOrderNotFound    ErrorCode = "ORDER_NOT_FOUND"
	ErrItemNotFound     ErrorCode = "ORDER_ITEM_NOT_FOUND"
	ErrMenuItemNotFound ErrorCode = "MENU_ITEM_NOT_FOUND"
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

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code. It walks the wrapped
// error chain so codes survive fmt.Errorf("%w") wrapping.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal if it carries none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrInternal
}
