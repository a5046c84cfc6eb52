package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a typed error code.
type ErrorCode string

const (
	// ErrorCodeSinkUnavailable means the destination could not be opened or created.
	ErrorCodeSinkUnavailable ErrorCode = "SINK_UNAVAILABLE"
	// ErrorCodeWriteFailure means an I/O error happened mid-stream (disk full, handle closed).
	ErrorCodeWriteFailure ErrorCode = "WRITE_FAILURE"
	// ErrorCodeSourceReadFailure means the source file is missing, unreadable or truncated.
	ErrorCodeSourceReadFailure ErrorCode = "SOURCE_READ_FAILURE"
	// ErrorCodeEncodeFailure means the spreadsheet encoder rejected a row or hit a limit.
	ErrorCodeEncodeFailure ErrorCode = "ENCODE_FAILURE"
	// ErrorCodePublishFailure means a finished document could not be uploaded.
	ErrorCodePublishFailure ErrorCode = "PUBLISH_FAILURE"
	// ErrorCodeInvalidConfig means the requested operation is not possible with the loaded configuration.
	ErrorCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrorCodeMisuse means the caller broke the session contract (write after close, overlap).
	ErrorCodeMisuse ErrorCode = "MISUSE"
	// ErrorCodeInternal represents an unexpected internal error.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a classified error with code, message and optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code.
// A target with an empty code matches any AppError.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error.
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewAppErrorWithErr creates a new application error with an underlying error.
func NewAppErrorWithErr(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FromError converts a standard error to an AppError.
// If err already wraps an AppError, that AppError is returned.
// Otherwise, it wraps it as an internal error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewAppErrorWithErr(ErrorCodeInternal, "An internal error occurred", err)
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Common error constructors

// NewSinkUnavailableError creates a sink unavailable error.
func NewSinkUnavailableError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeSinkUnavailable, message, err)
}

// NewWriteFailureError creates a write failure error.
func NewWriteFailureError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeWriteFailure, message, err)
}

// NewSourceReadError creates a source read failure error.
func NewSourceReadError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeSourceReadFailure, message, err)
}

// NewEncodeError creates an encode failure error.
func NewEncodeError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeEncodeFailure, message, err)
}

// NewPublishError creates a publish failure error.
func NewPublishError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodePublishFailure, message, err)
}

// NewConfigError creates an invalid configuration error.
func NewConfigError(message string) *AppError {
	return NewAppError(ErrorCodeInvalidConfig, message)
}

// NewMisuseError creates a misuse error.
func NewMisuseError(message string) *AppError {
	return NewAppError(ErrorCodeMisuse, message)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternal, message)
}
