package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the client.
type ErrorCode string

// Client-side codes. No network call was made.
const (
	ErrValidation ErrorCode = "VALIDATION"
	ErrBusy       ErrorCode = "BUSY"
)

// Transport codes. Surfaced to the user as a generic fallback message.
const (
	ErrTransport ErrorCode = "TRANSPORT"
	ErrHTTP      ErrorCode = "HTTP"
	ErrDecode    ErrorCode = "DECODE"
	ErrTimeout   ErrorCode = "TIMEOUT"
)

// Server-reported codes. Message is passed through verbatim.
const (
	ErrServer     ErrorCode = "SERVER"
	ErrTaskFailed ErrorCode = "TASK_FAILED"
	ErrNotFound   ErrorCode = "NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsVerbatim reports whether the error message is meant to be shown as-is.
func IsVerbatim(code ErrorCode) bool {
	switch code {
	case ErrValidation, ErrBusy, ErrServer, ErrTaskFailed, ErrNotFound:
		return true
	default:
		return false
	}
}

// UserMessage 将错误转换为面向用户的文本。
// 校验错误和服务端 detail 原样透传，其余一律使用 fallback。
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && IsVerbatim(e.Code) && e.Message != "" {
		return e.Message
	}
	return fallback
}
