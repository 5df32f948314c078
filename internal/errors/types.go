package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Storage errors
	ErrCodeDatabaseQuery ErrorCode = "DATABASE_QUERY"

	// Composer and command validation
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeEmptyMessage     ErrorCode = "EMPTY_MESSAGE"
	ErrCodeNoActiveThread   ErrorCode = "NO_ACTIVE_THREAD"
	ErrCodeNotMessageOwner  ErrorCode = "NOT_MESSAGE_OWNER"

	// Thread model
	ErrCodeThreadNotFound   ErrorCode = "THREAD_NOT_FOUND"
	ErrCodeMessageNotFound  ErrorCode = "MESSAGE_NOT_FOUND"
	ErrCodeStatusRegression ErrorCode = "STATUS_REGRESSION"

	// Delivery
	ErrCodeTransport          ErrorCode = "TRANSPORT"
	ErrCodeExternalChannel    ErrorCode = "EXTERNAL_CHANNEL_UNAVAILABLE"
	ErrCodeWhatsAppAPI        ErrorCode = "WHATSAPP_API"
	ErrCodeWebhookSignature   ErrorCode = "WEBHOOK_SIGNATURE"
	ErrCodeUnknownParticipant ErrorCode = "UNKNOWN_PARTICIPANT"

	// Access
	ErrCodeAuthorization ErrorCode = "AUTHORIZATION"
	ErrCodeRateLimit     ErrorCode = "RATE_LIMIT"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code, so sentinel-style comparisons work.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code && t.Message == "" && t.Cause == nil
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Code returns a bare AppError usable as an errors.Is target.
func Code(code ErrorCode) *AppError {
	return &AppError{Code: code}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapRetryable wraps an error and marks it as retryable
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As extracts the outermost AppError in the chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Retryable
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetUserMessage extracts a user-friendly message from an error
func GetUserMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "An internal error occurred"
}
