package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewEmptyMessageError is returned when the composer input is blank.
func NewEmptyMessageError() *AppError {
	return New(ErrCodeEmptyMessage, "message content is empty").
		WithUserMessage("Type a message before sending")
}

// NewNoActiveThreadError is returned when a submission has no target thread.
func NewNoActiveThreadError() *AppError {
	return New(ErrCodeNoActiveThread, "no active thread").
		WithUserMessage("Select a conversation first")
}

func NewThreadNotFoundError(threadID string) *AppError {
	return New(ErrCodeThreadNotFound, "thread not found").
		WithContext("thread_id", threadID).
		WithUserMessage("Conversation not found")
}

func NewMessageNotFoundError(threadID, messageID string) *AppError {
	return New(ErrCodeMessageNotFound, "message not found").
		WithContext("thread_id", threadID).
		WithContext("message_id", messageID).
		WithUserMessage("Message not found")
}

// NewNotOwnerError is returned when a user edits someone else's message.
func NewNotOwnerError(messageID string) *AppError {
	return New(ErrCodeNotMessageOwner, "only the author can edit a message").
		WithContext("message_id", messageID).
		WithUserMessage("You can only edit your own messages")
}

// NewStatusRegressionError is returned for status changes that would move backwards.
func NewStatusRegressionError(messageID, from, to string) *AppError {
	return New(ErrCodeStatusRegression, fmt.Sprintf("status cannot move from %s to %s", from, to)).
		WithContext("message_id", messageID).
		WithContext("from", from).
		WithContext("to", to)
}

// NewTransportError wraps a failed delivery attempt. Delivery failures are
// always recoverable by retrying the send.
func NewTransportError(transport string, err error) *AppError {
	return WrapRetryable(err, ErrCodeTransport, fmt.Sprintf("%s delivery failed", transport)).
		WithContext("transport", transport).
		WithUserMessage("Message could not be delivered, tap to retry")
}

// NewExternalChannelError is returned when send-through is requested on a
// thread that has no linked external channel.
func NewExternalChannelError(threadID, source string) *AppError {
	return New(ErrCodeExternalChannel, "thread has no external channel").
		WithContext("thread_id", threadID).
		WithContext("source", source).
		WithUserMessage("This conversation is not linked to WhatsApp")
}

// NewAPIError creates an API error for external service calls
func NewAPIError(service, endpoint string, statusCode int, err error) *AppError {
	code := ErrCodeInternalError
	if service == "whatsapp" {
		code = ErrCodeWhatsAppAPI
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	// Server-side and throttling failures are worth retrying
	appErr.Retryable = statusCode >= 500 || statusCode == 429 || statusCode == 408 || statusCode == 0
	return appErr
}

// NewForbiddenError is returned when the session may not perform an action.
func NewForbiddenError(action string) *AppError {
	return New(ErrCodeAuthorization, fmt.Sprintf("not allowed to %s", action)).
		WithContext("action", action).
		WithUserMessage("You are not allowed to do that")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit float64, burst int) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("burst", burst).
		WithUserMessage("Too many requests, please try again later")
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig,
		ErrCodeEmptyMessage, ErrCodeNoActiveThread, ErrCodeExternalChannel:
		return http.StatusBadRequest
	case ErrCodeWebhookSignature, ErrCodeUnknownParticipant:
		return http.StatusUnauthorized
	case ErrCodeAuthorization, ErrCodeNotMessageOwner:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeThreadNotFound, ErrCodeMessageNotFound:
		return http.StatusNotFound
	case ErrCodeStatusRegression:
		return http.StatusConflict
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeTransport, ErrCodeWhatsAppAPI:
		if IsRetryable(err) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	case ErrCodeDatabaseQuery:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the standardized HTTP error body
type HTTPErrorResponse struct {
	Error struct {
		Code      ErrorCode   `json:"code"`
		Message   string      `json:"message"`
		Retryable bool        `json:"retryable,omitempty"`
		Context   interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	appErr, ok := As(err)
	if !ok {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
		return response
	}

	response.Error.Code = appErr.Code
	response.Error.Message = GetUserMessage(err)
	response.Error.Retryable = appErr.Retryable
	if len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			if k != "password" && k != "token" && k != "secret" && k != "content" {
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Error.Context = publicContext
		}
	}

	return response
}
