package service

// Standard log field names. Use these exact names so log queries work across
// the service, the realtime hub and the HTTP layer.
const (
	// Core identifiers
	LogFieldThreadID   = "thread_id"
	LogFieldMessageID  = "message_id"
	LogFieldUserID     = "user_id"
	LogFieldChatID     = "chat_id"
	LogFieldExternalID = "external_id"
	LogFieldClientID   = "client_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldTransport = "transport"
	LogFieldSource    = "source"

	// Message and event fields
	LogFieldEvent      = "event"
	LogFieldStatus     = "status"
	LogFieldFromStatus = "from_status"
	LogFieldThreadType = "thread_type"
	LogFieldDirection  = "direction" // "incoming" or "outgoing"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Network and external services
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
	LogFieldDelay     = "delay_ms"
)

// Log levels
//
// DEBUG: dropped acknowledgments, duplicate inbound messages, raw payloads.
// INFO: thread lifecycle, startup and shutdown, channel registration.
// WARN: retryable delivery failures, open circuit breakers, stale messages.
// ERROR: storage failures and anything that leaves a thread unchanged
// against the caller's intent.
//
// Message content is only ever logged at debug level and only when verbose
// logging is enabled for the request.
