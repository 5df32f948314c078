package types

const (
	APIBase          = "/api"
	EndpointSendText = "/sendText"
	EndpointSendSeen = "/sendSeen"
	EndpointHealth   = "/server/status"
)

// Webhook event types
const (
	EventMessage       = "message"
	EventMessageEdited = "message.edited"
	EventMessageACK    = "message.ack"
)

// Message ACK levels reported by the gateway
const (
	ACKError   = -1
	ACKPending = 0
	ACKServer  = 1
	ACKDevice  = 2
	ACKRead    = 3
	ACKPlayed  = 4
)

// Header names used by webhook deliveries
const (
	HeaderSignature = "X-Webhook-Hmac"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderAPIKey    = "X-Api-Key"
)
