package types

import (
	"strings"
	"time"
)

// WebhookEvent is a webhook delivery from the WhatsApp HTTP gateway.
type WebhookEvent struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Event     string         `json:"event"`
	Session   string         `json:"session"`
	Me        *Me            `json:"me,omitempty"`
	Payload   MessagePayload `json:"payload"`
}

type Me struct {
	ID       string `json:"id"`
	PushName string `json:"pushName"`
}

// MessagePayload carries a message or, for message.ack events, the ack level
// of a message previously sent.
type MessagePayload struct {
	ID         string `json:"id"`
	Timestamp  int64  `json:"timestamp"`
	From       string `json:"from"`
	FromMe     bool   `json:"fromMe"`
	To         string `json:"to"`
	Body       string `json:"body"`
	HasMedia   bool   `json:"hasMedia"`
	Media      *Media `json:"media,omitempty"`
	NotifyName string `json:"notifyName,omitempty"`
	// EditedMessageID is set on message.edited events
	EditedMessageID *string `json:"editedMessageId,omitempty"`
	// ACK is set on message.ack events
	ACK *int `json:"ack,omitempty"`
}

type Media struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
	Filename string `json:"filename"`
}

// SentAt returns the payload timestamp, which the gateway sends in seconds.
func (p MessagePayload) SentAt() time.Time {
	if p.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(p.Timestamp, 0).UTC()
}

// IsGroupMessage returns true if the message is from a group chat
func (p MessagePayload) IsGroupMessage() bool {
	return strings.HasSuffix(p.From, "@g.us")
}

// PhoneNumber strips the chat suffix from the sender id.
func (p MessagePayload) PhoneNumber() string {
	id := p.From
	if i := strings.Index(id, "@"); i >= 0 {
		id = id[:i]
	}
	return id
}

// ACKStatus maps a gateway ack level to a delivery status name. Pending acks
// carry no information and report false.
func ACKStatus(ack int) (string, bool) {
	switch ack {
	case ACKError:
		return "error", true
	case ACKServer:
		return "sent", true
	case ACKDevice:
		return "delivered", true
	case ACKRead, ACKPlayed:
		return "read", true
	default:
		return "", false
	}
}

// SendTextRequest is the body of a sendText call.
type SendTextRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// SeenRequest represents the request to mark messages as seen
type SeenRequest struct {
	ChatID  string `json:"chatId"`
	Session string `json:"session"`
}

// SendMessageResponse is the gateway reply to a send call. Depending on the
// engine the message id comes back either flat or nested.
type SendMessageResponse struct {
	MessageID string     `json:"messageId,omitempty"`
	Status    string     `json:"status,omitempty"`
	ID        *MessageID `json:"id,omitempty"`
}

type MessageID struct {
	FromMe     bool   `json:"fromMe"`
	Remote     string `json:"remote"`
	ID         string `json:"id"`
	Serialized string `json:"_serialized"`
}

// ExternalID returns the best available id of the sent message.
func (r *SendMessageResponse) ExternalID() string {
	if r == nil {
		return ""
	}
	if r.MessageID != "" {
		return r.MessageID
	}
	if r.ID != nil {
		if r.ID.Serialized != "" {
			return r.ID.Serialized
		}
		return r.ID.ID
	}
	return ""
}

// ErrorResponse represents error responses from the gateway
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ClientConfig represents the configuration for WhatsApp client
type ClientConfig struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"api_key"`
	SessionName string        `json:"session_name"`
	Timeout     time.Duration `json:"timeout"`
}
