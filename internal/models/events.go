package models

import "time"

// Inbound events accepted from a transport layer.

type MessageEvent struct {
	ThreadID string  `json:"threadId"`
	Message  Message `json:"message"`
}

type StatusEvent struct {
	ThreadID  string        `json:"threadId"`
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
}

type PresenceEvent struct {
	ThreadID      string `json:"threadId"`
	ParticipantID string `json:"participantId"`
	IsOnline      bool   `json:"isOnline"`
}

// Outbound commands issued by the dashboard.

type SendCommand struct {
	ThreadID           string       `json:"threadId"`
	Content            string       `json:"content"`
	Attachments        []Attachment `json:"attachments,omitempty"`
	ReplyToID          string       `json:"replyToId,omitempty"`
	IsInternalNote     bool         `json:"isInternalNote,omitempty"`
	AlsoSendExternally bool         `json:"alsoSendExternally,omitempty"`

	// Reply carries a snapshot taken by the composer when the reply started.
	// When nil and ReplyToID is set, the snapshot is taken at send time.
	Reply *ReplyRef `json:"-"`
}

type EditCommand struct {
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type ToggleImportantCommand struct {
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
}

// Event types published to connected dashboards.
const (
	EventMessageNew      = "message.new"
	EventMessageUpdated  = "message.updated"
	EventMessageStatus   = "message.status"
	EventPresenceUpdated = "presence.updated"
	EventThreadUpdated   = "thread.updated"
	EventThreadDeleted   = "thread.deleted"
)

// ChatEvent is a change applied to a thread, fanned out to the thread's participants.
type ChatEvent struct {
	Type       string         `json:"type"`
	ThreadID   string         `json:"threadId"`
	Recipients []string       `json:"-"`
	Message    *Message       `json:"message,omitempty"`
	Status     *StatusEvent   `json:"status,omitempty"`
	Presence   *PresenceEvent `json:"presence,omitempty"`
	Thread     *ThreadSummary `json:"thread,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// CreateThreadCommand opens a new conversation. The creator is always added
// as a participant.
type CreateThreadCommand struct {
	Type           ThreadType `json:"type"`
	Name           string     `json:"name,omitempty"`
	Avatar         string     `json:"avatar,omitempty"`
	ParticipantIDs []string   `json:"participantIds"`
	ClientID       string     `json:"clientId,omitempty"`
	Sources        []string   `json:"sources,omitempty"`
	ExternalChatID string     `json:"externalChatId,omitempty"`
}

// ExternalMessageEvent is a message received from a linked outside chat.
type ExternalMessageEvent struct {
	Source            string       `json:"source"`
	ChatID            string       `json:"chatId"`
	ExternalID        string       `json:"externalId"`
	SenderPhone       string       `json:"senderPhone"`
	SenderName        string       `json:"senderName"`
	Content           string       `json:"content"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	ReplyToExternalID string       `json:"replyToExternalId,omitempty"`
	SentAt            time.Time    `json:"sentAt"`
}
