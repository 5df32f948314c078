package models

import (
	"strings"
	"time"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusError     MessageStatus = "error"
)

// Rank orders the forward progression sending < sent < delivered < read.
// Error has no rank; it terminates a delivery attempt.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known statuses.
func (s MessageStatus) Valid() bool {
	return s.Rank() > 0 || s == StatusError
}

// ParseMessageStatus converts user or transport input into a MessageStatus.
func ParseMessageStatus(raw string) (MessageStatus, bool) {
	s := MessageStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "document"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentFile     AttachmentType = "file"
)

func (t AttachmentType) Valid() bool {
	switch t {
	case AttachmentImage, AttachmentDocument, AttachmentAudio, AttachmentFile:
		return true
	}
	return false
}

type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
	Name string         `json:"name"`
	Size int64          `json:"size"`
}

// ReplyRef is a snapshot of the replied-to message taken when the reply was
// started. It is not kept in sync with later edits of the original.
type ReplyRef struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderName string `json:"senderName"`
}

type Message struct {
	ID             string        `json:"id"`
	ThreadID       string        `json:"threadId"`
	Content        string        `json:"content"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	CreatedAt      time.Time     `json:"createdAt"`
	Status         MessageStatus `json:"status"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	IsImportant    bool          `json:"isImportant"`
	IsInternalNote bool          `json:"isInternalNote"`
	IsSystem       bool          `json:"isSystem"`
	ReplyTo        *ReplyRef     `json:"replyTo,omitempty"`
	Edited         bool          `json:"edited"`
	EditedAt       *time.Time    `json:"editedAt,omitempty"`
	Source         string        `json:"source,omitempty"`
	ExternalID     string        `json:"externalId,omitempty"`
}

// Snapshot captures the fields a reply keeps from this message.
func (m Message) Snapshot() ReplyRef {
	return ReplyRef{
		ID:         m.ID,
		Content:    m.Content,
		SenderName: m.SenderName,
	}
}

// IsOwnedBy reports whether userID authored the message.
func (m Message) IsOwnedBy(userID string) bool {
	return !m.IsSystem && m.SenderID != "" && m.SenderID == userID
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		out.ReplyTo = &ref
	}
	if m.EditedAt != nil {
		at := *m.EditedAt
		out.EditedAt = &at
	}
	return out
}
