package chat

import (
	"strings"
	"time"

	"furnidesk/internal/models"

	"github.com/google/uuid"
)

// MessageParams describes a message about to be appended to a thread.
type MessageParams struct {
	ThreadID       string
	Content        string
	Sender         models.Participant
	Attachments    []models.Attachment
	ReplyTo        *models.ReplyRef
	IsInternalNote bool
	IsSystem       bool
	Source         string
	ExternalID     string
}

// NewMessage builds a message with a fresh id. Regular messages and internal
// notes start at sending; system messages have nothing to deliver and start at read.
func NewMessage(p MessageParams, now time.Time) models.Message {
	status := models.StatusSending
	if p.IsSystem {
		status = models.StatusRead
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ThreadID:       p.ThreadID,
		Content:        strings.TrimSpace(p.Content),
		SenderID:       p.Sender.ID,
		SenderName:     p.Sender.GetDisplayName(),
		CreatedAt:      now,
		Status:         status,
		IsInternalNote: p.IsInternalNote,
		IsSystem:       p.IsSystem,
		Source:         p.Source,
		ExternalID:     p.ExternalID,
	}
	if len(p.Attachments) > 0 {
		msg.Attachments = append([]models.Attachment(nil), p.Attachments...)
	}
	if p.ReplyTo != nil {
		ref := *p.ReplyTo
		msg.ReplyTo = &ref
	}
	if p.IsSystem {
		msg.SenderID = ""
		msg.SenderName = "system"
	}
	return msg
}

// SystemMessage builds a read system notice such as "group created".
func SystemMessage(threadID, content string, now time.Time) models.Message {
	return NewMessage(MessageParams{ThreadID: threadID, Content: content, IsSystem: true}, now)
}
