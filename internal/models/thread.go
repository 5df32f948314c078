package models

import (
	"slices"
	"time"
)

type ThreadType string

const (
	ThreadDirect ThreadType = "direct"
	ThreadGroup  ThreadType = "group"
	ThreadClient ThreadType = "client"
)

func (t ThreadType) Valid() bool {
	switch t {
	case ThreadDirect, ThreadGroup, ThreadClient:
		return true
	}
	return false
}

// SourceWhatsApp tags threads that are mirrored to a WhatsApp chat.
const SourceWhatsApp = "whatsapp"

// Thread is a conversation container. Messages are append-only and kept in
// insertion order, which is also chronological order.
type Thread struct {
	ID             string           `json:"id"`
	Type           ThreadType       `json:"type"`
	Name           string           `json:"name"`
	Avatar         string           `json:"avatar,omitempty"`
	Participants   []Participant    `json:"participants"`
	Messages       []Message        `json:"messages"`
	UnreadCount    int              `json:"unreadCount"`
	Pinned         bool             `json:"pinned"`
	Muted          bool             `json:"muted"`
	Client         *ClientReference `json:"client,omitempty"`
	Sources        []string         `json:"sources,omitempty"`
	ExternalChatID string           `json:"externalChatId,omitempty"`
	LastActivity   time.Time        `json:"lastActivity"`
	CreatedAt      time.Time        `json:"createdAt"`
	CreatedBy      string           `json:"createdBy,omitempty"`
}

// HasSource reports whether the thread is linked to the given external channel.
func (t Thread) HasSource(source string) bool {
	return slices.Contains(t.Sources, source)
}

// HasExternalSource reports whether any external channel is linked.
func (t Thread) HasExternalSource() bool {
	return len(t.Sources) > 0
}

// IsParticipant reports whether userID takes part in the thread.
func (t Thread) IsParticipant(userID string) bool {
	return t.ParticipantIndex(userID) >= 0
}

func (t Thread) ParticipantIndex(userID string) int {
	for i, p := range t.Participants {
		if p.ID == userID {
			return i
		}
	}
	return -1
}

func (t Thread) MessageIndex(messageID string) int {
	for i, m := range t.Messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

// FindMessage returns the message with the given id.
func (t Thread) FindMessage(messageID string) (Message, bool) {
	if i := t.MessageIndex(messageID); i >= 0 {
		return t.Messages[i], true
	}
	return Message{}, false
}

// LastMessage returns the most recently appended message.
func (t Thread) LastMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// Clone returns a deep copy. Thread values handed to callers are always clones
// so that a change produces a new message slice rather than mutating a shared one.
func (t Thread) Clone() Thread {
	out := t
	out.Participants = append([]Participant(nil), t.Participants...)
	if t.Messages != nil {
		out.Messages = make([]Message, len(t.Messages))
		for i, m := range t.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	if t.Client != nil {
		c := *t.Client
		out.Client = &c
	}
	out.Sources = append([]string(nil), t.Sources...)
	return out
}

// Summary drops the message list, keeping only the last message.
func (t Thread) Summary() ThreadSummary {
	s := ThreadSummary{
		ID:           t.ID,
		Type:         t.Type,
		Name:         t.Name,
		Avatar:       t.Avatar,
		Participants: t.Participants,
		UnreadCount:  t.UnreadCount,
		Pinned:       t.Pinned,
		Muted:        t.Muted,
		Client:       t.Client,
		Sources:      t.Sources,
		LastActivity: t.LastActivity,
	}
	if last, ok := t.LastMessage(); ok {
		s.LastMessage = &last
	}
	return s
}

type ThreadSummary struct {
	ID           string           `json:"id"`
	Type         ThreadType       `json:"type"`
	Name         string           `json:"name"`
	Avatar       string           `json:"avatar,omitempty"`
	Participants []Participant    `json:"participants"`
	UnreadCount  int              `json:"unreadCount"`
	Pinned       bool             `json:"pinned"`
	Muted        bool             `json:"muted"`
	Client       *ClientReference `json:"client,omitempty"`
	Sources      []string         `json:"sources,omitempty"`
	LastActivity time.Time        `json:"lastActivity"`
	LastMessage  *Message         `json:"lastMessage,omitempty"`
}
