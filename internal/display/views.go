package display

import (
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/models"
)

type AttachmentView struct {
	models.Attachment
	SizeLabel string `json:"sizeLabel,omitempty"`
}

// MessageView is a message with its presentation fields resolved for one
// viewer.
type MessageView struct {
	models.Message
	Attachments []AttachmentView `json:"attachments,omitempty"`
	Time        string           `json:"time"`
	Own         bool             `json:"own"`
	CanEdit     bool             `json:"canEdit"`
	CanRetry    bool             `json:"canRetry"`
}

func NewMessageView(m models.Message, session models.Session, now time.Time) MessageView {
	own := m.IsOwnedBy(session.UserID)
	v := MessageView{
		Message:  m,
		Time:     Timestamp(m.CreatedAt, now),
		Own:      own,
		CanEdit:  own && m.Status != models.StatusError,
		CanRetry: own && m.Status == models.StatusError,
	}
	for _, a := range m.Attachments {
		v.Attachments = append(v.Attachments, AttachmentView{Attachment: a, SizeLabel: Size(a.Size)})
	}
	return v
}

// Preview is the one-line summary of a message shown under a thread name.
func Preview(m models.Message, session models.Session) string {
	text := m.Content
	if text == "" && len(m.Attachments) > 0 {
		a := m.Attachments[0]
		text = "[" + string(a.Type) + "] " + a.Name
	}
	text = Truncate(text, previewLength)

	switch {
	case m.IsSystem:
		return text
	case m.IsInternalNote:
		return "Note: " + text
	case m.IsOwnedBy(session.UserID):
		return "You: " + text
	}
	return text
}

// ThreadItemView is one row of the thread list.
type ThreadItemView struct {
	models.ThreadSummary
	Time        string `json:"time"`
	Preview     string `json:"preview"`
	UnreadLabel string `json:"unreadLabel,omitempty"`
	Online      bool   `json:"online"`
}

func NewThreadItemView(t models.Thread, session models.Session, now time.Time) ThreadItemView {
	v := ThreadItemView{
		ThreadSummary: t.Summary(),
		Time:          Timestamp(t.LastActivity, now),
		UnreadLabel:   UnreadBadge(t.UnreadCount),
		Online:        anyoneElseOnline(t, session.UserID),
	}
	if last, ok := t.LastMessage(); ok {
		v.Preview = Preview(last, session)
	}
	return v
}

func anyoneElseOnline(t models.Thread, userID string) bool {
	for _, p := range t.Participants {
		if p.ID != userID && p.IsOnline {
			return true
		}
	}
	return false
}

type ThreadListView struct {
	Threads       []ThreadItemView `json:"threads"`
	Filter        chat.Filter      `json:"filter"`
	Total         int              `json:"total"`
	TotalLabel    string           `json:"totalLabel"`
	Empty         bool             `json:"empty"`
	FiltersActive bool             `json:"filtersActive"`
	ClearFilters  bool             `json:"clearFilters"`
}

func NewThreadListView(list chat.ThreadList, session models.Session, now time.Time) ThreadListView {
	v := ThreadListView{
		Threads:       make([]ThreadItemView, 0, len(list.Threads)),
		Filter:        list.Filter,
		Total:         list.Total,
		TotalLabel:    Count(list.Total),
		Empty:         list.Empty,
		FiltersActive: list.FiltersActive,
		ClearFilters:  list.ClearFilters,
	}
	for _, t := range list.Threads {
		v.Threads = append(v.Threads, NewThreadItemView(t, session, now))
	}
	return v
}

// ThreadView is an open conversation.
type ThreadView struct {
	models.ThreadSummary
	Messages []MessageView `json:"messages"`
}

func NewThreadView(t models.Thread, session models.Session, now time.Time) ThreadView {
	v := ThreadView{
		ThreadSummary: t.Summary(),
		Messages:      make([]MessageView, 0, len(t.Messages)),
	}
	v.LastMessage = nil
	for _, m := range t.Messages {
		v.Messages = append(v.Messages, NewMessageView(m, session, now))
	}
	return v
}
