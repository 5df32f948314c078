package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"furnidesk/internal/constants"
	"furnidesk/internal/errors"
	"furnidesk/internal/models"
)

// All operations in this file return a new Thread whose message slice does not
// share a backing array with the input. Callers holding the old value keep
// seeing the old state.

// AppendMessage adds m at the end of the thread.
func AppendMessage(t models.Thread, m models.Message) models.Thread {
	out := t
	out.Messages = make([]models.Message, len(t.Messages), len(t.Messages)+1)
	copy(out.Messages, t.Messages)
	out.Messages = append(out.Messages, m)
	if m.CreatedAt.After(out.LastActivity) {
		out.LastActivity = m.CreatedAt
	}
	return out
}

// ReceiveMessage appends a message that arrived from someone else and bumps
// the unread counter.
func ReceiveMessage(t models.Thread, m models.Message) models.Thread {
	out := AppendMessage(t, m)
	if !m.IsSystem {
		out.UnreadCount++
	}
	return out
}

func replaceMessage(t models.Thread, i int, m models.Message) models.Thread {
	out := t
	out.Messages = make([]models.Message, len(t.Messages))
	copy(out.Messages, t.Messages)
	out.Messages[i] = m
	return out
}

func lookup(t models.Thread, messageID string) (int, models.Message, error) {
	i := t.MessageIndex(messageID)
	if i < 0 {
		return -1, models.Message{}, errors.NewMessageNotFoundError(t.ID, messageID)
	}
	return i, t.Messages[i], nil
}

// EditMessage replaces the content of one of the editor's own messages.
// The message count never changes.
func EditMessage(t models.Thread, messageID, content string, editor models.Session, now time.Time) (models.Thread, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return t, errors.NewEmptyMessageError()
	}

	i, msg, err := lookup(t, messageID)
	if err != nil {
		return t, err
	}
	if !msg.IsOwnedBy(editor.UserID) {
		return t, errors.NewNotOwnerError(messageID)
	}

	msg = msg.Clone()
	msg.Content = content
	msg.Edited = true
	editedAt := now
	msg.EditedAt = &editedAt
	return replaceMessage(t, i, msg), nil
}

// ToggleImportant flips the importance flag. It has no effect on delivery.
func ToggleImportant(t models.Thread, messageID string) (models.Thread, error) {
	i, msg, err := lookup(t, messageID)
	if err != nil {
		return t, err
	}
	msg = msg.Clone()
	msg.IsImportant = !msg.IsImportant
	return replaceMessage(t, i, msg), nil
}

// ApplyStatus moves a message forward along sending, sent, delivered, read,
// or terminates the attempt with error.
//
// The returned bool is false when nothing changed. Duplicate acknowledgments
// and delivered/read on internal notes are dropped silently. A status that
// would move the message backwards is dropped and reported with a
// STATUS_REGRESSION error so callers can log it.
func ApplyStatus(t models.Thread, messageID string, status models.MessageStatus) (models.Thread, bool, error) {
	if !status.Valid() {
		return t, false, errors.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	i, msg, err := lookup(t, messageID)
	if err != nil {
		return t, false, err
	}

	current := msg.Status
	if current == status {
		return t, false, nil
	}
	if msg.IsInternalNote && (status == models.StatusDelivered || status == models.StatusRead) {
		return t, false, nil
	}

	switch {
	case current == models.StatusError:
		// only an explicit retry leaves the error state
		return t, false, errors.NewStatusRegressionError(messageID, string(current), string(status))
	case status == models.StatusError:
		if current.Rank() > models.StatusSent.Rank() {
			return t, false, errors.NewStatusRegressionError(messageID, string(current), string(status))
		}
	case status.Rank() < current.Rank():
		return t, false, errors.NewStatusRegressionError(messageID, string(current), string(status))
	}

	msg = msg.Clone()
	msg.Status = status
	return replaceMessage(t, i, msg), true, nil
}

// MarkForRetry moves a failed message back to sending.
func MarkForRetry(t models.Thread, messageID string) (models.Thread, error) {
	i, msg, err := lookup(t, messageID)
	if err != nil {
		return t, err
	}
	if msg.Status != models.StatusError {
		return t, errors.NewValidationError("status", "only failed messages can be retried").
			WithContext("message_id", messageID).
			WithContext("current_status", string(msg.Status))
	}
	msg = msg.Clone()
	msg.Status = models.StatusSending
	return replaceMessage(t, i, msg), nil
}

// AttachExternalID records the id an external channel assigned to a message.
func AttachExternalID(t models.Thread, messageID, externalID string) (models.Thread, error) {
	i, msg, err := lookup(t, messageID)
	if err != nil {
		return t, err
	}
	msg = msg.Clone()
	msg.ExternalID = externalID
	return replaceMessage(t, i, msg), nil
}

// Activate marks the thread as read.
func Activate(t models.Thread) models.Thread {
	out := t
	out.UnreadCount = 0
	return out
}

func TogglePin(t models.Thread) models.Thread {
	out := t
	out.Pinned = !out.Pinned
	return out
}

func ToggleMute(t models.Thread) models.Thread {
	out := t
	out.Muted = !out.Muted
	return out
}

// SetPresence updates the online flag of one participant. The bool is false
// when the flag already had that value.
func SetPresence(t models.Thread, participantID string, online bool) (models.Thread, bool, error) {
	i := t.ParticipantIndex(participantID)
	if i < 0 {
		return t, false, errors.NewNotFoundError("participant", participantID)
	}
	if t.Participants[i].IsOnline == online {
		return t, false, nil
	}

	out := t
	out.Participants = append([]models.Participant(nil), t.Participants...)
	out.Participants[i].IsOnline = online
	return out, true, nil
}

// AddParticipant adds p unless a participant with the same id exists.
func AddParticipant(t models.Thread, p models.Participant) (models.Thread, bool) {
	if t.IsParticipant(p.ID) {
		return t, false
	}
	out := t
	out.Participants = make([]models.Participant, len(t.Participants), len(t.Participants)+1)
	copy(out.Participants, t.Participants)
	out.Participants = append(out.Participants, p)
	return out, true
}

// ValidateThread checks the structural rules of a thread before it is stored.
func ValidateThread(t models.Thread) error {
	if t.ID == "" {
		return errors.NewValidationError("id", "thread id is required")
	}
	if !t.Type.Valid() {
		return errors.NewValidationError("type", fmt.Sprintf("unknown thread type %q", t.Type))
	}
	if t.UnreadCount < 0 {
		return errors.NewValidationError("unreadCount", "must not be negative")
	}
	if utf8.RuneCountInString(t.Name) > constants.MaxThreadNameLength {
		return errors.NewValidationError("name", fmt.Sprintf("too long (max %d characters)", constants.MaxThreadNameLength))
	}

	seen := make(map[string]struct{}, len(t.Participants))
	for _, p := range t.Participants {
		if p.ID == "" {
			return errors.NewValidationError("participants", "participant id is required")
		}
		if _, dup := seen[p.ID]; dup {
			return errors.NewValidationError("participants", fmt.Sprintf("duplicate participant %s", p.ID))
		}
		seen[p.ID] = struct{}{}
	}

	switch t.Type {
	case models.ThreadDirect:
		if len(t.Participants) != 2 {
			return errors.NewValidationError("participants", "direct threads have exactly one counterpart")
		}
	case models.ThreadGroup:
		if strings.TrimSpace(t.Name) == "" {
			return errors.NewValidationError("name", "group name is required")
		}
	case models.ThreadClient:
		if t.Client == nil {
			return errors.NewValidationError("client", "client threads need a client reference")
		}
		if !t.Client.Status.Valid() {
			return errors.NewValidationError("client.status", fmt.Sprintf("unknown client status %q", t.Client.Status))
		}
	}
	return nil
}
