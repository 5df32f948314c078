package chat

import "furnidesk/internal/models"

// ApplyEvent folds a published change into a local copy of its thread. The
// bool is false when the event is for another thread or changes nothing.
// Status events go through ApplyStatus, so a late acknowledgment never moves
// a message backwards here either.
func ApplyEvent(t models.Thread, e models.ChatEvent) (models.Thread, bool) {
	if e.ThreadID != t.ID {
		return t, false
	}

	switch e.Type {
	case models.EventMessageNew:
		if e.Message == nil || t.MessageIndex(e.Message.ID) >= 0 {
			return t, false
		}
		return AppendMessage(t, e.Message.Clone()), true

	case models.EventMessageUpdated:
		if e.Message == nil {
			return t, false
		}
		i := t.MessageIndex(e.Message.ID)
		if i < 0 {
			return t, false
		}
		return replaceMessage(t, i, e.Message.Clone()), true

	case models.EventMessageStatus:
		if e.Status == nil {
			return t, false
		}
		next, changed, err := ApplyStatus(t, e.Status.MessageID, e.Status.Status)
		if err != nil {
			return t, false
		}
		return next, changed

	case models.EventPresenceUpdated:
		if e.Presence == nil {
			return t, false
		}
		next, changed, err := SetPresence(t, e.Presence.ParticipantID, e.Presence.IsOnline)
		if err != nil {
			return t, false
		}
		return next, changed

	case models.EventThreadUpdated:
		if e.Thread == nil {
			return t, false
		}
		out := t
		out.Name = e.Thread.Name
		out.Avatar = e.Thread.Avatar
		out.Participants = append([]models.Participant(nil), e.Thread.Participants...)
		out.UnreadCount = e.Thread.UnreadCount
		out.Pinned = e.Thread.Pinned
		out.Muted = e.Thread.Muted
		out.Sources = append([]string(nil), e.Thread.Sources...)
		if e.Thread.LastActivity.After(out.LastActivity) {
			out.LastActivity = e.Thread.LastActivity
		}
		return out, true
	}
	return t, false
}
