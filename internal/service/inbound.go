package service

import (
	"context"
	"strings"

	"furnidesk/internal/chat"
	"furnidesk/internal/errors"
	"furnidesk/internal/metrics"
	"furnidesk/internal/models"
	"furnidesk/internal/privacy"
	"furnidesk/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HandleMessageEvent appends a message that arrived from a transport. A
// message whose id or external id is already in the thread is ignored and
// the stored copy returned.
func (s *ChatService) HandleMessageEvent(ctx context.Context, event models.MessageEvent) (models.Message, error) {
	msg := event.Message.Clone()
	if event.ThreadID != "" {
		msg.ThreadID = event.ThreadID
	}
	if msg.ThreadID == "" {
		return models.Message{}, errors.NewValidationError("threadId", "thread id is required")
	}

	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" && len(msg.Attachments) == 0 {
		return models.Message{}, errors.NewEmptyMessageError()
	}
	if err := validation.ValidateContent(msg.Content); err != nil {
		return models.Message{}, err
	}
	attachments, err := validation.NormalizeAttachments(msg.Attachments)
	if err != nil {
		return models.Message{}, err
	}
	msg.Attachments = attachments

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	switch {
	case msg.IsSystem:
		msg.Status = models.StatusRead
	case msg.IsInternalNote:
		// notes never travel past sent
		msg.Status = models.StatusSent
	case msg.Status == models.StatusError:
		return models.Message{}, errors.NewValidationError("status", "inbound messages cannot be in error")
	case msg.Status.Rank() < models.StatusDelivered.Rank():
		// it reached us, so it is at least delivered
		msg.Status = models.StatusDelivered
	}

	var stored models.Message
	_, err = s.mutate(ctx, msg.ThreadID, func(t models.Thread) (threadChange, error) {
		if existing, ok := findDuplicate(t, msg); ok {
			stored = existing
			return unchanged(t), nil
		}
		if msg.IsInternalNote && t.Type != models.ThreadClient {
			return threadChange{}, errors.NewValidationError("isInternalNote", "internal notes are only available in client threads")
		}
		if !msg.IsSystem && t.Type != models.ThreadClient && !t.IsParticipant(msg.SenderID) {
			return threadChange{}, errors.New(errors.ErrCodeUnknownParticipant, "sender is not a participant").
				WithContext("thread_id", t.ID).
				WithContext("sender_id", msg.SenderID)
		}
		if msg.ReplyTo != nil && msg.ReplyTo.Content == "" {
			if original, ok := t.FindMessage(msg.ReplyTo.ID); ok {
				snapshot := original.Snapshot()
				msg.ReplyTo = &snapshot
			}
		}

		t = chat.ReceiveMessage(t, msg)
		stored = msg
		return changed(t, s.messageEvent(models.EventMessageNew, t, msg)), nil
	})
	if err != nil {
		errors.Log(s.logger, err, "Failed to apply inbound message", logrus.Fields{LogFieldThreadID: msg.ThreadID})
		return models.Message{}, err
	}

	source := msg.Source
	if source == "" {
		source = "local"
	}
	metrics.IncrementCounter("messages_received_total", map[string]string{LogFieldSource: source}, "Messages received from transports")
	LogMessageProcessing(ctx, s.logger, "incoming", stored)
	return stored, nil
}

func findDuplicate(t models.Thread, msg models.Message) (models.Message, bool) {
	if existing, ok := t.FindMessage(msg.ID); ok {
		return existing, true
	}
	if msg.ExternalID == "" {
		return models.Message{}, false
	}
	for _, m := range t.Messages {
		if m.ExternalID == msg.ExternalID {
			return m, true
		}
	}
	return models.Message{}, false
}

// HandleStatusEvent applies a delivery acknowledgment. Duplicate,
// out-of-order and regressing acknowledgments are dropped without error.
func (s *ChatService) HandleStatusEvent(ctx context.Context, event models.StatusEvent) error {
	status, ok := models.ParseMessageStatus(string(event.Status))
	if !ok {
		return errors.NewValidationError("status", "unknown status "+string(event.Status))
	}
	if status == models.StatusSending {
		return errors.NewValidationError("status", "sending is not an acknowledgment")
	}

	applied := false
	_, err := s.mutate(ctx, event.ThreadID, func(t models.Thread) (threadChange, error) {
		next, ok, err := chat.ApplyStatus(t, event.MessageID, status)
		if errors.HasCode(err, errors.ErrCodeStatusRegression) {
			s.logger.WithFields(logrus.Fields{
				LogFieldThreadID:  event.ThreadID,
				LogFieldMessageID: event.MessageID,
				LogFieldStatus:    string(status),
			}).Debug("Dropped out-of-order acknowledgment")
			return unchanged(t), nil
		}
		if err != nil {
			return threadChange{}, err
		}
		if !ok {
			return unchanged(t), nil
		}
		applied = true
		return changed(next, s.statusEvent(next, event.MessageID, status)), nil
	})
	if err != nil {
		return err
	}

	metrics.IncrementCounter("status_updates_total", map[string]string{
		LogFieldStatus: string(status),
		"applied":      boolLabel(applied),
	}, "Delivery acknowledgments received")
	return nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// HandlePresenceEvent updates a participant's online flag in one thread.
func (s *ChatService) HandlePresenceEvent(ctx context.Context, event models.PresenceEvent) error {
	_, err := s.mutate(ctx, event.ThreadID, func(t models.Thread) (threadChange, error) {
		next, ok, err := chat.SetPresence(t, event.ParticipantID, event.IsOnline)
		if err != nil {
			return threadChange{}, err
		}
		if !ok {
			return unchanged(t), nil
		}
		presence := event
		return changed(next, models.ChatEvent{
			Type:       models.EventPresenceUpdated,
			ThreadID:   next.ID,
			Recipients: recipients(next),
			Presence:   &presence,
			OccurredAt: s.now(),
		}), nil
	})
	return err
}

// SetUserPresence applies a presence change to every thread the user takes
// part in. It is called when a user's first session connects or last
// session disconnects.
func (s *ChatService) SetUserPresence(ctx context.Context, userID string, online bool) error {
	threads, err := s.repo.ListThreads(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, t := range threads {
		if !t.IsParticipant(userID) {
			continue
		}
		event := models.PresenceEvent{ThreadID: t.ID, ParticipantID: userID, IsOnline: online}
		if err := s.HandlePresenceEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HandleExternalMessage stores a message received from a linked outside
// chat. A chat seen for the first time opens a new client thread for a
// prospect.
func (s *ChatService) HandleExternalMessage(ctx context.Context, event models.ExternalMessageEvent) (models.Message, error) {
	if event.Source == "" || event.ChatID == "" {
		return models.Message{}, errors.NewValidationError("chatId", "external messages need a source and chat id")
	}

	var thread models.Thread
	key := "external:" + event.Source + ":" + event.ChatID
	err := s.queue.Do(ctx, key, func(ctx context.Context) error {
		t, found, err := s.repo.FindThreadByExternalChat(ctx, event.Source, event.ChatID)
		if err != nil {
			return err
		}
		if !found {
			t, err = s.openClientThread(ctx, event)
			if err != nil {
				return err
			}
		}
		thread = t
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}

	sender := externalParticipant(event)
	if !thread.IsParticipant(sender.ID) {
		if _, err := s.mutate(ctx, thread.ID, func(t models.Thread) (threadChange, error) {
			next, added := chat.AddParticipant(t, sender)
			if !added {
				return unchanged(t), nil
			}
			return changed(next, s.threadEvent(models.EventThreadUpdated, next)), nil
		}); err != nil {
			return models.Message{}, err
		}
	}

	msg := models.Message{
		ThreadID:    thread.ID,
		Content:     event.Content,
		SenderID:    sender.ID,
		SenderName:  sender.GetDisplayName(),
		CreatedAt:   event.SentAt,
		Status:      models.StatusDelivered,
		Attachments: event.Attachments,
		Source:      event.Source,
		ExternalID:  event.ExternalID,
	}
	if event.ReplyToExternalID != "" {
		for _, m := range thread.Messages {
			if m.ExternalID == event.ReplyToExternalID {
				snapshot := m.Snapshot()
				msg.ReplyTo = &snapshot
				break
			}
		}
	}
	return s.HandleMessageEvent(ctx, models.MessageEvent{ThreadID: thread.ID, Message: msg})
}

func externalParticipant(event models.ExternalMessageEvent) models.Participant {
	id := event.Source + ":" + event.SenderPhone
	if event.SenderPhone == "" {
		id = event.Source + ":" + event.ChatID
	}
	name := strings.TrimSpace(event.SenderName)
	if name == "" {
		name = event.SenderPhone
	}
	return models.Participant{ID: id, Name: name, Role: "client"}
}

func (s *ChatService) openClientThread(ctx context.Context, event models.ExternalMessageEvent) (models.Thread, error) {
	now := s.now()
	sender := externalParticipant(event)
	t := models.Thread{
		ID:           uuid.NewString(),
		Type:         models.ThreadClient,
		Name:         sender.GetDisplayName(),
		Participants: []models.Participant{sender},
		Messages:     []models.Message{},
		Client: &models.ClientReference{
			ID:     uuid.NewString(),
			Name:   sender.GetDisplayName(),
			Status: models.ClientProspect,
			Phone:  event.SenderPhone,
		},
		Sources:        []string{event.Source},
		ExternalChatID: event.ChatID,
		LastActivity:   now,
		CreatedAt:      now,
	}
	if err := chat.ValidateThread(t); err != nil {
		return models.Thread{}, err
	}
	if err := s.repo.SaveThread(ctx, t); err != nil {
		return models.Thread{}, err
	}
	s.publish([]models.ChatEvent{s.threadEvent(models.EventThreadUpdated, t)})

	s.logger.WithFields(logrus.Fields{
		LogFieldThreadID: t.ID,
		LogFieldSource:   event.Source,
		LogFieldChatID:   privacy.MaskChatID(event.ChatID),
	}).Info("Opened client thread for new external chat")
	metrics.IncrementCounter("client_threads_opened_total", map[string]string{LogFieldSource: event.Source}, "Client threads opened by inbound external messages")
	return t, nil
}

// HandleExternalStatus applies an acknowledgment reported by an external
// channel for one of our forwarded messages. Unknown ids are ignored.
func (s *ChatService) HandleExternalStatus(ctx context.Context, externalID string, status models.MessageStatus) error {
	threadID, messageID, found, err := s.repo.FindMessageByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if !found {
		s.logger.WithField(LogFieldExternalID, privacy.MaskMessageID(externalID)).Debug("Acknowledgment for unknown external message")
		return nil
	}
	return s.HandleStatusEvent(ctx, models.StatusEvent{ThreadID: threadID, MessageID: messageID, Status: status})
}
