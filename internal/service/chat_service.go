package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/errors"
	"furnidesk/internal/models"
	"furnidesk/internal/retry"
	"furnidesk/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ChatService owns every change to threads. Each change to a thread runs on
// that thread's update queue: load, apply, save, publish. Local commands and
// inbound transport events therefore never overwrite each other.
type ChatService struct {
	repo      ThreadRepository
	directory Directory
	transport Transport
	channels  *ChannelManager
	queue     *UpdateQueue
	backoff   *retry.Backoff
	logger    *logrus.Logger
	now       func() time.Time

	mu        sync.RWMutex
	publisher EventPublisher
}

// NewChatService creates the service. channels may be nil when no external
// channel is configured.
func NewChatService(repo ThreadRepository, directory Directory, transport Transport, channels *ChannelManager, retryConfig models.RetryConfig, logger *logrus.Logger) *ChatService {
	backoff := retry.NewBackoff(retry.FromConfig(retryConfig))
	s := &ChatService{
		repo:      repo,
		directory: directory,
		transport: transport,
		channels:  channels,
		queue:     NewUpdateQueue(),
		backoff:   backoff,
		logger:    logger,
		now:       time.Now,
		publisher: nopPublisher{},
	}
	backoff.OnRetry = func(attempt int, delay time.Duration, err error) {
		errors.WithError(s.logger, err).WithFields(logrus.Fields{
			LogFieldAttempt: attempt,
			LogFieldDelay:   delay.Milliseconds(),
		}).Warn("Retrying message delivery")
	}
	return s
}

// SetPublisher connects the service to the realtime hub.
func (s *ChatService) SetPublisher(p EventPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		p = nopPublisher{}
	}
	s.publisher = p
}

func (s *ChatService) publish(events []models.ChatEvent) {
	s.mu.RLock()
	p := s.publisher
	s.mu.RUnlock()
	for _, e := range events {
		p.Publish(e)
	}
}

// Close waits for queued thread updates to finish.
func (s *ChatService) Close() {
	s.queue.Close()
}

// threadChange is the result of applying an operation to a loaded thread.
type threadChange struct {
	thread models.Thread
	events []models.ChatEvent
	save   bool
}

func unchanged(t models.Thread) threadChange {
	return threadChange{thread: t}
}

func changed(t models.Thread, events ...models.ChatEvent) threadChange {
	return threadChange{thread: t, events: events, save: true}
}

// mutate loads a thread on its update queue, applies fn and stores and
// publishes the result. Nothing is stored when fn fails.
func (s *ChatService) mutate(ctx context.Context, threadID string, fn func(t models.Thread) (threadChange, error)) (models.Thread, error) {
	var result models.Thread
	err := s.queue.Do(ctx, threadID, func(ctx context.Context) error {
		t, err := s.repo.GetThread(ctx, threadID)
		if err != nil {
			return err
		}
		change, err := fn(t)
		if err != nil {
			return err
		}
		if change.save {
			if err := s.repo.SaveThread(ctx, change.thread); err != nil {
				return err
			}
		}
		s.publish(change.events)
		result = change.thread
		return nil
	})
	return result, err
}

// recipients lists who receives events for t. Client threads are a shared
// inbox, so their events go to every connected staff session (nil).
func recipients(t models.Thread) []string {
	if t.Type == models.ThreadClient {
		return nil
	}
	ids := make([]string, 0, len(t.Participants))
	for _, p := range t.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

func (s *ChatService) messageEvent(eventType string, t models.Thread, msg models.Message) models.ChatEvent {
	m := msg.Clone()
	return models.ChatEvent{Type: eventType, ThreadID: t.ID, Recipients: recipients(t), Message: &m, OccurredAt: s.now()}
}

func (s *ChatService) statusEvent(t models.Thread, messageID string, status models.MessageStatus) models.ChatEvent {
	return models.ChatEvent{
		Type:       models.EventMessageStatus,
		ThreadID:   t.ID,
		Recipients: recipients(t),
		Status:     &models.StatusEvent{ThreadID: t.ID, MessageID: messageID, Status: status},
		OccurredAt: s.now(),
	}
}

func (s *ChatService) threadEvent(eventType string, t models.Thread) models.ChatEvent {
	summary := t.Summary()
	return models.ChatEvent{Type: eventType, ThreadID: t.ID, Recipients: recipients(t), Thread: &summary, OccurredAt: s.now()}
}

// canView reports whether the session may read t. Client threads are visible
// to all staff; admins see everything.
func canView(session models.Session, t models.Thread) bool {
	return session.IsAdmin || t.Type == models.ThreadClient || t.IsParticipant(session.UserID)
}

func canPost(session models.Session, t models.Thread) bool {
	return t.Type == models.ThreadClient || t.IsParticipant(session.UserID)
}

func (s *ChatService) visibleThread(ctx context.Context, session models.Session, threadID string) (models.Thread, error) {
	t, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if !canView(session, t) {
		return models.Thread{}, errors.NewThreadNotFoundError(threadID)
	}
	return t, nil
}

// ListThreads returns the filtered and sorted thread list for the session.
func (s *ChatService) ListThreads(ctx context.Context, session models.Session, filter chat.Filter) (chat.ThreadList, error) {
	all, err := s.repo.ListThreads(ctx)
	if err != nil {
		return chat.ThreadList{}, err
	}
	visible := make([]models.Thread, 0, len(all))
	for _, t := range all {
		if canView(session, t) {
			visible = append(visible, t)
		}
	}
	return chat.BuildList(visible, filter, s.now()), nil
}

func (s *ChatService) GetThread(ctx context.Context, session models.Session, threadID string) (models.Thread, error) {
	return s.visibleThread(ctx, session, threadID)
}

// ActivateThread opens a thread for the session: its unread counter goes to
// zero and messages from other people are acknowledged as read.
func (s *ChatService) ActivateThread(ctx context.Context, session models.Session, threadID string) (models.Thread, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.activate_thread", attribute.String("thread.id", threadID))
	defer span.End()

	var seenExternal bool
	t, err := s.mutate(ctx, threadID, func(t models.Thread) (threadChange, error) {
		if !canView(session, t) {
			return threadChange{}, errors.NewThreadNotFoundError(threadID)
		}

		var events []models.ChatEvent
		dirty := false
		if t.UnreadCount > 0 {
			t = chat.Activate(t)
			dirty = true
		}
		for _, m := range t.Messages {
			if m.IsSystem || m.IsInternalNote || m.SenderID == session.UserID {
				continue
			}
			if m.Status != models.StatusSent && m.Status != models.StatusDelivered {
				continue
			}
			next, ok, err := chat.ApplyStatus(t, m.ID, models.StatusRead)
			if err != nil || !ok {
				continue
			}
			t = next
			dirty = true
			events = append(events, s.statusEvent(t, m.ID, models.StatusRead))
			if m.Source != "" {
				seenExternal = true
			}
		}
		if !dirty {
			return unchanged(t), nil
		}
		events = append([]models.ChatEvent{s.threadEvent(models.EventThreadUpdated, t)}, events...)
		return changed(t, events...), nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return models.Thread{}, err
	}

	if seenExternal {
		s.markSeenExternally(ctx, t)
	}
	return t, nil
}

func (s *ChatService) markSeenExternally(ctx context.Context, t models.Thread) {
	if s.channels == nil {
		return
	}
	source, ok := s.channels.Resolve(t)
	if !ok {
		return
	}
	if err := s.channels.MarkSeen(ctx, source, t); err != nil {
		errors.WithError(s.logger, err).WithFields(logrus.Fields{
			LogFieldThreadID: t.ID,
			LogFieldSource:   source,
		}).Warn("Failed to mark external chat as seen")
	}
}

// CreateThread opens a direct, group or client thread. Creating a direct
// thread that already exists between the same two people returns the
// existing one.
func (s *ChatService) CreateThread(ctx context.Context, session models.Session, cmd models.CreateThreadCommand) (models.Thread, error) {
	if !cmd.Type.Valid() {
		return models.Thread{}, errors.NewValidationError("type", fmt.Sprintf("unknown thread type %q", cmd.Type))
	}

	participants, err := s.resolveParticipants(ctx, session, cmd.ParticipantIDs)
	if err != nil {
		return models.Thread{}, err
	}

	now := s.now()
	t := models.Thread{
		ID:             uuid.NewString(),
		Type:           cmd.Type,
		Name:           strings.TrimSpace(cmd.Name),
		Avatar:         cmd.Avatar,
		Participants:   participants,
		Messages:       []models.Message{},
		Sources:        cmd.Sources,
		ExternalChatID: cmd.ExternalChatID,
		LastActivity:   now,
		CreatedAt:      now,
		CreatedBy:      session.UserID,
	}

	switch cmd.Type {
	case models.ThreadDirect:
		if len(participants) == 2 {
			if existing, ok, err := s.findDirectThread(ctx, participants[0].ID, participants[1].ID); err != nil {
				return models.Thread{}, err
			} else if ok {
				return existing, nil
			}
		}
	case models.ThreadGroup:
		if t.Name != "" {
			t = chat.AppendMessage(t, chat.SystemMessage(t.ID, fmt.Sprintf("%s created the group %s", session.UserName, t.Name), now))
		}
	case models.ThreadClient:
		if cmd.ClientID == "" {
			return models.Thread{}, errors.NewValidationError("clientId", "client threads need a client")
		}
		client, err := s.directory.GetClient(ctx, cmd.ClientID)
		if err != nil {
			return models.Thread{}, err
		}
		t.Client = &client
		if t.Name == "" {
			t.Name = client.Name
		}
		if t.HasSource(models.SourceWhatsApp) && t.ExternalChatID == "" {
			return models.Thread{}, errors.NewValidationError("externalChatId", "whatsapp threads need the external chat id")
		}
	}

	if err := chat.ValidateThread(t); err != nil {
		return models.Thread{}, err
	}

	err = s.queue.Do(ctx, t.ID, func(ctx context.Context) error {
		if err := s.repo.SaveThread(ctx, t); err != nil {
			return err
		}
		s.publish([]models.ChatEvent{s.threadEvent(models.EventThreadUpdated, t)})
		return nil
	})
	if err != nil {
		return models.Thread{}, err
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldThreadID:   t.ID,
		LogFieldThreadType: string(t.Type),
		LogFieldUserID:     session.UserID,
		LogFieldCount:      len(t.Participants),
	}).Info("Created thread")
	return t, nil
}

// resolveParticipants looks up the creator and every requested participant,
// dropping duplicates. The creator comes first.
func (s *ChatService) resolveParticipants(ctx context.Context, session models.Session, ids []string) ([]models.Participant, error) {
	creator, err := s.directory.GetParticipant(ctx, session.UserID)
	if err != nil {
		creator = session.AsParticipant()
	}

	participants := []models.Participant{creator}
	seen := map[string]bool{creator.ID: true}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		p, err := s.directory.GetParticipant(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUnknownParticipant, "unknown participant").
				WithContext("participant_id", id).
				WithUserMessage("One of the selected people does not exist")
		}
		seen[id] = true
		participants = append(participants, p)
	}
	return participants, nil
}

func (s *ChatService) findDirectThread(ctx context.Context, a, b string) (models.Thread, bool, error) {
	all, err := s.repo.ListThreads(ctx)
	if err != nil {
		return models.Thread{}, false, err
	}
	for _, t := range all {
		if t.Type == models.ThreadDirect && t.IsParticipant(a) && t.IsParticipant(b) {
			return t, true, nil
		}
	}
	return models.Thread{}, false, nil
}

// DeleteGroup removes a group thread. Only admins may do this.
func (s *ChatService) DeleteGroup(ctx context.Context, session models.Session, threadID string) error {
	if !session.IsAdmin {
		return errors.NewForbiddenError("delete groups")
	}

	return s.queue.Do(ctx, threadID, func(ctx context.Context) error {
		t, err := s.repo.GetThread(ctx, threadID)
		if err != nil {
			return err
		}
		if t.Type != models.ThreadGroup {
			return errors.NewValidationError("type", "only group threads can be deleted")
		}
		if err := s.repo.DeleteThread(ctx, threadID); err != nil {
			return err
		}
		s.publish([]models.ChatEvent{{
			Type:       models.EventThreadDeleted,
			ThreadID:   threadID,
			Recipients: recipients(t),
			OccurredAt: s.now(),
		}})
		s.logger.WithFields(logrus.Fields{
			LogFieldThreadID: threadID,
			LogFieldUserID:   session.UserID,
		}).Info("Deleted group")
		return nil
	})
}

func (s *ChatService) TogglePin(ctx context.Context, session models.Session, threadID string) (models.Thread, error) {
	return s.toggleThread(ctx, session, threadID, chat.TogglePin)
}

func (s *ChatService) ToggleMute(ctx context.Context, session models.Session, threadID string) (models.Thread, error) {
	return s.toggleThread(ctx, session, threadID, chat.ToggleMute)
}

func (s *ChatService) toggleThread(ctx context.Context, session models.Session, threadID string, toggle func(models.Thread) models.Thread) (models.Thread, error) {
	return s.mutate(ctx, threadID, func(t models.Thread) (threadChange, error) {
		if !canView(session, t) {
			return threadChange{}, errors.NewThreadNotFoundError(threadID)
		}
		t = toggle(t)
		return changed(t, s.threadEvent(models.EventThreadUpdated, t)), nil
	})
}
