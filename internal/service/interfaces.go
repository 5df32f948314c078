package service

import (
	"context"
	"time"

	"furnidesk/internal/models"
)

// ThreadRepository stores whole threads. GetThread returns a THREAD_NOT_FOUND
// AppError for unknown ids.
type ThreadRepository interface {
	SaveThread(ctx context.Context, thread models.Thread) error
	GetThread(ctx context.Context, threadID string) (models.Thread, error)
	ListThreads(ctx context.Context) ([]models.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	FindThreadByExternalChat(ctx context.Context, source, chatID string) (models.Thread, bool, error)
	FindMessageByExternalID(ctx context.Context, externalID string) (threadID, messageID string, found bool, err error)
	// CountStaleMessages counts messages still in sending after threshold.
	CountStaleMessages(ctx context.Context, threshold time.Duration) (int, error)
}

// Directory is the read-only lookup of staff users and client records.
type Directory interface {
	GetParticipant(ctx context.Context, participantID string) (models.Participant, error)
	GetClient(ctx context.Context, clientID string) (models.ClientReference, error)
	ListParticipants(ctx context.Context) ([]models.Participant, error)
}

// Receipt is what a transport reports for an accepted message.
type Receipt struct {
	ExternalID string
	Status     models.MessageStatus
	At         time.Time
}

// Transport hands a stored message to its recipients.
type Transport interface {
	Name() string
	Send(ctx context.Context, thread models.Thread, msg models.Message) (Receipt, error)
}

// ExternalChannel forwards messages to a linked outside chat such as WhatsApp.
type ExternalChannel interface {
	Source() string
	Forward(ctx context.Context, thread models.Thread, msg models.Message) (Receipt, error)
	MarkSeen(ctx context.Context, thread models.Thread) error
}

// EventPublisher receives every change applied to a thread. Publish is called
// while the thread's update queue is held and must not block.
type EventPublisher interface {
	Publish(event models.ChatEvent)
}

// StatusSink accepts status events coming back from a transport.
type StatusSink interface {
	HandleStatusEvent(ctx context.Context, event models.StatusEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.ChatEvent) {}
