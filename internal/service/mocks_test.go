package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"furnidesk/internal/errors"
	"furnidesk/internal/models"
	"furnidesk/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

var (
	testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	ana    = models.Participant{ID: "u-ana", Name: "Ana", Role: "sales"}
	bruno  = models.Participant{ID: "u-bruno", Name: "Bruno", Role: "workshop"}
	carla  = models.Participant{ID: "u-carla", Name: "Carla", Role: "manager", IsAdmin: true}
	daniel = models.Participant{ID: "u-daniel", Name: "Daniel", Role: "delivery"}

	clientContact = models.Participant{ID: "whatsapp:5511999990000", Name: "Marina Souza", Role: "client"}
	marina        = models.ClientReference{ID: "cl-1", Name: "Marina Souza", Status: models.ClientActive, Phone: "5511999990000"}
)

// memoryRepo is an in-memory ThreadRepository and Directory.
type memoryRepo struct {
	mu           sync.Mutex
	threads      map[string]models.Thread
	order        []string
	participants map[string]models.Participant
	clients      map[string]models.ClientReference
}

func newMemoryRepo(threads ...models.Thread) *memoryRepo {
	r := &memoryRepo{
		threads:      make(map[string]models.Thread),
		participants: make(map[string]models.Participant),
		clients:      map[string]models.ClientReference{marina.ID: marina},
	}
	for _, p := range []models.Participant{ana, bruno, carla, daniel} {
		r.participants[p.ID] = p
	}
	for _, t := range threads {
		r.threads[t.ID] = t.Clone()
		r.order = append(r.order, t.ID)
	}
	return r
}

func (r *memoryRepo) SaveThread(_ context.Context, t models.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.threads[t.ID]; !ok {
		r.order = append(r.order, t.ID)
	}
	r.threads[t.ID] = t.Clone()
	return nil
}

func (r *memoryRepo) GetThread(_ context.Context, threadID string) (models.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[threadID]
	if !ok {
		return models.Thread{}, errors.NewThreadNotFoundError(threadID)
	}
	return t.Clone(), nil
}

func (r *memoryRepo) ListThreads(_ context.Context) ([]models.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Thread, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.threads[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteThread(_ context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, threadID)
	return nil
}

func (r *memoryRepo) FindThreadByExternalChat(_ context.Context, source, chatID string) (models.Thread, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		t, ok := r.threads[id]
		if ok && t.HasSource(source) && t.ExternalChatID == chatID {
			return t.Clone(), true, nil
		}
	}
	return models.Thread{}, false, nil
}

func (r *memoryRepo) FindMessageByExternalID(_ context.Context, externalID string) (string, string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.threads {
		for _, m := range t.Messages {
			if m.ExternalID == externalID {
				return t.ID, m.ID, true, nil
			}
		}
	}
	return "", "", false, nil
}

func (r *memoryRepo) CountStaleMessages(_ context.Context, threshold time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	count := 0
	for _, t := range r.threads {
		for _, m := range t.Messages {
			if m.Status == models.StatusSending && m.CreatedAt.Before(cutoff) {
				count++
			}
		}
	}
	return count, nil
}

func (r *memoryRepo) GetParticipant(_ context.Context, participantID string) (models.Participant, error) {
	p, ok := r.participants[participantID]
	if !ok {
		return models.Participant{}, errors.NewNotFoundError("participant", participantID)
	}
	return p, nil
}

func (r *memoryRepo) GetClient(_ context.Context, clientID string) (models.ClientReference, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return models.ClientReference{}, errors.NewNotFoundError("client", clientID)
	}
	return c, nil
}

func (r *memoryRepo) ListParticipants(_ context.Context) ([]models.Participant, error) {
	out := make([]models.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) thread(t *testing.T, id string) models.Thread {
	t.Helper()
	th, err := r.GetThread(context.Background(), id)
	if err != nil {
		t.Fatalf("thread %s: %v", id, err)
	}
	return th
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Name() string { return "mock" }

func (m *mockTransport) Send(ctx context.Context, thread models.Thread, msg models.Message) (Receipt, error) {
	args := m.Called(ctx, thread, msg)
	return args.Get(0).(Receipt), args.Error(1)
}

func sentTransport() *mockTransport {
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(Receipt{Status: models.StatusSent}, nil)
	return tr
}

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) Source() string { return models.SourceWhatsApp }

func (m *mockChannel) Forward(ctx context.Context, thread models.Thread, msg models.Message) (Receipt, error) {
	args := m.Called(ctx, thread, msg)
	return args.Get(0).(Receipt), args.Error(1)
}

func (m *mockChannel) MarkSeen(ctx context.Context, thread models.Thread) error {
	args := m.Called(ctx, thread)
	return args.Error(0)
}

type mockWhatsAppClient struct {
	mock.Mock
}

func (m *mockWhatsAppClient) SendText(ctx context.Context, chatID, text, replyTo string) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, chatID, text, replyTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SendMessageResponse), args.Error(1)
}

func (m *mockWhatsAppClient) SendSeen(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *mockWhatsAppClient) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChatEvent
}

func (p *recordingPublisher) Publish(e models.ChatEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) all() []models.ChatEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ChatEvent(nil), p.events...)
}

func (p *recordingPublisher) types() []string {
	var out []string
	for _, e := range p.all() {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (s *recordingSink) HandleStatusEvent(_ context.Context, e models.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) all() []models.StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StatusEvent(nil), s.events...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

var fastRetry = models.RetryConfig{InitialBackoffMs: 1, MaxBackoffMs: 2, MaxAttempts: 3}

func groupThread() models.Thread {
	return models.Thread{
		ID:           "g1",
		Type:         models.ThreadGroup,
		Name:         "Workshop",
		Participants: []models.Participant{ana, bruno},
		Messages: []models.Message{
			{ID: "g1-m1", ThreadID: "g1", SenderID: bruno.ID, SenderName: "Bruno", Content: "Varnish is dry", Status: models.StatusDelivered, CreatedAt: testNow.Add(-time.Hour)},
			{ID: "g1-m2", ThreadID: "g1", SenderID: ana.ID, SenderName: "Ana", Content: "Great, packing it", Status: models.StatusSent, CreatedAt: testNow.Add(-50 * time.Minute)},
		},
		UnreadCount:  1,
		LastActivity: testNow.Add(-50 * time.Minute),
		CreatedAt:    testNow.Add(-48 * time.Hour),
	}
}

func clientThread() models.Thread {
	client := marina
	return models.Thread{
		ID:           "c1",
		Type:         models.ThreadClient,
		Name:         "Marina Souza",
		Participants: []models.Participant{clientContact},
		Messages: []models.Message{
			{ID: "c1-m1", ThreadID: "c1", SenderID: clientContact.ID, SenderName: "Marina Souza", Content: "Is my sofa ready?", Status: models.StatusDelivered, CreatedAt: testNow.Add(-2 * time.Hour), Source: models.SourceWhatsApp, ExternalID: "false_5511999990000@c.us_AAA"},
		},
		UnreadCount:    1,
		Client:         &client,
		Sources:        []string{models.SourceWhatsApp},
		ExternalChatID: "5511999990000@c.us",
		LastActivity:   testNow.Add(-2 * time.Hour),
		CreatedAt:      testNow.Add(-72 * time.Hour),
	}
}

func directThread() models.Thread {
	return models.Thread{
		ID:           "d1",
		Type:         models.ThreadDirect,
		Name:         "Ana / Daniel",
		Participants: []models.Participant{ana, daniel},
		Messages:     []models.Message{},
		LastActivity: testNow.Add(-30 * time.Hour),
		CreatedAt:    testNow.Add(-30 * time.Hour),
	}
}

type testService struct {
	*ChatService
	repo      *memoryRepo
	publisher *recordingPublisher
}

func newTestService(t *testing.T, transport Transport, channels *ChannelManager) *testService {
	t.Helper()
	repo := newMemoryRepo(groupThread(), clientThread(), directThread())
	svc := NewChatService(repo, repo, transport, channels, fastRetry, quietLogger())
	svc.now = func() time.Time { return testNow }
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	t.Cleanup(svc.Close)
	return &testService{ChatService: svc, repo: repo, publisher: pub}
}
