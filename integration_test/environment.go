package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"furnidesk/internal/database"
	"furnidesk/internal/fixtures"
	"furnidesk/internal/models"
	"furnidesk/internal/realtime"
	"furnidesk/internal/service"
	"furnidesk/pkg/circuitbreaker"
	"furnidesk/pkg/whatsapp"
	"furnidesk/pkg/whatsapp/types"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testEncryptionSecret = "integration-test-secret-at-least-32-chars"

// TestEnvironment runs the chat core on a real sqlite database with the
// fixtures seeded, a running realtime hub and a fake WhatsApp gateway.
type TestEnvironment struct {
	t        *testing.T
	dbPath   string
	db       *database.Database
	svc      *service.ChatService
	hub      *realtime.Hub
	channels *service.ChannelManager
	gateway  *FakeGateway
	wsServer *httptest.Server
}

// EnvironmentOptions tunes the external channel breaker.
type EnvironmentOptions struct {
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

func defaultOptions() EnvironmentOptions {
	return EnvironmentOptions{
		BreakerMaxFailures: 5,
		BreakerTimeout:     time.Minute,
	}
}

func NewTestEnvironment(t *testing.T) *TestEnvironment {
	return NewTestEnvironmentWithOptions(t, defaultOptions())
}

func NewTestEnvironmentWithOptions(t *testing.T, opts EnvironmentOptions) *TestEnvironment {
	t.Helper()
	t.Setenv("FURNIDESK_ENABLE_ENCRYPTION", "true")
	t.Setenv("FURNIDESK_ENCRYPTION_SECRET", testEncryptionSecret)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &TestEnvironment{
		t:       t,
		dbPath:  filepath.Join(t.TempDir(), "furnidesk.db"),
		gateway: NewFakeGateway(t),
	}

	db, err := database.New(env.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, fixtures.Seed(context.Background(), db, time.Now()))
	env.db = db

	env.channels = service.NewChannelManager(logger)
	client := whatsapp.NewClient(types.ClientConfig{
		BaseURL:     env.gateway.URL(),
		APIKey:      "test-api-key",
		SessionName: "default",
		Timeout:     2 * time.Second,
	})
	require.NoError(t, env.channels.Register(service.NewWhatsAppChannel(client, logger), circuitbreaker.Config{
		MaxFailures:      opts.BreakerMaxFailures,
		Timeout:          opts.BreakerTimeout,
		HalfOpenMaxCalls: 1,
	}))

	env.hub = realtime.NewHub(realtime.Options{}, logger)
	env.svc = service.NewChatService(db, db, service.NewLocalTransport(env.hub), env.channels,
		models.RetryConfig{InitialBackoffMs: 1, MaxBackoffMs: 2, MaxAttempts: 1}, logger)
	env.svc.SetPublisher(env.hub)
	env.hub.Bind(env.svc)

	ctx, cancel := context.WithCancel(context.Background())
	go env.hub.Run(ctx)
	require.Eventually(t, env.hub.Available, time.Second, 5*time.Millisecond)

	env.wsServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := db.GetParticipant(r.Context(), r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "unknown user", http.StatusUnauthorized)
			return
		}
		env.hub.ServeWS(w, r, models.SessionFor(p))
	}))

	t.Cleanup(func() {
		env.wsServer.Close()
		cancel()
		env.hub.Wait()
		env.svc.Close()
	})
	return env
}

// Thread reads a thread straight from the database.
func (env *TestEnvironment) Thread(threadID string) models.Thread {
	env.t.Helper()
	thread, err := env.db.GetThread(context.Background(), threadID)
	require.NoError(env.t, err)
	return thread
}

func (env *TestEnvironment) MessageStatus(threadID, messageID string) models.MessageStatus {
	msg, ok := env.Thread(threadID).FindMessage(messageID)
	if !ok {
		return ""
	}
	return msg.Status
}

// Connect opens a websocket session for the user and waits until the hub
// has registered it.
func (env *TestEnvironment) Connect(p models.Participant) *Session {
	env.t.Helper()
	before := env.hub.ClientCount()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.wsServer.URL, "http") + "/ws?user=" + p.ID
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(env.t, err)
	env.t.Cleanup(func() { _ = conn.CloseNow() })

	require.Eventually(env.t, func() bool { return env.hub.ClientCount() > before }, time.Second, 5*time.Millisecond)
	return &Session{t: env.t, conn: conn}
}

// Session is a connected dashboard.
type Session struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

// Event is one envelope read from the socket.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WaitFor reads envelopes until one matches, failing after two seconds.
func (s *Session) WaitFor(match func(Event) bool) Event {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := s.conn.Read(ctx)
		require.NoError(s.t, err, "no matching event before timeout")
		var e Event
		require.NoError(s.t, json.Unmarshal(data, &e))
		if match(e) {
			return e
		}
	}
}

// WaitForEvent waits for a chat event of the given type on threadID.
func (s *Session) WaitForEvent(eventType, threadID string) models.ChatEvent {
	s.t.Helper()
	var found models.ChatEvent
	s.WaitFor(func(e Event) bool {
		if e.Type != eventType {
			return false
		}
		var ce models.ChatEvent
		if json.Unmarshal(e.Payload, &ce) != nil || ce.ThreadID != threadID {
			return false
		}
		found = ce
		return true
	})
	return found
}

// CommandResult is a decoded command reply.
type CommandResult struct {
	OK    bool                `json:"ok"`
	Error *realtime.ErrorBody `json:"error"`
	Data  json.RawMessage     `json:"data"`
}

// Command sends a socket command and waits for its result.
func (s *Session) Command(cmdType string, payload interface{}) CommandResult {
	s.t.Helper()
	s.seq++
	requestID := fmt.Sprintf("%s-%d", cmdType, s.seq)
	cmd := map[string]interface{}{"type": cmdType, "requestId": requestID}
	if payload != nil {
		cmd["payload"] = payload
	}
	data, err := json.Marshal(cmd)
	require.NoError(s.t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(s.t, s.conn.Write(ctx, websocket.MessageText, data))

	var result CommandResult
	s.WaitFor(func(e Event) bool {
		if e.Type != realtime.TypeResult {
			return false
		}
		var r struct {
			RequestID string `json:"requestId"`
			CommandResult
		}
		if json.Unmarshal(e.Payload, &r) != nil || r.RequestID != requestID {
			return false
		}
		result = r.CommandResult
		return true
	})
	return result
}

// FakeGateway stands in for the WhatsApp HTTP gateway. It records every
// sendText and sendSeen call and can be told to fail.
type FakeGateway struct {
	server *httptest.Server

	mu       sync.Mutex
	sent     []types.SendTextRequest
	seen     []types.SeenRequest
	failWith int
	nextID   int
	attempts int
}

func NewFakeGateway(t *testing.T) *FakeGateway {
	g := &FakeGateway{}
	mux := http.NewServeMux()
	mux.HandleFunc(types.APIBase+types.EndpointSendText, g.handleSendText)
	mux.HandleFunc(types.APIBase+types.EndpointSendSeen, g.handleSendSeen)
	mux.HandleFunc(types.APIBase+types.EndpointHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func (g *FakeGateway) URL() string { return g.server.URL }

// FailWith makes every call answer with status until it is reset with 0.
func (g *FakeGateway) FailWith(status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = status
}

func (g *FakeGateway) Sent() []types.SendTextRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.SendTextRequest(nil), g.sent...)
}

// Attempts counts sendText calls, failed ones included.
func (g *FakeGateway) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

func (g *FakeGateway) Seen() []types.SeenRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.SeenRequest(nil), g.seen...)
}

func (g *FakeGateway) failing(w http.ResponseWriter) bool {
	g.mu.Lock()
	status := g.failWith
	g.mu.Unlock()
	if status == 0 {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"message":"gateway unavailable"}`))
	return true
}

func (g *FakeGateway) handleSendText(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.attempts++
	g.mu.Unlock()
	if g.failing(w) {
		return
	}
	var req types.SendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.sent = append(g.sent, req)
	g.nextID++
	id := fmt.Sprintf("true_%s_OUT%d", req.ChatID, g.nextID)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.SendMessageResponse{
		ID: &types.MessageID{FromMe: true, Remote: req.ChatID, Serialized: id},
	})
}

func (g *FakeGateway) handleSendSeen(w http.ResponseWriter, r *http.Request) {
	if g.failing(w) {
		return
	}
	var req types.SeenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.seen = append(g.seen, req)
	g.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}
