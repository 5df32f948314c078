// Package realtime fans chat events out to connected dashboard sessions over
// websockets and runs each session's commands against the chat service.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/constants"
	"furnidesk/internal/errors"
	"furnidesk/internal/metrics"
	"furnidesk/internal/models"
	"furnidesk/internal/service"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Service is the part of the chat service driven from the socket.
type Service interface {
	chat.Backend
	RetryMessage(ctx context.Context, session models.Session, threadID, messageID string) (models.Message, error)
	ToggleImportant(ctx context.Context, session models.Session, cmd models.ToggleImportantCommand) (models.Message, error)
	TogglePin(ctx context.Context, session models.Session, threadID string) (models.Thread, error)
	ToggleMute(ctx context.Context, session models.Session, threadID string) (models.Thread, error)
	HandleStatusEvent(ctx context.Context, event models.StatusEvent) error
	SetUserPresence(ctx context.Context, userID string, online bool) error
}

type Options struct {
	OriginPatterns  []string
	BroadcastBuffer int
	SendBuffer      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	CommandRate     float64
	CommandBurst    int
}

func DefaultOptions() Options {
	return Options{
		BroadcastBuffer: constants.DefaultBroadcastBuffer,
		SendBuffer:      constants.DefaultClientSendBuffer,
		WriteTimeout:    constants.DefaultWSWriteTimeoutSec * time.Second,
		PingInterval:    constants.DefaultWSPingIntervalSec * time.Second,
		MaxMessageBytes: constants.DefaultWSMaxMessageBytes,
		CommandRate:     constants.DefaultRateLimitPerSecond,
		CommandBurst:    constants.DefaultRateLimitBurst,
	}
}

type presenceChange struct {
	userID string
	online bool
}

// Hub tracks connected sessions. Run owns the client set; everything else
// talks to it through channels.
type Hub struct {
	opts    Options
	logger  *logrus.Logger
	service Service

	register   chan *Client
	unregister chan *Client
	broadcast  chan models.ChatEvent
	presence   chan presenceChange
	done       chan struct{}

	clients map[*Client]struct{}
	online  map[string]int

	running atomic.Bool
	count   atomic.Int64

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewHub(opts Options, logger *logrus.Logger) *Hub {
	defaults := DefaultOptions()
	if opts.BroadcastBuffer <= 0 {
		opts.BroadcastBuffer = defaults.BroadcastBuffer
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if opts.CommandRate <= 0 {
		opts.CommandRate = defaults.CommandRate
	}
	if opts.CommandBurst <= 0 {
		opts.CommandBurst = defaults.CommandBurst
	}

	return &Hub{
		opts:       opts,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.ChatEvent, opts.BroadcastBuffer),
		presence:   make(chan presenceChange, constants.DefaultPresenceBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		online:     make(map[string]int),
	}
}

// Bind sets the service commands run against. It must be called before Run.
func (h *Hub) Bind(svc Service) {
	h.service = svc
}

// Available reports whether the hub is accepting events.
func (h *Hub) Available() bool {
	return h.running.Load()
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Publish queues e for fan-out. It never blocks: when the buffer is full the
// event is dropped and counted.
func (h *Hub) Publish(e models.ChatEvent) {
	if !h.running.Load() {
		return
	}
	select {
	case h.broadcast <- e:
	default:
		metrics.IncrementCounter("realtime_events_dropped_total", map[string]string{service.LogFieldEvent: e.Type}, "Events dropped because the broadcast buffer was full")
		h.logger.WithFields(logrus.Fields{
			service.LogFieldEvent:    e.Type,
			service.LogFieldThreadID: e.ThreadID,
		}).Warn("Broadcast buffer full, dropping event")
	}
}

// Run serves the hub until ctx is cancelled. On return every client is
// disconnected.
func (h *Hub) Run(ctx context.Context) {
	h.wg.Add(1)
	go h.presenceLoop()
	h.running.Store(true)
	defer h.shutdown()

	h.logger.Info("Realtime hub started")
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case e := <-h.broadcast:
			h.dispatch(e)
		}
	}
}

func (h *Hub) shutdown() {
	h.running.Store(false)
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	close(h.done)

	for c := range h.clients {
		h.remove(c)
	}
	close(h.presence)
	h.logger.Info("Realtime hub stopped")
}

// Wait blocks until pending acknowledgments and presence updates finished.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) add(c *Client) {
	h.clients[c] = struct{}{}
	h.count.Store(int64(len(h.clients)))
	metrics.SetGauge("websocket_connections", float64(len(h.clients)), nil, "Connected dashboard sessions")

	user := c.session.UserID
	h.online[user]++
	if h.online[user] == 1 {
		h.queuePresence(user, true)
	}
	h.logger.WithFields(logrus.Fields{
		service.LogFieldUserID: user,
		service.LogFieldCount:  len(h.clients),
	}).Debug("Session connected")
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
	metrics.SetGauge("websocket_connections", float64(len(h.clients)), nil, "Connected dashboard sessions")

	user := c.session.UserID
	h.online[user]--
	if h.online[user] <= 0 {
		delete(h.online, user)
		h.queuePresence(user, false)
	}
	h.logger.WithFields(logrus.Fields{
		service.LogFieldUserID: user,
		service.LogFieldCount:  len(h.clients),
	}).Debug("Session disconnected")
}

func (h *Hub) queuePresence(userID string, online bool) {
	select {
	case h.presence <- presenceChange{userID: userID, online: online}:
	default:
		h.logger.WithField(service.LogFieldUserID, userID).Warn("Presence queue full, dropping update")
	}
}

// presenceLoop applies presence changes in the order users connected and
// disconnected. It outlives Run so the final offline updates are stored.
func (h *Hub) presenceLoop() {
	defer h.wg.Done()
	for p := range h.presence {
		if h.service == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultPresenceTimeoutSec*time.Second)
		if err := h.service.SetUserPresence(ctx, p.userID, p.online); err != nil {
			errors.Log(h.logger, err, "Failed to update presence", logrus.Fields{service.LogFieldUserID: p.userID})
		}
		cancel()
	}
}

func (h *Hub) dispatch(e models.ChatEvent) {
	for c := range h.clients {
		if !c.wants(e) {
			continue
		}
		select {
		case c.send <- e:
		default:
			metrics.IncrementCounter("websocket_slow_consumers_total", nil, "Sessions disconnected for not keeping up")
			h.logger.WithField(service.LogFieldUserID, c.session.UserID).Warn("Session not keeping up, disconnecting")
			h.remove(c)
		}
	}
}

// acknowledge reports a message as delivered once it was written to a
// session other than its sender. Only local conversations are acknowledged
// here: client threads reach their audience through external channels,
// which report delivery themselves.
func (h *Hub) acknowledge(c *Client, e models.ChatEvent) {
	if h.service == nil || e.Type != models.EventMessageNew || e.Message == nil || e.Recipients == nil {
		return
	}
	msg := e.Message
	if msg.IsSystem || msg.IsInternalNote || msg.Source != "" || msg.SenderID == c.session.UserID {
		return
	}
	if msg.Status.Rank() >= models.StatusDelivered.Rank() || msg.Status == models.StatusError {
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	event := models.StatusEvent{ThreadID: e.ThreadID, MessageID: msg.ID, Status: models.StatusDelivered}
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultAckTimeoutSec*time.Second)
		defer cancel()
		if err := h.service.HandleStatusEvent(ctx, event); err != nil {
			errors.Log(h.logger, err, "Failed to record delivery", logrus.Fields{
				service.LogFieldThreadID:  event.ThreadID,
				service.LogFieldMessageID: event.MessageID,
			})
		}
	}()
}

// ServeWS upgrades the request and serves the session until the socket
// closes. The session is resolved by the caller.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, session models.Session) {
	if !h.running.Load() || h.service == nil {
		http.Error(w, "realtime hub is not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		h.logger.WithError(err).WithField(service.LogFieldUserID, session.UserID).Warn("Websocket upgrade failed")
		return
	}
	conn.SetReadLimit(h.opts.MaxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newClient(ctx, h, conn, session)
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	c.serve(ctx)

	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
