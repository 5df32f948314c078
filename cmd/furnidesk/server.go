package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/constants"
	"furnidesk/internal/display"
	"furnidesk/internal/errors"
	"furnidesk/internal/httputil"
	"furnidesk/internal/metrics"
	"furnidesk/internal/middleware"
	"furnidesk/internal/models"
	"furnidesk/internal/realtime"
	"furnidesk/internal/service"
	"furnidesk/internal/tracing"
	"furnidesk/internal/validation"
	"furnidesk/internal/versioning"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Store is the storage the server runs on: the sqlite database or, in demo
// mode, the in-memory store.
type Store interface {
	service.ThreadRepository
	service.Directory
}

type pinger interface {
	Ping(ctx context.Context) error
}

type sessionKey struct{}

type Server struct {
	cfg      *models.Config
	router   *mux.Router
	logger   *logrus.Logger
	svc      *service.ChatService
	store    Store
	hub      *realtime.Hub
	channels *service.ChannelManager
	limiter  *middleware.IPRateLimiter
	webhooks *webhookHandler
	server   *http.Server
	now      func() time.Time
}

func NewServer(cfg *models.Config, svc *service.ChatService, store Store, hub *realtime.Hub, channels *service.ChannelManager, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		router:   mux.NewRouter(),
		logger:   logger,
		svc:      svc,
		store:    store,
		hub:      hub,
		channels: channels,
		limiter:  middleware.NewIPRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst, logger),
		webhooks: newWebhookHandler(svc, cfg.WhatsApp, logger),
		now:      time.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	s.router.Use(middleware.DebugLoggingMiddleware(s.logger, "/health", "/metrics"))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	limited := s.router.NewRoute().Subrouter()
	limited.Use(s.limiter.Middleware)
	limited.Use(s.limitBody)

	api := limited.PathPrefix("/api").Subrouter()
	api.Use(versioning.Middleware(s.logger))
	api.Use(s.requireSession)
	api.HandleFunc("/participants", s.handleListParticipants()).Methods(http.MethodGet)
	api.HandleFunc("/threads", s.handleListThreads()).Methods(http.MethodGet)
	api.HandleFunc("/threads", s.handleCreateThread()).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}", s.handleGetThread()).Methods(http.MethodGet)
	api.HandleFunc("/threads/{id}", s.handleDeleteThread()).Methods(http.MethodDelete)
	api.HandleFunc("/threads/{id}/activate", s.handleThreadAction(s.svc.ActivateThread)).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}/pin", s.handleThreadAction(s.svc.TogglePin)).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}/mute", s.handleThreadAction(s.svc.ToggleMute)).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}/messages", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}/messages/{mid}", s.handleEditMessage()).Methods(http.MethodPatch)
	api.HandleFunc("/threads/{id}/messages/{mid}/important", s.handleToggleImportant()).Methods(http.MethodPost)
	api.HandleFunc("/threads/{id}/messages/{mid}/retry", s.handleRetryMessage()).Methods(http.MethodPost)

	// Transport-layer inbound events carry no session.
	events := limited.PathPrefix("/api/events").Subrouter()
	events.Use(versioning.Middleware(s.logger))
	events.HandleFunc("/message", s.handleMessageEvent()).Methods(http.MethodPost)
	events.HandleFunc("/status", s.handleStatusEvent()).Methods(http.MethodPost)
	events.HandleFunc("/presence", s.handlePresenceEvent()).Methods(http.MethodPost)

	webhook := limited.PathPrefix("/webhook").Subrouter()
	webhook.Use(middleware.WebhookObservabilityMiddleware(s.logger, models.SourceWhatsApp))
	webhook.Handle("/whatsapp", s.webhooks).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebsocket()).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	go s.limiter.Run(ctx)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.WithField("port", s.cfg.Server.Port).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// limitBody caps request bodies at the configured size.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, s.cfg.Server.MaxRequestBytes); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxRequestBytes)
		next.ServeHTTP(w, r)
	})
}

// resolveSession looks the caller up in the directory. Browsers cannot set
// headers on a websocket upgrade, so the user query parameter is accepted too.
func (s *Server) resolveSession(r *http.Request) (models.Session, error) {
	userID := strings.TrimSpace(r.Header.Get(middleware.UserIDHeader))
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get("user"))
	}
	if userID == "" {
		return models.Session{}, errors.New(errors.ErrCodeUnknownParticipant, "missing user id").
			WithUserMessage("Identify yourself with the X-User-ID header")
	}

	p, err := s.store.GetParticipant(r.Context(), userID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return models.Session{}, errors.New(errors.ErrCodeUnknownParticipant, "unknown user").
				WithContext("user_id", userID).
				WithUserMessage("Unknown user")
		}
		return models.Session{}, err
	}
	return models.SessionFor(p), nil
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.resolveSession(r)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		ctx = tracing.WithUserID(ctx, session.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) models.Session {
	session, _ := r.Context().Value(sessionKey{}).(models.Session)
	return session
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{
			"status":   "healthy",
			"version":  Version,
			"uptime":   metrics.GetRegistry().Uptime().Round(time.Second).String(),
			"realtime": s.hub.Available(),
			"clients":  s.hub.ClientCount(),
		}

		if p, ok := s.store.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				s.logger.WithError(err).Warn("Health check: database unreachable")
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body["database"] = "unreachable"
			} else {
				body["database"] = "ok"
			}
		} else {
			body["database"] = "memory"
		}

		if s.channels != nil {
			channels := make(map[string]string)
			for source, stats := range s.channels.Stats() {
				channels[source] = stats.State.String()
			}
			body["channels"] = channels
		}

		httputil.WriteJSON(w, s.logger, status, body)
	}
}

func (s *Server) handleListParticipants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participants, err := s.store.ListParticipants(r.Context())
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, s.logger, http.StatusOK, participants)
	}
}

func parseFilter(r *http.Request) (chat.Filter, error) {
	q := r.URL.Query()
	filter := chat.Filter{
		SearchTerm: q.Get("q"),
		TypeFilter: q.Get("type"),
	}
	if err := validation.ValidateStringLength(filter.SearchTerm, "q", 0, constants.MaxSearchTermLength); err != nil {
		return chat.Filter{}, err
	}
	flags := []struct {
		name string
		dst  *bool
	}{
		{"pinned", &filter.PinnedOnly},
		{"unread", &filter.UnreadOnly},
		{"recent", &filter.RecentOnly},
	}
	for _, f := range flags {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return chat.Filter{}, errors.NewValidationError(f.name, "must be true or false")
		}
		*f.dst = v
	}
	return filter, nil
}

func (s *Server) handleListThreads() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		session := sessionFrom(r)
		list, err := s.svc.ListThreads(r.Context(), session, filter)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, s.logger, http.StatusOK, display.NewThreadListView(list, session, s.now()))
	}
}

func (s *Server) handleCreateThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd models.CreateThreadCommand
		if err := httputil.DecodeJSON(r, &cmd); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		session := sessionFrom(r)
		thread, err := s.svc.CreateThread(r.Context(), session, cmd)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, s.logger, http.StatusCreated, display.NewThreadView(thread, session, s.now()))
	}
}

func (s *Server) handleGetThread() http.HandlerFunc {
	return s.handleThreadAction(s.svc.GetThread)
}

// handleThreadAction serves the thread endpoints that take only the id and
// answer with the updated thread.
func (s *Server) handleThreadAction(action func(context.Context, models.Session, string) (models.Thread, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := sessionFrom(r)
		thread, err := action(r.Context(), session, mux.Vars(r)["id"])
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, s.logger, http.StatusOK, display.NewThreadView(thread, session, s.now()))
	}
}

func (s *Server) handleDeleteThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.DeleteGroup(r.Context(), sessionFrom(r), mux.Vars(r)["id"]); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// deliveryFailure is returned when a message was stored but its delivery
// failed, so the client can offer a retry.
type deliveryFailure struct {
	errors.HTTPErrorResponse
	Message display.MessageView `json:"message"`
}

func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, status int, msg models.Message, err error) {
	session := sessionFrom(r)
	if err != nil {
		if msg.ID == "" {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, s.logger, errors.HTTPStatusCode(err), deliveryFailure{
			HTTPErrorResponse: errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())),
			Message:           display.NewMessageView(msg, session, s.now()),
		})
		return
	}
	httputil.WriteJSON(w, s.logger, status, display.NewMessageView(msg, session, s.now()))
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd models.SendCommand
		if err := httputil.DecodeJSON(r, &cmd); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		cmd.ThreadID = mux.Vars(r)["id"]
		msg, err := s.svc.SendMessage(r.Context(), sessionFrom(r), cmd)
		s.writeMessage(w, r, http.StatusCreated, msg, err)
	}
}

func (s *Server) handleEditMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		vars := mux.Vars(r)
		msg, err := s.svc.EditMessage(r.Context(), sessionFrom(r), models.EditCommand{
			ThreadID:  vars["id"],
			MessageID: vars["mid"],
			Content:   body.Content,
		})
		s.writeMessage(w, r, http.StatusOK, msg, err)
	}
}

func (s *Server) handleToggleImportant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		msg, err := s.svc.ToggleImportant(r.Context(), sessionFrom(r), models.ToggleImportantCommand{
			ThreadID:  vars["id"],
			MessageID: vars["mid"],
		})
		s.writeMessage(w, r, http.StatusOK, msg, err)
	}
}

func (s *Server) handleRetryMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		msg, err := s.svc.RetryMessage(r.Context(), sessionFrom(r), vars["id"], vars["mid"])
		s.writeMessage(w, r, http.StatusOK, msg, err)
	}
}

func (s *Server) handleMessageEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event models.MessageEvent
		if err := httputil.DecodeJSON(r, &event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		msg, err := s.svc.HandleMessageEvent(r.Context(), event)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, s.logger, http.StatusAccepted, msg)
	}
}

func (s *Server) handleStatusEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event models.StatusEvent
		if err := httputil.DecodeJSON(r, &event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if err := s.svc.HandleStatusEvent(r.Context(), event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handlePresenceEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event models.PresenceEvent
		if err := httputil.DecodeJSON(r, &event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if err := s.svc.HandlePresenceEvent(r.Context(), event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleWebsocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.resolveSession(r)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		s.hub.ServeWS(w, r, session)
	}
}
