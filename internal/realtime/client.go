package realtime

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/display"
	"furnidesk/internal/errors"
	"furnidesk/internal/metrics"
	"furnidesk/internal/models"
	"furnidesk/internal/service"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const commandQueueSize = 16

// Client is one connected dashboard session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	session   models.Session
	workspace *chat.Workspace
	send      chan models.ChatEvent
	commands  chan Command
	limiter   *rate.Limiter
	logger    *logrus.Entry
	now       func() time.Time
}

func newClient(ctx context.Context, h *Hub, conn *websocket.Conn, session models.Session) *Client {
	return &Client{
		hub:       h,
		conn:      conn,
		session:   session,
		workspace: chat.NewWorkspace(ctx, session, h.service),
		send:      make(chan models.ChatEvent, h.opts.SendBuffer),
		commands:  make(chan Command, commandQueueSize),
		limiter:   rate.NewLimiter(rate.Limit(h.opts.CommandRate), h.opts.CommandBurst),
		logger:    h.logger.WithField(service.LogFieldUserID, session.UserID),
		now:       time.Now,
	}
}

// wants reports whether e concerns this session.
func (c *Client) wants(e models.ChatEvent) bool {
	return c.session.IsAdmin || e.Recipients == nil || slices.Contains(e.Recipients, c.session.UserID)
}

func (c *Client) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		c.commandLoop(ctx)
	}()

	c.readPump(ctx)
	close(c.commands)
	cancel()
	wg.Wait()

	c.workspace.Close()
	_ = c.conn.CloseNow()
}

// readPump reads commands until the socket closes. Commands run on their own
// goroutine so pongs keep flowing while a slow send is in progress.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.logger.Debug("Session closed the socket")
			default:
				if ctx.Err() == nil {
					c.logger.WithError(err).Debug("Socket read failed")
				}
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			bad := errors.New(errors.ErrCodeInvalidInput, "malformed command").WithUserMessage("Malformed command")
			c.reply(ctx, Result{OK: false, Error: newErrorBody(bad)})
			continue
		}
		if !c.limiter.Allow() {
			c.reply(ctx, Result{
				RequestID: cmd.RequestID,
				Command:   cmd.Type,
				Error:     newErrorBody(errors.NewRateLimitError(c.hub.opts.CommandRate, c.hub.opts.CommandBurst)),
			})
			continue
		}

		select {
		case c.commands <- cmd:
		default:
			busy := errors.New(errors.ErrCodeRateLimit, "too many pending commands").
				WithUserMessage("Too many requests, please try again later")
			c.reply(ctx, Result{RequestID: cmd.RequestID, Command: cmd.Type, Error: newErrorBody(busy)})
		}
	}
}

func (c *Client) commandLoop(ctx context.Context) {
	for cmd := range c.commands {
		c.reply(ctx, c.handle(ctx, cmd))
	}
}

// writePump forwards hub events and keeps the connection alive. Each event
// is folded into the workspace first so later commands see the same state
// the session was shown.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-c.send:
			if !ok {
				_ = c.conn.Close(websocket.StatusGoingAway, "disconnected by server")
				return
			}
			c.workspace.Apply(e)
			data, err := encodeEvent(e)
			if err != nil {
				c.logger.WithError(err).Error("Failed to encode event")
				continue
			}
			if err := c.write(ctx, data); err != nil {
				c.logger.WithError(err).Debug("Socket write failed")
				_ = c.conn.CloseNow()
				return
			}
			c.hub.acknowledge(c, e)

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.hub.opts.WriteTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.WithError(err).Debug("Ping failed, closing socket")
				}
				_ = c.conn.CloseNow()
				return
			}
		}
	}
}

func (c *Client) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.hub.opts.WriteTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) reply(ctx context.Context, r Result) {
	data, err := encodeResult(r)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode result")
		return
	}
	if err := c.write(ctx, data); err != nil && ctx.Err() == nil {
		c.logger.WithError(err).Debug("Failed to write result")
	}
}

func (c *Client) handle(ctx context.Context, cmd Command) Result {
	start := time.Now()
	data, err := c.execute(ctx, cmd)

	res := Result{RequestID: cmd.RequestID, Command: cmd.Type, OK: err == nil, Data: data}
	outcome := "ok"
	if err != nil {
		res.Error = newErrorBody(err)
		outcome = string(errors.GetCode(err))
		errors.Log(c.logger, err, "Command failed", logrus.Fields{service.LogFieldOperation: cmd.Type})
	}
	labels := map[string]string{"command": cmd.Type, service.LogFieldStatus: outcome}
	metrics.IncrementCounter("websocket_commands_total", labels, "Commands received from dashboard sessions")
	metrics.RecordTimer("websocket_command_duration_seconds", time.Since(start), map[string]string{"command": cmd.Type}, "Time spent running a dashboard command")
	return res
}

func decode(cmd Command, v interface{}) error {
	if len(cmd.Payload) == 0 {
		return errors.NewValidationError("payload", "payload is required")
	}
	if err := json.Unmarshal(cmd.Payload, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed payload").WithUserMessage("Malformed command")
	}
	return nil
}

type threadSelected struct {
	Thread   display.ThreadView `json:"thread"`
	Composer ComposerView       `json:"composer"`
}

type submitted struct {
	Message  *display.MessageView `json:"message,omitempty"`
	Composer ComposerView         `json:"composer"`
}

func (c *Client) execute(ctx context.Context, cmd Command) (interface{}, error) {
	svc := c.hub.service

	switch cmd.Type {
	case CmdListThreads:
		return c.list(ctx)

	case CmdSetFilter:
		var f chat.Filter
		if err := decode(cmd, &f); err != nil {
			return nil, err
		}
		c.workspace.SetFilter(f)
		return c.list(ctx)

	case CmdClearFilter:
		c.workspace.ClearFilters()
		return c.list(ctx)

	case CmdSelectThread:
		var p threadPayload
		if err := decode(cmd, &p); err != nil {
			return nil, err
		}
		t, err := c.workspace.Select(p.ThreadID)
		if err != nil {
			return nil, err
		}
		return threadSelected{
			Thread:   display.NewThreadView(t, c.session, c.now()),
			Composer: newComposerView(t.ID, c.workspace.Composer(t.ID)),
		}, nil

	case CmdTogglePin, CmdToggleMute:
		var p threadPayload
		if err := decode(cmd, &p); err != nil {
			return nil, err
		}
		toggle := svc.TogglePin
		if cmd.Type == CmdToggleMute {
			toggle = svc.ToggleMute
		}
		t, err := toggle(ctx, c.session, p.ThreadID)
		if err != nil {
			return nil, err
		}
		return display.NewThreadItemView(t, c.session, c.now()), nil

	case CmdRetryMessage, CmdToggleImportant:
		var p messagePayload
		if err := decode(cmd, &p); err != nil {
			return nil, err
		}
		active, ok := c.workspace.ActiveThread()
		if !ok {
			return nil, errors.NewNoActiveThreadError()
		}
		var msg models.Message
		var err error
		if cmd.Type == CmdRetryMessage {
			msg, err = svc.RetryMessage(ctx, c.session, active.ID, p.MessageID)
		} else {
			msg, err = svc.ToggleImportant(ctx, c.session, models.ToggleImportantCommand{ThreadID: active.ID, MessageID: p.MessageID})
		}
		if msg.ID == "" {
			return nil, err
		}
		return display.NewMessageView(msg, c.session, c.now()), err
	}

	return c.executeComposer(ctx, cmd)
}

func (c *Client) list(ctx context.Context) (interface{}, error) {
	list, err := c.workspace.List(ctx)
	if err != nil {
		return nil, err
	}
	return display.NewThreadListView(list, c.session, c.now()), nil
}

var composerCommands = map[string]bool{
	CmdComposerInput:      true,
	CmdComposerReply:      true,
	CmdComposerEdit:       true,
	CmdComposerCancel:     true,
	CmdToggleInternalNote: true,
	CmdToggleSendExternal: true,
	CmdComposerSubmit:     true,
}

// executeComposer runs the compose box commands. They all act on the
// active thread's composer.
func (c *Client) executeComposer(ctx context.Context, cmd Command) (interface{}, error) {
	if !composerCommands[cmd.Type] {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown command").
			WithContext("command", cmd.Type).
			WithUserMessage("Unknown command")
	}
	active, ok := c.workspace.ActiveThread()
	if !ok {
		return nil, errors.NewNoActiveThreadError()
	}
	composer := c.workspace.Composer(active.ID)

	switch cmd.Type {
	case CmdComposerInput:
		var p inputPayload
		if err := decode(cmd, &p); err != nil {
			return nil, err
		}
		composer.SetInput(p.Text)

	case CmdComposerReply, CmdComposerEdit:
		var p messagePayload
		if err := decode(cmd, &p); err != nil {
			return nil, err
		}
		msg, found := active.FindMessage(p.MessageID)
		if !found {
			return nil, errors.NewMessageNotFoundError(active.ID, p.MessageID)
		}
		if cmd.Type == CmdComposerReply {
			composer.StartReply(msg)
		} else if err := composer.StartEdit(msg); err != nil {
			return nil, err
		}

	case CmdComposerCancel:
		composer.Cancel()

	case CmdToggleInternalNote:
		if err := composer.ToggleInternalNote(active); err != nil {
			return nil, err
		}

	case CmdToggleSendExternal:
		if err := composer.ToggleSendExternal(active); err != nil {
			return nil, err
		}

	case CmdComposerSubmit:
		msg, err := c.workspace.Submit(ctx)
		out := submitted{Composer: newComposerView(active.ID, composer)}
		if msg.ID != "" {
			view := display.NewMessageView(msg, c.session, c.now())
			out.Message = &view
		}
		if err != nil && msg.ID == "" {
			return nil, err
		}
		return out, err
	}

	return newComposerView(active.ID, composer), nil
}
