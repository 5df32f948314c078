package realtime

import (
	"encoding/json"

	"furnidesk/internal/chat"
	"furnidesk/internal/errors"
	"furnidesk/internal/models"
)

// Commands a dashboard session sends over the socket.
const (
	CmdListThreads        = "threads.list"
	CmdSelectThread       = "thread.select"
	CmdTogglePin          = "thread.toggle_pin"
	CmdToggleMute         = "thread.toggle_mute"
	CmdComposerInput      = "composer.input"
	CmdComposerReply      = "composer.reply"
	CmdComposerEdit       = "composer.edit"
	CmdComposerCancel     = "composer.cancel"
	CmdToggleInternalNote = "composer.toggle_internal_note"
	CmdToggleSendExternal = "composer.toggle_send_external"
	CmdComposerSubmit     = "composer.submit"
	CmdRetryMessage       = "message.retry"
	CmdToggleImportant    = "message.toggle_important"
	CmdSetFilter          = "filter.set"
	CmdClearFilter        = "filter.clear"
)

// TypeResult is the envelope type of command replies.
const TypeResult = "result"

// Command is one request read from the socket.
type Command struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type threadPayload struct {
	ThreadID string `json:"threadId"`
}

type messagePayload struct {
	MessageID string `json:"messageId"`
}

type inputPayload struct {
	Text string `json:"text"`
}

// ErrorBody is the error part of a failed command reply.
type ErrorBody struct {
	Code      errors.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable,omitempty"`
	Context   interface{}      `json:"context,omitempty"`
}

func newErrorBody(err error) *ErrorBody {
	resp := errors.ToHTTPResponse(err, "")
	return &ErrorBody{
		Code:      resp.Error.Code,
		Message:   resp.Error.Message,
		Retryable: resp.Error.Retryable,
		Context:   resp.Error.Context,
	}
}

// Result answers a Command. Data may be set even when OK is false: a
// submitted message whose delivery failed comes back in error status.
type Result struct {
	RequestID string      `json:"requestId,omitempty"`
	Command   string      `json:"command"`
	OK        bool        `json:"ok"`
	Error     *ErrorBody  `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Envelope wraps everything written to the socket.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func encodeResult(r Result) ([]byte, error) {
	return json.Marshal(Envelope{Type: TypeResult, Payload: r})
}

func encodeEvent(e models.ChatEvent) ([]byte, error) {
	return json.Marshal(Envelope{Type: e.Type, Payload: e})
}

// ComposerView is the compose box state of the active thread.
type ComposerView struct {
	ThreadID     string           `json:"threadId"`
	State        string           `json:"state"`
	Input        string           `json:"input"`
	ReplyTo      *models.ReplyRef `json:"replyTo,omitempty"`
	EditingID    string           `json:"editingId,omitempty"`
	InternalNote bool             `json:"internalNote"`
	SendExternal bool             `json:"sendExternal"`
}

func newComposerView(threadID string, c *chat.Composer) ComposerView {
	return ComposerView{
		ThreadID:     threadID,
		State:        c.State().String(),
		Input:        c.Input(),
		ReplyTo:      c.ReplyTarget(),
		EditingID:    c.EditingID(),
		InternalNote: c.InternalNote(),
		SendExternal: c.SendExternal(),
	}
}
