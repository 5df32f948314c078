package chat

import (
	"strings"

	"furnidesk/internal/errors"
	"furnidesk/internal/models"
)

// ComposerState is the mode of the compose box.
type ComposerState int

const (
	Idle ComposerState = iota
	Composing
	ReplyingTo
	Editing
)

func (s ComposerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Composing:
		return "composing"
	case ReplyingTo:
		return "replying"
	case Editing:
		return "editing"
	default:
		return "unknown"
	}
}

// SubmissionKind tells whether a submission creates or edits a message.
type SubmissionKind int

const (
	SubmitSend SubmissionKind = iota
	SubmitEdit
)

// Submission is the command produced by submitting the composer.
type Submission struct {
	Kind SubmissionKind
	Send models.SendCommand
	Edit models.EditCommand
}

// Composer holds the transient compose-box state of one user in one thread.
//
// Reply and edit are mutually exclusive: starting one replaces the other.
// The internal-note and send-external modifiers are sticky and survive
// submissions and cancels.
type Composer struct {
	session models.Session

	state     ComposerState
	input     string
	reply     *models.ReplyRef
	editingID string

	internalNote bool
	sendExternal bool
}

func NewComposer(session models.Session) *Composer {
	return &Composer{session: session}
}

func (c *Composer) State() ComposerState { return c.state }
func (c *Composer) Input() string        { return c.input }
func (c *Composer) EditingID() string    { return c.editingID }
func (c *Composer) InternalNote() bool   { return c.internalNote }
func (c *Composer) SendExternal() bool   { return c.sendExternal }

// ReplyTarget returns the snapshot captured when the reply started.
func (c *Composer) ReplyTarget() *models.ReplyRef {
	if c.reply == nil {
		return nil
	}
	ref := *c.reply
	return &ref
}

// SetInput updates the text. Outside reply and edit mode the state follows
// whether there is anything typed.
func (c *Composer) SetInput(text string) {
	c.input = text
	switch c.state {
	case Idle, Composing:
		if strings.TrimSpace(text) == "" {
			c.state = Idle
		} else {
			c.state = Composing
		}
	}
}

// StartReply enters reply mode, snapshotting m as it is right now.
func (c *Composer) StartReply(m models.Message) {
	snap := m.Snapshot()
	c.reply = &snap
	c.editingID = ""
	if c.state == Editing {
		c.input = ""
	}
	c.state = ReplyingTo
}

// StartEdit enters edit mode with the input pre-filled. Only the author may
// edit a message.
func (c *Composer) StartEdit(m models.Message) error {
	if !m.IsOwnedBy(c.session.UserID) {
		return errors.NewNotOwnerError(m.ID)
	}
	c.reply = nil
	c.editingID = m.ID
	c.input = m.Content
	c.state = Editing
	return nil
}

// Cancel leaves reply or edit mode and clears the input.
func (c *Composer) Cancel() {
	if c.state != ReplyingTo && c.state != Editing {
		return
	}
	c.reset()
}

func (c *Composer) reset() {
	c.state = Idle
	c.input = ""
	c.reply = nil
	c.editingID = ""
}

// ToggleInternalNote switches internal-note mode. Only client threads have
// an audience the note can be hidden from.
func (c *Composer) ToggleInternalNote(t models.Thread) error {
	if t.Type != models.ThreadClient {
		return errors.NewValidationError("isInternalNote", "internal notes are only available in client chats")
	}
	c.internalNote = !c.internalNote
	return nil
}

// ToggleSendExternal switches send-through to the thread's external channel.
func (c *Composer) ToggleSendExternal(t models.Thread) error {
	if !t.HasExternalSource() {
		return errors.NewExternalChannelError(t.ID, "")
	}
	c.sendExternal = !c.sendExternal
	return nil
}

// Prepare builds the submission without changing state. It fails, leaving
// everything untouched, when the input is blank or no thread is active.
func (c *Composer) Prepare(active *models.Thread) (Submission, error) {
	if active == nil {
		return Submission{}, errors.NewNoActiveThreadError()
	}
	content := strings.TrimSpace(c.input)
	if content == "" {
		return Submission{}, errors.NewEmptyMessageError()
	}

	if c.state == Editing {
		return Submission{
			Kind: SubmitEdit,
			Edit: models.EditCommand{
				ThreadID:  active.ID,
				MessageID: c.editingID,
				Content:   content,
			},
		}, nil
	}

	cmd := models.SendCommand{
		ThreadID:           active.ID,
		Content:            content,
		IsInternalNote:     c.internalNote && active.Type == models.ThreadClient,
		AlsoSendExternally: c.sendExternal && active.HasExternalSource(),
	}
	if c.state == ReplyingTo && c.reply != nil {
		cmd.ReplyToID = c.reply.ID
		cmd.Reply = c.ReplyTarget()
	}
	return Submission{Kind: SubmitSend, Send: cmd}, nil
}

// Submit prepares the submission and returns the composer to Idle.
// Modifiers are kept.
func (c *Composer) Submit(active *models.Thread) (Submission, error) {
	sub, err := c.Prepare(active)
	if err != nil {
		return Submission{}, err
	}
	c.reset()
	return sub, nil
}
