package chat

import (
	"context"
	"sync"

	"furnidesk/internal/errors"
	"furnidesk/internal/models"
)

// Backend is what a workspace needs from the chat service.
type Backend interface {
	ListThreads(ctx context.Context, session models.Session, filter Filter) (ThreadList, error)
	ActivateThread(ctx context.Context, session models.Session, threadID string) (models.Thread, error)
	SendMessage(ctx context.Context, session models.Session, cmd models.SendCommand) (models.Message, error)
	EditMessage(ctx context.Context, session models.Session, cmd models.EditCommand) (models.Message, error)
}

// Workspace is the dashboard state of one connected session: the active
// thread, one composer per thread and the thread list filter.
//
// Every activation gets its own context. Switching threads or closing the
// workspace cancels it, so a slow load for a thread the user already left is
// discarded instead of being shown.
type Workspace struct {
	session models.Session
	backend Backend

	mu        sync.Mutex
	base      context.Context
	active    *models.Thread
	cancel    context.CancelFunc
	composers map[string]*Composer
	filter    Filter
}

func NewWorkspace(ctx context.Context, session models.Session, backend Backend) *Workspace {
	return &Workspace{
		session:   session,
		backend:   backend,
		base:      ctx,
		composers: make(map[string]*Composer),
	}
}

func (w *Workspace) Session() models.Session { return w.session }

// ActiveThread returns a copy of the active thread.
func (w *Workspace) ActiveThread() (models.Thread, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return models.Thread{}, false
	}
	return w.active.Clone(), true
}

// Composer returns the composer of the given thread, creating it on first use.
func (w *Workspace) Composer(threadID string) *Composer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.composerLocked(threadID)
}

func (w *Workspace) composerLocked(threadID string) *Composer {
	c, ok := w.composers[threadID]
	if !ok {
		c = NewComposer(w.session)
		w.composers[threadID] = c
	}
	return c
}

func (w *Workspace) Filter() Filter {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filter
}

func (w *Workspace) SetFilter(f Filter) {
	w.mu.Lock()
	w.filter = f
	w.mu.Unlock()
}

// ClearFilters resets the filter to show every thread.
func (w *Workspace) ClearFilters() {
	w.SetFilter(Filter{})
}

// List loads the thread list with the current filter.
func (w *Workspace) List(ctx context.Context) (ThreadList, error) {
	return w.backend.ListThreads(ctx, w.session, w.Filter())
}

// Select makes threadID the active thread. A previous activation still in
// flight is cancelled; if this one is superseded before the load returns, its
// result is dropped and context.Canceled is returned.
func (w *Workspace) Select(threadID string) (models.Thread, error) {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithCancel(w.base)
	w.cancel = cancel
	w.mu.Unlock()

	thread, err := w.backend.ActivateThread(ctx, w.session, threadID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx.Err() != nil {
		return models.Thread{}, ctx.Err()
	}
	if err != nil {
		return models.Thread{}, err
	}
	w.active = &thread
	return thread.Clone(), nil
}

// Refresh replaces the active thread with a newer version of it. Versions of
// other threads are ignored.
func (w *Workspace) Refresh(t models.Thread) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil || w.active.ID != t.ID {
		return false
	}
	w.active = &t
	return true
}

// Apply folds a published event into the active thread. A deleted active
// thread is dropped.
func (w *Workspace) Apply(e models.ChatEvent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil || w.active.ID != e.ThreadID {
		return false
	}
	if e.Type == models.EventThreadDeleted {
		w.active = nil
		delete(w.composers, e.ThreadID)
		return true
	}
	next, ok := ApplyEvent(*w.active, e)
	if ok {
		w.active = &next
	}
	return ok
}

// Submit sends or applies the active composer's content. Rejected commands
// leave the composer untouched. Once the service accepted the message, even
// if delivery then failed, the composer is cleared; the failed message
// carries the retry affordance.
func (w *Workspace) Submit(ctx context.Context) (models.Message, error) {
	w.mu.Lock()
	if w.active == nil {
		w.mu.Unlock()
		return models.Message{}, errors.NewNoActiveThreadError()
	}
	active := w.active.Clone()
	composer := w.composerLocked(active.ID)
	sub, err := composer.Prepare(&active)
	w.mu.Unlock()
	if err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	switch sub.Kind {
	case SubmitEdit:
		msg, err = w.backend.EditMessage(ctx, w.session, sub.Edit)
	default:
		msg, err = w.backend.SendMessage(ctx, w.session, sub.Send)
	}
	if err != nil && msg.ID == "" {
		return msg, err
	}

	w.mu.Lock()
	if _, subErr := composer.Submit(&active); subErr != nil {
		w.mu.Unlock()
		return msg, subErr
	}
	w.mu.Unlock()
	return msg, err
}

// Close cancels any in-flight activation.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.active = nil
}
