package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/errors"
	"furnidesk/internal/metrics"
	"furnidesk/internal/models"
	"furnidesk/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSendMessage_AppendsAndMarksSent(t *testing.T) {
	tr := sentTransport()
	svc := newTestService(t, tr, nil)

	msg, err := svc.SendMessage(context.Background(), models.SessionFor(ana), models.SendCommand{
		ThreadID: "g1",
		Content:  "  Oak table shipped  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Oak table shipped", msg.Content)
	assert.Equal(t, models.StatusSent, msg.Status)
	assert.Equal(t, ana.ID, msg.SenderID)
	assert.NotEmpty(t, msg.ID)

	stored := svc.repo.thread(t, "g1")
	require.Len(t, stored.Messages, 3)
	last, _ := stored.LastMessage()
	assert.Equal(t, msg.ID, last.ID)
	assert.Equal(t, models.StatusSent, last.Status)
	assert.Equal(t, testNow, stored.LastActivity)

	assert.Equal(t, []string{models.EventMessageNew, models.EventMessageStatus}, svc.publisher.types())
	first := svc.publisher.all()[0]
	assert.Equal(t, models.StatusSending, first.Message.Status, "message.new carries the initial status")
	assert.ElementsMatch(t, []string{ana.ID, bruno.ID}, first.Recipients)
	tr.AssertNumberOfCalls(t, "Send", 1)
}

func TestSendMessage_RejectsInvalidCommands(t *testing.T) {
	tests := []struct {
		name    string
		session models.Session
		cmd     models.SendCommand
		code    errors.ErrorCode
	}{
		{"blank content", models.SessionFor(ana), models.SendCommand{ThreadID: "g1", Content: "   "}, errors.ErrCodeEmptyMessage},
		{"unknown thread", models.SessionFor(ana), models.SendCommand{ThreadID: "nope", Content: "hi"}, errors.ErrCodeThreadNotFound},
		{"not a participant", models.SessionFor(daniel), models.SendCommand{ThreadID: "g1", Content: "hi"}, errors.ErrCodeThreadNotFound},
		{"admin reading only", models.SessionFor(carla), models.SendCommand{ThreadID: "g1", Content: "hi"}, errors.ErrCodeAuthorization},
		{"note outside client thread", models.SessionFor(ana), models.SendCommand{ThreadID: "g1", Content: "hi", IsInternalNote: true}, errors.ErrCodeValidationFailed},
		{"note sent externally", models.SessionFor(ana), models.SendCommand{ThreadID: "c1", Content: "hi", IsInternalNote: true, AlsoSendExternally: true}, errors.ErrCodeValidationFailed},
		{"unknown reply target", models.SessionFor(ana), models.SendCommand{ThreadID: "g1", Content: "hi", ReplyToID: "nope"}, errors.ErrCodeMessageNotFound},
		{"no external channel", models.SessionFor(ana), models.SendCommand{ThreadID: "g1", Content: "hi", AlsoSendExternally: true}, errors.ErrCodeExternalChannel},
		{"channel not configured", models.SessionFor(ana), models.SendCommand{ThreadID: "c1", Content: "hi", AlsoSendExternally: true}, errors.ErrCodeExternalChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTransport{}
			svc := newTestService(t, tr, nil)
			before := svc.repo.thread(t, "g1")

			msg, err := svc.SendMessage(context.Background(), tt.session, tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Empty(t, msg.ID)

			assert.Equal(t, before, svc.repo.thread(t, "g1"))
			assert.Empty(t, svc.publisher.all())
			tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessage_InternalNoteSkipsTransport(t *testing.T) {
	tr := &mockTransport{}
	svc := newTestService(t, tr, nil)

	msg, err := svc.SendMessage(context.Background(), models.SessionFor(ana), models.SendCommand{
		ThreadID:       "c1",
		Content:        "Deposit still pending",
		IsInternalNote: true,
	})
	require.NoError(t, err)
	assert.True(t, msg.IsInternalNote)
	assert.Equal(t, models.StatusSent, msg.Status)
	assert.Empty(t, msg.Source)
	tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	// a note is never acknowledged as delivered
	require.NoError(t, svc.HandleStatusEvent(context.Background(), models.StatusEvent{ThreadID: "c1", MessageID: msg.ID, Status: models.StatusDelivered}))
	stored, _ := svc.repo.thread(t, "c1").FindMessage(msg.ID)
	assert.Equal(t, models.StatusSent, stored.Status)
}

func TestSendMessage_ReplyKeepsSnapshot(t *testing.T) {
	svc := newTestService(t, sentTransport(), nil)

	msg, err := svc.SendMessage(context.Background(), models.SessionFor(ana), models.SendCommand{
		ThreadID:  "g1",
		Content:   "Packing it now",
		ReplyToID: "g1-m1",
	})
	require.NoError(t, err)
	require.NotNil(t, msg.ReplyTo)
	assert.Equal(t, models.ReplyRef{ID: "g1-m1", Content: "Varnish is dry", SenderName: "Bruno"}, *msg.ReplyTo)

	// the snapshot does not follow later edits
	_, err = svc.EditMessage(context.Background(), models.SessionFor(bruno), models.EditCommand{ThreadID: "g1", MessageID: "g1-m1", Content: "Varnish is almost dry"})
	require.NoError(t, err)
	stored, _ := svc.repo.thread(t, "g1").FindMessage(msg.ID)
	assert.Equal(t, "Varnish is dry", stored.ReplyTo.Content)
}

func TestSendMessage_DeliveryFailureAndRetry(t *testing.T) {
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(Receipt{}, fmt.Errorf("connection refused")).Times(3)
	tr.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(Receipt{Status: models.StatusSent}, nil).Once()
	svc := newTestService(t, tr, nil)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, models.SessionFor(ana), models.SendCommand{ThreadID: "g1", Content: "Invoice attached"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTransport, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, models.StatusError, msg.Status)
	assert.NotEmpty(t, msg.ID, "a failed message stays in the thread")
	tr.AssertNumberOfCalls(t, "Send", 3)

	stored, ok := svc.repo.thread(t, "g1").FindMessage(msg.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusError, stored.Status)

	_, err = svc.RetryMessage(ctx, models.SessionFor(bruno), "g1", msg.ID)
	assert.Equal(t, errors.ErrCodeAuthorization, errors.GetCode(err))

	retried, err := svc.RetryMessage(ctx, models.SessionFor(ana), "g1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, retried.ID)
	assert.Equal(t, models.StatusSent, retried.Status)
	tr.AssertNumberOfCalls(t, "Send", 4)

	_, err = svc.RetryMessage(ctx, models.SessionFor(ana), "g1", msg.ID)
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err), "only failed messages can be retried")
	assert.Len(t, svc.repo.thread(t, "g1").Messages, 3)
}

// cancelOnPublish cancels the caller's context as soon as the new message
// is published, like a client hanging up mid-request.
type cancelOnPublish struct {
	recordingPublisher
	cancel context.CancelFunc
}

func (p *cancelOnPublish) Publish(e models.ChatEvent) {
	p.recordingPublisher.Publish(e)
	if e.Type == models.EventMessageNew {
		p.cancel()
	}
}

func TestSendMessage_CallerGoneAfterAppendSurfacesError(t *testing.T) {
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(Receipt{Status: models.StatusSent}, nil)
	svc := newTestService(t, tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	svc.SetPublisher(&cancelOnPublish{cancel: cancel})

	msg, err := svc.SendMessage(ctx, models.SessionFor(ana), models.SendCommand{ThreadID: "g1", Content: "hello"})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	require.NotEmpty(t, msg.ID)
	assert.Equal(t, models.StatusError, msg.Status)
	tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	stored, ok := svc.repo.thread(t, "g1").FindMessage(msg.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusError, stored.Status, "never left in sending")

	retried, err := svc.RetryMessage(context.Background(), models.SessionFor(ana), "g1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, retried.Status)
}

func TestSendMessage_AcknowledgedBeforeTransportFailure(t *testing.T) {
	tr := &mockTransport{}
	svc := newTestService(t, tr, nil)
	ctx := context.Background()

	tr.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sent := args.Get(2).(models.Message)
			require.NoError(t, svc.HandleStatusEvent(ctx, models.StatusEvent{ThreadID: sent.ThreadID, MessageID: sent.ID, Status: models.StatusDelivered}))
		}).
		Return(Receipt{}, fmt.Errorf("connection reset"))

	msg, err := svc.SendMessage(ctx, models.SessionFor(ana), models.SendCommand{ThreadID: "g1", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, msg.Status)

	stored, ok := svc.repo.thread(t, "g1").FindMessage(msg.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusDelivered, stored.Status)
	assert.Equal(t, []string{models.EventMessageNew, models.EventMessageStatus}, svc.publisher.types(), "no error status is published")
}

func TestSendMessage_ForwardsToExternalChannel(t *testing.T) {
	ch := &mockChannel{}
	ch.On("Forward", mock.Anything, mock.Anything, mock.Anything).
		Return(Receipt{ExternalID: "true_5511999990000@c.us_BBB", Status: models.StatusSent}, nil)
	cm := NewChannelManager(quietLogger())
	require.NoError(t, cm.Register(ch, circuitbreaker.Config{}))
	svc := newTestService(t, sentTransport(), cm)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, models.SessionFor(ana), models.SendCommand{
		ThreadID:           "c1",
		Content:            "Yes, delivery is tomorrow",
		AlsoSendExternally: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceWhatsApp, msg.Source)
	assert.Equal(t, "true_5511999990000@c.us_BBB", msg.ExternalID)
	assert.Equal(t, models.StatusSent, msg.Status)
	ch.AssertNumberOfCalls(t, "Forward", 1)

	require.NoError(t, svc.HandleExternalStatus(ctx, "true_5511999990000@c.us_BBB", models.StatusRead))
	stored, _ := svc.repo.thread(t, "c1").FindMessage(msg.ID)
	assert.Equal(t, models.StatusRead, stored.Status)

	// without the toggle the message stays inside the dashboard
	local, err := svc.SendMessage(ctx, models.SessionFor(ana), models.SendCommand{ThreadID: "c1", Content: "Checking stock"})
	require.NoError(t, err)
	assert.Empty(t, local.Source)
	ch.AssertNumberOfCalls(t, "Forward", 1)
}

func TestSendMessage_OpenBreakerStopsForwarding(t *testing.T) {
	ch := &mockChannel{}
	ch.On("Forward", mock.Anything, mock.Anything, mock.Anything).
		Return(Receipt{}, errors.NewAPIError("whatsapp", "/api/sendText", 503, fmt.Errorf("gateway unavailable")))
	cm := NewChannelManager(quietLogger())
	require.NoError(t, cm.Register(ch, circuitbreaker.Config{MaxFailures: 1, Timeout: time.Minute}))
	svc := newTestService(t, sentTransport(), cm)
	ctx := context.Background()
	cmd := models.SendCommand{ThreadID: "c1", Content: "Your order shipped", AlsoSendExternally: true}

	msg, err := svc.SendMessage(ctx, models.SessionFor(ana), cmd)
	require.Error(t, err)
	assert.Equal(t, models.StatusError, msg.Status)
	ch.AssertNumberOfCalls(t, "Forward", 1)

	msg, err = svc.SendMessage(ctx, models.SessionFor(ana), cmd)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTransport, errors.GetCode(err))
	assert.True(t, circuitbreaker.IsCircuitBreakerError(err))
	assert.Equal(t, models.StatusError, msg.Status)
	ch.AssertNumberOfCalls(t, "Forward", 1)

	assert.Equal(t, circuitbreaker.StateOpen, cm.Stats()[models.SourceWhatsApp].State)
	open, ok := metrics.GetRegistry().Value("external_channel_open", map[string]string{LogFieldSource: models.SourceWhatsApp})
	require.True(t, ok)
	assert.Equal(t, 1.0, open)
}

func TestSendMessage_ConcurrentSendsAreNotLost(t *testing.T) {
	svc := newTestService(t, sentTransport(), nil)
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := models.SessionFor(ana)
			if i%2 == 1 {
				session = models.SessionFor(bruno)
			}
			_, err := svc.SendMessage(context.Background(), session, models.SendCommand{ThreadID: "g1", Content: fmt.Sprintf("update %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored := svc.repo.thread(t, "g1")
	require.Len(t, stored.Messages, n+2)
	ids := make(map[string]bool)
	for _, m := range stored.Messages[2:] {
		assert.Equal(t, models.StatusSent, m.Status)
		ids[m.ID] = true
	}
	assert.Len(t, ids, n)
}

func TestHandleStatusEvent_OnlyMovesForward(t *testing.T) {
	svc := newTestService(t, sentTransport(), nil)
	ctx := context.Background()
	ack := func(status models.MessageStatus) error {
		return svc.HandleStatusEvent(ctx, models.StatusEvent{ThreadID: "g1", MessageID: "g1-m2", Status: status})
	}
	current := func() models.MessageStatus {
		m, _ := svc.repo.thread(t, "g1").FindMessage("g1-m2")
		return m.Status
	}

	require.NoError(t, ack(models.StatusDelivered))
	assert.Equal(t, models.StatusDelivered, current())
	require.NoError(t, ack(models.StatusRead))
	assert.Equal(t, models.StatusRead, current())

	// late and duplicate acknowledgments are dropped quietly
	require.NoError(t, ack(models.StatusDelivered))
	require.NoError(t, ack(models.StatusRead))
	require.NoError(t, ack(models.StatusError))
	assert.Equal(t, models.StatusRead, current())
	assert.Len(t, svc.publisher.all(), 2)

	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(ack(models.StatusSending)))
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(ack("lost")))
	assert.Equal(t, errors.ErrCodeMessageNotFound, errors.GetCode(
		svc.HandleStatusEvent(ctx, models.StatusEvent{ThreadID: "g1", MessageID: "nope", Status: models.StatusRead})))
}

func TestActivateThread_ClearsUnreadAndSendsReadReceipts(t *testing.T) {
	svc := newTestService(t, sentTransport(), nil)
	ctx := context.Background()

	thread, err := svc.ActivateThread(ctx, models.SessionFor(ana), "g1")
	require.NoError(t, err)
	assert.Equal(t, 0, thread.UnreadCount)

	fromBruno, _ := thread.FindMessage("g1-m1")
	own, _ := thread.FindMessage("g1-m2")
	assert.Equal(t, models.StatusRead, fromBruno.Status)
	assert.Equal(t, models.StatusSent, own.Status, "own messages are not read by opening the thread")

	assert.Equal(t, []string{models.EventThreadUpdated, models.EventMessageStatus}, svc.publisher.types())
	assert.Equal(t, thread, svc.repo.thread(t, "g1"))

	svc.publisher.reset()
	_, err = svc.ActivateThread(ctx, models.SessionFor(ana), "g1")
	require.NoError(t, err)
	assert.Empty(t, svc.publisher.all(), "nothing left to change")

	_, err = svc.ActivateThread(ctx, models.SessionFor(daniel), "g1")
	assert.Equal(t, errors.ErrCodeThreadNotFound, errors.GetCode(err))
}

func TestActivateThread_MarksExternalChatSeen(t *testing.T) {
	ch := &mockChannel{}
	ch.On("MarkSeen", mock.Anything, mock.MatchedBy(func(th models.Thread) bool { return th.ID == "c1" })).Return(nil).Once()
	cm := NewChannelManager(quietLogger())
	require.NoError(t, cm.Register(ch, circuitbreaker.Config{}))
	svc := newTestService(t, sentTransport(), cm)

	thread, err := svc.ActivateThread(context.Background(), models.SessionFor(daniel), "c1")
	require.NoError(t, err)
	m, _ := thread.FindMessage("c1-m1")
	assert.Equal(t, models.StatusRead, m.Status)
	ch.AssertExpectations(t)
}

func TestListThreads_Visibility(t *testing.T) {
	svc := newTestService(t, sentTransport(), nil)
	ctx := context.Background()

	ids := func(list chat.ThreadList) []string {
		var out []string
		for _, th := range list.Threads {
			out = append(out, th.ID)
		}
		return out
	}

	list, err := svc.ListThreads(ctx, models.SessionFor(daniel), chat.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "d1"}, ids(list))

	list, err = svc.ListThreads(ctx, models.SessionFor(carla), chat.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g1", "c1", "d1"}, ids(list))
	assert.Equal(t, 3, list.Total)

	list, err = svc.ListThreads(ctx, models.SessionFor(ana), chat.Filter{TypeFilter: string(models.ThreadClient), RecentOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids(list))

	list, err = svc.ListThreads(ctx, models.SessionFor(ana), chat.Filter{SearchTerm: "wardrobe"})
	require.NoError(t, err)
	assert.True(t, list.Empty)
	assert.True(t, list.ClearFilters)
}

func TestEditAndToggleImportant(t *testing.T) {
	svc := newTestService(t, sentTransport(), nil)
	ctx := context.Background()

	edited, err := svc.EditMessage(ctx, models.SessionFor(ana), models.EditCommand{ThreadID: "g1", MessageID: "g1-m2", Content: "Great, shipping it"})
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "Great, shipping it", edited.Content)
	require.NotNil(t, edited.EditedAt)
	assert.Equal(t, testNow, *edited.EditedAt)
	assert.Len(t, svc.repo.thread(t, "g1").Messages, 2)

	_, err = svc.EditMessage(ctx, models.SessionFor(bruno), models.EditCommand{ThreadID: "g1", MessageID: "g1-m2", Content: "hijack"})
	assert.Equal(t, errors.ErrCodeNotMessageOwner, errors.GetCode(err))

	_, err = svc.EditMessage(ctx, models.SessionFor(ana), models.EditCommand{ThreadID: "g1", MessageID: "g1-m2", Content: " "})
	assert.Equal(t, errors.ErrCodeEmptyMessage, errors.GetCode(err))

	marked, err := svc.ToggleImportant(ctx, models.SessionFor(ana), models.ToggleImportantCommand{ThreadID: "g1", MessageID: "g1-m1"})
	require.NoError(t, err)
	assert.True(t, marked.IsImportant)
	assert.Equal(t, models.StatusDelivered, marked.Status)

	unmarked, err := svc.ToggleImportant(ctx, models.SessionFor(ana), models.ToggleImportantCommand{ThreadID: "g1", MessageID: "g1-m1"})
	require.NoError(t, err)
	assert.False(t, unmarked.IsImportant)
}

func TestCreateThread(t *testing.T) {
	ctx := context.Background()

	t.Run("group", func(t *testing.T) {
		svc := newTestService(t, sentTransport(), nil)
		thread, err := svc.CreateThread(ctx, models.SessionFor(ana), models.CreateThreadCommand{
			Type:           models.ThreadGroup,
			Name:           "Deliveries",
			ParticipantIDs: []string{bruno.ID, daniel.ID, bruno.ID, ""},
		})
		require.NoError(t, err)
		require.Len(t, thread.Participants, 3)
		assert.Equal(t, ana.ID, thread.Participants[0].ID)
		require.Len(t, thread.Messages, 1)
		assert.True(t, thread.Messages[0].IsSystem)
		assert.Equal(t, models.StatusRead, thread.Messages[0].Status)
		assert.Equal(t, "Ana created the group Deliveries", thread.Messages[0].Content)
		assert.Equal(t, []string{models.EventThreadUpdated}, svc.publisher.types())
	})

	t.Run("existing direct thread is reused", func(t *testing.T) {
		svc := newTestService(t, sentTransport(), nil)
		thread, err := svc.CreateThread(ctx, models.SessionFor(daniel), models.CreateThreadCommand{
			Type:           models.ThreadDirect,
			ParticipantIDs: []string{ana.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, "d1", thread.ID)
	})

	t.Run("client thread", func(t *testing.T) {
		svc := newTestService(t, sentTransport(), nil)
		thread, err := svc.CreateThread(ctx, models.SessionFor(ana), models.CreateThreadCommand{
			Type:           models.ThreadClient,
			ClientID:       marina.ID,
			Sources:        []string{models.SourceWhatsApp},
			ExternalChatID: "5511999990000@c.us",
		})
		require.NoError(t, err)
		assert.Equal(t, "Marina Souza", thread.Name)
		require.NotNil(t, thread.Client)
		assert.Equal(t, marina.ID, thread.Client.ID)
	})

	failures := []struct {
		name string
		cmd  models.CreateThreadCommand
		code errors.ErrorCode
	}{
		{"unknown type", models.CreateThreadCommand{Type: "channel"}, errors.ErrCodeValidationFailed},
		{"unknown participant", models.CreateThreadCommand{Type: models.ThreadDirect, ParticipantIDs: []string{"u-ghost"}}, errors.ErrCodeUnknownParticipant},
		{"group without name", models.CreateThreadCommand{Type: models.ThreadGroup, ParticipantIDs: []string{bruno.ID}}, errors.ErrCodeValidationFailed},
		{"client without client", models.CreateThreadCommand{Type: models.ThreadClient}, errors.ErrCodeValidationFailed},
		{"whatsapp without chat id", models.CreateThreadCommand{Type: models.ThreadClient, ClientID: marina.ID, Sources: []string{models.SourceWhatsApp}}, errors.ErrCodeValidationFailed},
		{"unknown client", models.CreateThreadCommand{Type: models.ThreadClient, ClientID: "cl-ghost"}, errors.ErrCodeNotFound},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, sentTransport(), nil)
			_, err := svc.CreateThread(ctx, models.SessionFor(ana), tt.cmd)
			assert.Equal(t, tt.code, errors.GetCode(err))
			threads, _ := svc.repo.ListThreads(ctx)
			assert.Len(t, threads, 3)
		})
	}
}

func TestDeleteGroup(t *testing.T) {
	svc := newTestService(t, sentTransport(), nil)
	ctx := context.Background()

	err := svc.DeleteGroup(ctx, models.SessionFor(ana), "g1")
	assert.Equal(t, errors.ErrCodeAuthorization, errors.GetCode(err))

	err = svc.DeleteGroup(ctx, models.SessionFor(carla), "c1")
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))

	require.NoError(t, svc.DeleteGroup(ctx, models.SessionFor(carla), "g1"))
	_, err = svc.GetThread(ctx, models.SessionFor(carla), "g1")
	assert.Equal(t, errors.ErrCodeThreadNotFound, errors.GetCode(err))

	events := svc.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventThreadDeleted, events[0].Type)
	assert.ElementsMatch(t, []string{ana.ID, bruno.ID}, events[0].Recipients)
}

func TestTogglePinAndMute(t *testing.T) {
	svc := newTestService(t, sentTransport(), nil)
	ctx := context.Background()

	pinned, err := svc.TogglePin(ctx, models.SessionFor(ana), "g1")
	require.NoError(t, err)
	assert.True(t, pinned.Pinned)

	muted, err := svc.ToggleMute(ctx, models.SessionFor(ana), "g1")
	require.NoError(t, err)
	assert.True(t, muted.Muted)
	assert.True(t, muted.Pinned)

	list, err := svc.ListThreads(ctx, models.SessionFor(ana), chat.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "g1", list.Threads[0].ID, "pinned threads sort first")

	_, err = svc.TogglePin(ctx, models.SessionFor(daniel), "g1")
	assert.Equal(t, errors.ErrCodeThreadNotFound, errors.GetCode(err))
}
