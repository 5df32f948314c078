package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"furnidesk/internal/models"

	"github.com/sirupsen/logrus"
)

// Availability reports whether the local fan-out can take messages.
type Availability interface {
	Available() bool
}

// LocalTransport delivers to dashboard sessions. Fan-out itself happens when
// the message.new event is published; Send only confirms the hub accepts
// messages, which is what moves a message to sent.
type LocalTransport struct {
	hub Availability
	now func() time.Time
}

func NewLocalTransport(hub Availability) *LocalTransport {
	return &LocalTransport{hub: hub, now: time.Now}
}

func (t *LocalTransport) Name() string { return "local" }

func (t *LocalTransport) Send(ctx context.Context, _ models.Thread, msg models.Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if t.hub != nil && !t.hub.Available() {
		return Receipt{}, fmt.Errorf("local hub is not accepting messages")
	}
	return Receipt{Status: models.StatusSent, At: t.now()}, nil
}

// DeliverySimulator wraps a transport for demo deployments with no real
// acknowledgment source. After each successful send it feeds delivered and
// then read back to the sink after fixed delays. Internal notes and system
// messages are never simulated.
type DeliverySimulator struct {
	inner          Transport
	deliveredDelay time.Duration
	readDelay      time.Duration
	logger         *logrus.Logger

	mu     sync.Mutex
	sink   StatusSink
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDeliverySimulator(inner Transport, cfg models.DeliveryConfig, logger *logrus.Logger) *DeliverySimulator {
	ctx, cancel := context.WithCancel(context.Background())
	return &DeliverySimulator{
		inner:          inner,
		deliveredDelay: time.Duration(cfg.DeliveredDelayMs) * time.Millisecond,
		readDelay:      time.Duration(cfg.ReadDelayMs) * time.Millisecond,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetSink sets where simulated acknowledgments go, normally the ChatService.
func (d *DeliverySimulator) SetSink(sink StatusSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

func (d *DeliverySimulator) Name() string { return d.inner.Name() }

func (d *DeliverySimulator) Send(ctx context.Context, thread models.Thread, msg models.Message) (Receipt, error) {
	receipt, err := d.inner.Send(ctx, thread, msg)
	if err != nil || msg.IsInternalNote || msg.IsSystem {
		return receipt, err
	}
	d.schedule(thread.ID, msg.ID)
	return receipt, nil
}

func (d *DeliverySimulator) schedule(threadID, messageID string) {
	d.mu.Lock()
	if d.ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		steps := []struct {
			delay  time.Duration
			status models.MessageStatus
		}{
			{d.deliveredDelay, models.StatusDelivered},
			{d.readDelay, models.StatusRead},
		}
		for _, step := range steps {
			timer := time.NewTimer(step.delay)
			select {
			case <-d.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			d.mu.Lock()
			sink := d.sink
			d.mu.Unlock()
			if sink == nil {
				return
			}

			event := models.StatusEvent{ThreadID: threadID, MessageID: messageID, Status: step.status}
			if err := sink.HandleStatusEvent(d.ctx, event); err != nil {
				d.logger.WithFields(logrus.Fields{
					LogFieldThreadID:  threadID,
					LogFieldMessageID: messageID,
					LogFieldStatus:    string(step.status),
				}).WithError(err).Debug("Simulated acknowledgment not applied")
			}
		}
	}()
}

// Close stops pending simulations and waits for them to exit.
func (d *DeliverySimulator) Close() {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}
