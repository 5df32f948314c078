package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"furnidesk/internal/errors"
	"furnidesk/internal/metrics"
	"furnidesk/internal/models"
	"furnidesk/internal/privacy"
	"furnidesk/pkg/circuitbreaker"
	"furnidesk/pkg/whatsapp"

	"github.com/sirupsen/logrus"
)

// ChannelManager maps source tags to the external channels that serve them.
// Every channel sits behind its own circuit breaker.
type ChannelManager struct {
	channels     map[string]ExternalChannel
	breakers     map[string]*circuitbreaker.CircuitBreaker
	orderedNames []string // registration order
	logger       *logrus.Logger
	mu           sync.RWMutex
}

func NewChannelManager(logger *logrus.Logger) *ChannelManager {
	return &ChannelManager{
		channels: make(map[string]ExternalChannel),
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Register adds a channel. Only failures marked retryable trip the breaker,
// so a rejected message does not take the channel down.
func (cm *ChannelManager) Register(channel ExternalChannel, config circuitbreaker.Config) error {
	source := channel.Source()
	if source == "" {
		return fmt.Errorf("external channel has no source tag")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.channels[source]; exists {
		return fmt.Errorf("duplicate external channel: %s", source)
	}

	if config.IsFailure == nil {
		config.IsFailure = errors.IsRetryable
	}
	onStateChange := config.OnStateChange
	config.OnStateChange = func(name string, from, to circuitbreaker.State) {
		open := 0.0
		if to == circuitbreaker.StateOpen {
			open = 1
		}
		metrics.SetGauge("external_channel_open", open, map[string]string{LogFieldSource: name}, "Whether the external channel circuit breaker is open")
		if onStateChange != nil {
			onStateChange(name, from, to)
		}
	}

	cm.channels[source] = channel
	cm.breakers[source] = circuitbreaker.New(source, config, cm.logger)
	cm.orderedNames = append(cm.orderedNames, source)

	cm.logger.WithField(LogFieldSource, source).Info("Registered external channel")
	return nil
}

// Sources returns the registered source tags in registration order.
func (cm *ChannelManager) Sources() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return append([]string(nil), cm.orderedNames...)
}

// Resolve picks the channel for a thread: the first of the thread's sources
// that has a registered channel.
func (cm *ChannelManager) Resolve(thread models.Thread) (string, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, source := range thread.Sources {
		if _, ok := cm.channels[source]; ok {
			return source, true
		}
	}
	return "", false
}

func (cm *ChannelManager) lookup(source string) (ExternalChannel, *circuitbreaker.CircuitBreaker, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	ch, ok := cm.channels[source]
	return ch, cm.breakers[source], ok
}

// Forward sends msg through the channel registered for source.
func (cm *ChannelManager) Forward(ctx context.Context, source string, thread models.Thread, msg models.Message) (Receipt, error) {
	ch, breaker, ok := cm.lookup(source)
	if !ok {
		return Receipt{}, errors.NewExternalChannelError(thread.ID, source)
	}

	var receipt Receipt
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = ch.Forward(ctx, thread, msg)
		return err
	})
	if circuitbreaker.IsCircuitBreakerError(err) {
		return Receipt{}, errors.NewTransportError(source, err)
	}
	return receipt, err
}

// MarkSeen tells the external side the thread was read. Failures are not
// counted against the breaker.
func (cm *ChannelManager) MarkSeen(ctx context.Context, source string, thread models.Thread) error {
	ch, breaker, ok := cm.lookup(source)
	if !ok {
		return errors.NewExternalChannelError(thread.ID, source)
	}
	if breaker.GetState() == circuitbreaker.StateOpen {
		return errors.NewTransportError(source, circuitbreaker.ErrOpen)
	}
	return ch.MarkSeen(ctx, thread)
}

// Stats returns the breaker state of every channel, keyed by source.
func (cm *ChannelManager) Stats() map[string]circuitbreaker.Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := make(map[string]circuitbreaker.Stats, len(cm.breakers))
	for source, breaker := range cm.breakers {
		stats[source] = breaker.GetStats()
	}
	return stats
}

// WhatsAppChannel forwards client-thread messages to the linked WhatsApp chat.
type WhatsAppChannel struct {
	client whatsapp.Client
	logger *logrus.Logger
	now    func() time.Time
}

func NewWhatsAppChannel(client whatsapp.Client, logger *logrus.Logger) *WhatsAppChannel {
	return &WhatsAppChannel{client: client, logger: logger, now: time.Now}
}

func (c *WhatsAppChannel) Source() string { return models.SourceWhatsApp }

func (c *WhatsAppChannel) Forward(ctx context.Context, thread models.Thread, msg models.Message) (Receipt, error) {
	if thread.ExternalChatID == "" {
		return Receipt{}, errors.NewExternalChannelError(thread.ID, models.SourceWhatsApp).
			WithContext("reason", "no external chat id")
	}

	var replyTo string
	if msg.ReplyTo != nil {
		if original, ok := thread.FindMessage(msg.ReplyTo.ID); ok {
			replyTo = original.ExternalID
		}
	}

	resp, err := c.client.SendText(ctx, thread.ExternalChatID, formatOutgoingText(msg), replyTo)
	if err != nil {
		return Receipt{}, translateWhatsAppError(err)
	}

	externalID := resp.ExternalID()
	c.logger.WithFields(logrus.Fields{
		LogFieldThreadID:   thread.ID,
		LogFieldMessageID:  msg.ID,
		LogFieldChatID:     privacy.MaskChatID(thread.ExternalChatID),
		LogFieldExternalID: privacy.MaskMessageID(externalID),
	}).Debug("Forwarded message to WhatsApp")

	return Receipt{ExternalID: externalID, Status: models.StatusSent, At: c.now()}, nil
}

func (c *WhatsAppChannel) MarkSeen(ctx context.Context, thread models.Thread) error {
	if thread.ExternalChatID == "" {
		return nil
	}
	if err := c.client.SendSeen(ctx, thread.ExternalChatID); err != nil {
		return translateWhatsAppError(err)
	}
	return nil
}

// formatOutgoingText renders attachments as trailing link lines; the gateway
// only carries text.
func formatOutgoingText(msg models.Message) string {
	if len(msg.Attachments) == 0 {
		return msg.Content
	}
	var b strings.Builder
	b.WriteString(msg.Content)
	for _, a := range msg.Attachments {
		b.WriteString("\n")
		b.WriteString(a.Name)
		if a.URL != "" {
			b.WriteString(": ")
			b.WriteString(a.URL)
		}
	}
	return b.String()
}

func translateWhatsAppError(err error) error {
	var apiErr *whatsapp.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewAPIError("whatsapp", apiErr.Endpoint, apiErr.StatusCode, err)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NewTransportError(models.SourceWhatsApp, err)
}
