package main

import (
	"context"
	"io"
	"net/http"
	"strings"

	"furnidesk/internal/errors"
	"furnidesk/internal/httputil"
	"furnidesk/internal/models"
	"furnidesk/internal/privacy"
	"furnidesk/internal/validation"
	"furnidesk/pkg/whatsapp"
	"furnidesk/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// ExternalInbox is the part of the chat service the webhook feeds.
type ExternalInbox interface {
	HandleExternalMessage(ctx context.Context, event models.ExternalMessageEvent) (models.Message, error)
	HandleExternalStatus(ctx context.Context, externalID string, status models.MessageStatus) error
}

// webhookHandler accepts deliveries from the WhatsApp HTTP gateway and turns
// them into external message and acknowledgment events.
type webhookHandler struct {
	inbox      ExternalInbox
	secret     string
	logger     *logrus.Logger
	dispatcher *whatsapp.WebhookHandler
}

func newWebhookHandler(inbox ExternalInbox, cfg models.WhatsAppConfig, logger *logrus.Logger) *webhookHandler {
	h := &webhookHandler{
		inbox:      inbox,
		secret:     cfg.WebhookSecret,
		logger:     logger,
		dispatcher: whatsapp.NewWebhookHandler(),
	}
	h.dispatcher.RegisterEventHandler(types.EventMessage, h.onMessage)
	h.dispatcher.RegisterEventHandler(types.EventMessageACK, h.onAck)
	return h
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, r, h.logger, errors.NewValidationError("body", "failed to read webhook body"))
		return
	}

	if err := whatsapp.VerifySignature(body, h.secret, r.Header.Get(types.HeaderSignature)); err != nil {
		httputil.WriteError(w, r, h.logger, errors.Wrap(err, errors.ErrCodeWebhookSignature, "webhook signature rejected").
			WithUserMessage("Invalid webhook signature"))
		return
	}

	event, err := whatsapp.ParseWebhook(body)
	if err != nil {
		httputil.WriteError(w, r, h.logger, errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed webhook"))
		return
	}

	handled, err := h.dispatcher.Handle(r.Context(), event)
	if err != nil {
		// only retryable failures are redelivered by the gateway
		if errors.IsRetryable(err) {
			httputil.WriteError(w, r, h.logger, err)
			return
		}
		errors.Log(h.logger, err, "Dropped WhatsApp webhook event", logrus.Fields{"event": event.Event})
	}
	if !handled {
		h.logger.WithField("event", event.Event).Debug("Ignoring WhatsApp webhook event")
	}
	w.WriteHeader(http.StatusOK)
}

func (h *webhookHandler) onMessage(ctx context.Context, event *types.WebhookEvent) error {
	p := event.Payload
	if p.FromMe {
		// Our own sends come back as message events; their status arrives as acks.
		return nil
	}

	ext := models.ExternalMessageEvent{
		Source:      models.SourceWhatsApp,
		ChatID:      p.From,
		ExternalID:  p.ID,
		SenderPhone: p.PhoneNumber(),
		SenderName:  p.NotifyName,
		Content:     strings.TrimSpace(p.Body),
		SentAt:      p.SentAt(),
	}
	if p.IsGroupMessage() {
		ext.SenderPhone = ""
	}
	if p.Media != nil && p.Media.URL != "" {
		ext.Attachments = append(ext.Attachments, mediaAttachment(p.Media))
	}

	msg, err := h.inbox.HandleExternalMessage(ctx, ext)
	if err != nil {
		return err
	}
	h.logger.WithFields(logrus.Fields{
		"thread_id":  msg.ThreadID,
		"message_id": msg.ID,
		"chat_id":    privacy.MaskChatID(p.From),
	}).Debug("Stored WhatsApp message")
	return nil
}

func mediaAttachment(media *types.Media) models.Attachment {
	name := media.Filename
	if name == "" {
		name = media.URL
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
	}
	return models.Attachment{
		Type: validation.AttachmentTypeFor(name),
		URL:  media.URL,
		Name: name,
	}
}

func (h *webhookHandler) onAck(ctx context.Context, event *types.WebhookEvent) error {
	p := event.Payload
	if p.ACK == nil || p.ID == "" {
		return errors.NewValidationError("payload", "ack event without id or level")
	}
	raw, ok := types.ACKStatus(*p.ACK)
	if !ok {
		return nil
	}
	status, ok := models.ParseMessageStatus(raw)
	if !ok {
		return errors.NewValidationError("ack", "unmapped ack level "+raw)
	}
	return h.inbox.HandleExternalStatus(ctx, p.ID, status)
}
