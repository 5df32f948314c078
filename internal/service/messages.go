package service

import (
	"context"
	"strings"
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/constants"
	"furnidesk/internal/errors"
	"furnidesk/internal/metrics"
	"furnidesk/internal/models"
	"furnidesk/internal/tracing"
	"furnidesk/internal/validation"
	"furnidesk/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// SendMessage appends a message and delivers it.
//
// Commands that fail validation return an empty message and leave the thread
// untouched. Once the message is stored, a delivery failure returns the
// message in error status together with a retryable error.
func (s *ChatService) SendMessage(ctx context.Context, session models.Session, cmd models.SendCommand) (models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.send_message",
		attribute.String("thread.id", cmd.ThreadID),
		attribute.Bool("message.internal_note", cmd.IsInternalNote),
		attribute.Bool("message.send_external", cmd.AlsoSendExternally),
	)
	defer span.End()

	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return models.Message{}, errors.NewEmptyMessageError()
	}
	if err := validation.ValidateContent(content); err != nil {
		return models.Message{}, err
	}
	attachments, err := validation.NormalizeAttachments(cmd.Attachments)
	if err != nil {
		return models.Message{}, err
	}
	if cmd.IsInternalNote && cmd.AlsoSendExternally {
		return models.Message{}, errors.NewValidationError("alsoSendExternally", "internal notes are never sent externally")
	}

	var msg models.Message
	thread, err := s.mutate(ctx, cmd.ThreadID, func(t models.Thread) (threadChange, error) {
		if !canView(session, t) {
			return threadChange{}, errors.NewThreadNotFoundError(t.ID)
		}
		if !canPost(session, t) {
			return threadChange{}, errors.NewForbiddenError("post in this thread")
		}
		if cmd.IsInternalNote && t.Type != models.ThreadClient {
			return threadChange{}, errors.NewValidationError("isInternalNote", "internal notes are only available in client threads")
		}

		var source string
		if cmd.AlsoSendExternally {
			resolved, ok := s.resolveChannel(t)
			if !ok {
				attempted := ""
				if len(t.Sources) > 0 {
					attempted = t.Sources[0]
				}
				return threadChange{}, errors.NewExternalChannelError(t.ID, attempted)
			}
			source = resolved
		}

		reply := cmd.Reply
		if reply == nil && cmd.ReplyToID != "" {
			original, ok := t.FindMessage(cmd.ReplyToID)
			if !ok {
				return threadChange{}, errors.NewMessageNotFoundError(t.ID, cmd.ReplyToID)
			}
			snapshot := original.Snapshot()
			reply = &snapshot
		}

		msg = chat.NewMessage(chat.MessageParams{
			ThreadID:       t.ID,
			Content:        content,
			Sender:         session.AsParticipant(),
			Attachments:    attachments,
			ReplyTo:        reply,
			IsInternalNote: cmd.IsInternalNote,
			Source:         source,
		}, s.now())
		t = chat.AppendMessage(t, msg)
		return changed(t, s.messageEvent(models.EventMessageNew, t, msg)), nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return models.Message{}, err
	}

	LogMessageProcessing(ctx, s.logger, "outgoing", msg)

	if msg.IsInternalNote {
		// notes stay inside the team; there is nothing to hand to a transport
		return s.finishDelivery(ctx, msg, Receipt{Status: models.StatusSent, At: s.now()}, nil)
	}

	receipt, sendErr := s.deliver(ctx, thread, msg)
	return s.finishDelivery(ctx, msg, receipt, sendErr)
}

func (s *ChatService) resolveChannel(t models.Thread) (string, bool) {
	if !t.HasExternalSource() || s.channels == nil {
		return "", false
	}
	return s.channels.Resolve(t)
}

func isRetryableDelivery(err error) bool {
	return errors.IsRetryable(err) && !circuitbreaker.IsCircuitBreakerError(err)
}

// deliver hands msg to the transport and, when it carries a source, forwards
// it to the external channel. Both steps retry with backoff.
func (s *ChatService) deliver(ctx context.Context, thread models.Thread, msg models.Message) (Receipt, error) {
	start := time.Now()
	transportName := s.transport.Name()

	var receipt Receipt
	err := s.backoff.RetryWithPredicate(ctx, func(ctx context.Context, attempt int) error {
		r, err := s.transport.Send(ctx, thread, msg)
		if err != nil {
			if _, ok := errors.As(err); ok {
				return err
			}
			return errors.NewTransportError(transportName, err)
		}
		receipt = r
		return nil
	}, isRetryableDelivery)

	if err == nil && msg.Source != "" && s.channels != nil {
		transportName = msg.Source
		err = s.backoff.RetryWithPredicate(ctx, func(ctx context.Context, attempt int) error {
			r, err := s.channels.Forward(ctx, msg.Source, thread, msg)
			if err != nil {
				return err
			}
			receipt.ExternalID = r.ExternalID
			return nil
		}, isRetryableDelivery)
	}

	outcome := "sent"
	if err != nil {
		outcome = "error"
	}
	labels := map[string]string{LogFieldTransport: transportName, LogFieldStatus: outcome}
	metrics.IncrementCounter("messages_sent_total", labels, "Messages handed to a transport")
	metrics.RecordTimer("message_delivery_duration_seconds", time.Since(start), labels, "Time spent delivering a message")

	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.NewTransportError(transportName, err)
		}
		return Receipt{}, err
	}
	return receipt, nil
}

// finishDelivery records the delivery outcome. It runs even when the caller's
// context is gone so a message is never left in sending.
func (s *ChatService) finishDelivery(ctx context.Context, msg models.Message, receipt Receipt, sendErr error) (models.Message, error) {
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultDeliveryFinishTimeout*time.Second)
	defer cancel()

	status := models.StatusSent
	if receipt.Status.Rank() > status.Rank() {
		status = receipt.Status
	}
	if sendErr != nil {
		status = models.StatusError
	}

	final := msg
	_, err := s.mutate(finishCtx, msg.ThreadID, func(t models.Thread) (threadChange, error) {
		dirty := false
		if sendErr == nil && receipt.ExternalID != "" {
			next, err := chat.AttachExternalID(t, msg.ID, receipt.ExternalID)
			if err != nil {
				return threadChange{}, err
			}
			t = next
			dirty = true
		}

		var events []models.ChatEvent
		next, applied, err := chat.ApplyStatus(t, msg.ID, status)
		switch {
		case errors.HasCode(err, errors.ErrCodeStatusRegression):
			// a faster acknowledgment already moved the message further
			s.logger.WithFields(logrus.Fields{
				LogFieldThreadID:  msg.ThreadID,
				LogFieldMessageID: msg.ID,
				LogFieldStatus:    string(status),
			}).Debug("Delivery result superseded by acknowledgment")
		case err != nil:
			return threadChange{}, err
		case applied:
			t = next
			dirty = true
			events = append(events, s.statusEvent(t, msg.ID, status))
		}

		if current, ok := t.FindMessage(msg.ID); ok {
			final = current
		}
		if !dirty {
			return unchanged(t), nil
		}
		return changed(t, events...), nil
	})
	if err != nil {
		errors.Log(s.logger, err, "Failed to record delivery result", messageFields(msg))
		if sendErr != nil {
			return final, sendErr
		}
		return final, err
	}

	if sendErr != nil && final.Status != models.StatusError {
		// acknowledged by the other side before the transport gave up
		s.logger.WithFields(messageFields(final)).WithError(sendErr).Warn("Delivery error after acknowledgment ignored")
		return final, nil
	}
	if sendErr != nil {
		errors.Log(s.logger, sendErr, "Message delivery failed", messageFields(final))
		return final, sendErr
	}
	return final, nil
}

// RetryMessage sends a failed message again. Only its author may retry it.
func (s *ChatService) RetryMessage(ctx context.Context, session models.Session, threadID, messageID string) (models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.retry_message", attribute.String("thread.id", threadID))
	defer span.End()

	var msg models.Message
	thread, err := s.mutate(ctx, threadID, func(t models.Thread) (threadChange, error) {
		if !canView(session, t) {
			return threadChange{}, errors.NewThreadNotFoundError(threadID)
		}
		original, ok := t.FindMessage(messageID)
		if !ok {
			return threadChange{}, errors.NewMessageNotFoundError(threadID, messageID)
		}
		if !original.IsOwnedBy(session.UserID) {
			return threadChange{}, errors.NewForbiddenError("retry someone else's message")
		}
		next, err := chat.MarkForRetry(t, messageID)
		if err != nil {
			return threadChange{}, err
		}
		msg, _ = next.FindMessage(messageID)
		return changed(next, s.statusEvent(next, messageID, models.StatusSending)), nil
	})
	if err != nil {
		return models.Message{}, err
	}

	metrics.IncrementCounter("messages_retried_total", nil, "Failed messages sent again")
	receipt, sendErr := s.deliver(ctx, thread, msg)
	return s.finishDelivery(ctx, msg, receipt, sendErr)
}

// EditMessage replaces the text of one of the session user's messages.
func (s *ChatService) EditMessage(ctx context.Context, session models.Session, cmd models.EditCommand) (models.Message, error) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return models.Message{}, errors.NewEmptyMessageError()
	}
	if err := validation.ValidateContent(content); err != nil {
		return models.Message{}, err
	}

	var edited models.Message
	_, err := s.mutate(ctx, cmd.ThreadID, func(t models.Thread) (threadChange, error) {
		if !canView(session, t) {
			return threadChange{}, errors.NewThreadNotFoundError(t.ID)
		}
		next, err := chat.EditMessage(t, cmd.MessageID, content, session, s.now())
		if err != nil {
			return threadChange{}, err
		}
		edited, _ = next.FindMessage(cmd.MessageID)
		return changed(next, s.messageEvent(models.EventMessageUpdated, next, edited)), nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return edited, nil
}

// ToggleImportant flips the important flag of a message.
func (s *ChatService) ToggleImportant(ctx context.Context, session models.Session, cmd models.ToggleImportantCommand) (models.Message, error) {
	var updated models.Message
	_, err := s.mutate(ctx, cmd.ThreadID, func(t models.Thread) (threadChange, error) {
		if !canView(session, t) {
			return threadChange{}, errors.NewThreadNotFoundError(t.ID)
		}
		next, err := chat.ToggleImportant(t, cmd.MessageID)
		if err != nil {
			return threadChange{}, err
		}
		updated, _ = next.FindMessage(cmd.MessageID)
		return changed(next, s.messageEvent(models.EventMessageUpdated, next, updated)), nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return updated, nil
}
