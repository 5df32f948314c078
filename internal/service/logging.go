package service

import (
	"context"

	"furnidesk/internal/models"
	"furnidesk/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerboseLogging marks ctx so message content may be logged at debug level.
func WithVerboseLogging(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// messageFields returns the standard fields for a message, content excluded.
func messageFields(msg models.Message) logrus.Fields {
	fields := logrus.Fields{
		LogFieldThreadID:  msg.ThreadID,
		LogFieldMessageID: msg.ID,
		LogFieldStatus:    string(msg.Status),
	}
	if msg.SenderID != "" {
		fields[LogFieldUserID] = privacy.MaskUserID(msg.SenderID)
	}
	if msg.ExternalID != "" {
		fields[LogFieldExternalID] = privacy.MaskMessageID(msg.ExternalID)
	}
	if msg.Source != "" {
		fields[LogFieldSource] = msg.Source
	}
	return fields
}

// LogMessageProcessing logs a message passing through the service. Content
// is only included when verbose logging is enabled for ctx.
func LogMessageProcessing(ctx context.Context, logger logrus.FieldLogger, direction string, msg models.Message) {
	fields := messageFields(msg)
	fields[LogFieldDirection] = direction

	if IsVerboseLogging(ctx) {
		fields["content"] = msg.Content
		logger.WithFields(fields).Debug("Processing message")
		return
	}
	fields["content"] = privacy.MaskContent(msg.Content)
	logger.WithFields(fields).Debug("Processing message")
}
