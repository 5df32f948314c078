package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"furnidesk/pkg/whatsapp/types"
)

var (
	ErrMissingSignature  = errors.New("missing webhook signature")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// VerifySignature checks the hex HMAC-SHA512 of body against signature.
// An empty secret disables verification.
func VerifySignature(body []byte, secret, signature string) error {
	if secret == "" {
		return nil
	}
	if signature == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the signature the gateway would send for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook decodes a webhook delivery.
func ParseWebhook(body []byte) (*types.WebhookEvent, error) {
	var event types.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook: %w", err)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("webhook has no event type")
	}
	return &event, nil
}

// WebhookHandler dispatches webhook events to handlers by event type.
type WebhookHandler struct {
	handlers map[string]func(context.Context, *types.WebhookEvent) error
	mu       sync.RWMutex
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		handlers: make(map[string]func(context.Context, *types.WebhookEvent) error),
	}
}

func (wh *WebhookHandler) RegisterEventHandler(eventType string, handler func(context.Context, *types.WebhookEvent) error) {
	wh.mu.Lock()
	defer wh.mu.Unlock()

	wh.handlers[eventType] = handler
}

// Handle runs the handler registered for the event. Events nobody registered
// for are acknowledged and dropped; the bool reports whether a handler ran.
func (wh *WebhookHandler) Handle(ctx context.Context, event *types.WebhookEvent) (bool, error) {
	wh.mu.RLock()
	handler, exists := wh.handlers[event.Event]
	wh.mu.RUnlock()

	if !exists {
		return false, nil
	}
	return true, handler(ctx, event)
}
