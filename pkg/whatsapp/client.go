package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"furnidesk/pkg/whatsapp/types"
)

// Client talks to a WAHA-compatible WhatsApp HTTP gateway.
type Client interface {
	SendText(ctx context.Context, chatID, text, replyTo string) (*types.SendMessageResponse, error)
	SendSeen(ctx context.Context, chatID string) error
	Health(ctx context.Context) error
}

// APIError is returned for non-2xx gateway responses. StatusCode is zero when
// the request never got a response.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("whatsapp %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("whatsapp %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type WhatsAppClient struct {
	baseURL     string
	apiKey      string
	sessionName string
	client      *http.Client
}

func NewClient(config types.ClientConfig) *WhatsAppClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsAppClient{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		sessionName: config.SessionName,
		client:      &http.Client{Timeout: timeout},
	}
}

func (c *WhatsAppClient) SendText(ctx context.Context, chatID, text, replyTo string) (*types.SendMessageResponse, error) {
	payload := types.SendTextRequest{
		ChatID:  chatID,
		Text:    text,
		Session: c.sessionName,
		ReplyTo: replyTo,
	}

	var result types.SendMessageResponse
	if err := c.do(ctx, http.MethodPost, types.EndpointSendText, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendSeen marks the chat as read on the client's phone.
func (c *WhatsAppClient) SendSeen(ctx context.Context, chatID string) error {
	payload := types.SeenRequest{
		ChatID:  chatID,
		Session: c.sessionName,
	}
	return c.do(ctx, http.MethodPost, types.EndpointSendSeen, payload, nil)
}

func (c *WhatsAppClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, types.EndpointHealth, nil, nil)
}

func (c *WhatsAppClient) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+types.APIBase+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(types.HeaderAPIKey, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &APIError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp types.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Message != "" {
				apiErr.Message = errResp.Message
			} else if errResp.Error != "" {
				apiErr.Message = errResp.Error
			}
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
