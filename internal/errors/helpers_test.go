package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty message", NewEmptyMessageError(), http.StatusBadRequest},
		{"no active thread", NewNoActiveThreadError(), http.StatusBadRequest},
		{"external channel", NewExternalChannelError("t1", "whatsapp"), http.StatusBadRequest},
		{"not owner", NewNotOwnerError("m1"), http.StatusForbidden},
		{"forbidden", NewForbiddenError("delete group"), http.StatusForbidden},
		{"thread not found", NewThreadNotFoundError("t1"), http.StatusNotFound},
		{"message not found", NewMessageNotFoundError("t1", "m1"), http.StatusNotFound},
		{"status regression", NewStatusRegressionError("m1", "read", "sent"), http.StatusConflict},
		{"retryable transport", NewTransportError("local", errors.New("x")), http.StatusBadGateway},
		{"rate limit", NewRateLimitError(5, 10), http.StatusTooManyRequests},
		{"database", NewDatabaseError("insert", errors.New("x")), http.StatusServiceUnavailable},
		{"plain", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestNewAPIError_Retryable(t *testing.T) {
	assert.True(t, NewAPIError("whatsapp", "/api/sendText", 503, errors.New("x")).Retryable)
	assert.True(t, NewAPIError("whatsapp", "/api/sendText", 429, errors.New("x")).Retryable)
	assert.False(t, NewAPIError("whatsapp", "/api/sendText", 400, errors.New("x")).Retryable)
	assert.Equal(t, ErrCodeWhatsAppAPI, NewAPIError("whatsapp", "/x", 500, nil).Code)
	assert.Equal(t, ErrCodeInternalError, NewAPIError("other", "/x", 500, nil).Code)
}

func TestToHTTPResponse(t *testing.T) {
	err := NewTransportError("local", errors.New("boom")).
		WithContext("content", "secret body").
		WithContext("thread_id", "t1")

	resp := ToHTTPResponse(err, "req_1")

	assert.Equal(t, "req_1", resp.RequestID)
	assert.Equal(t, ErrCodeTransport, resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
	assert.Equal(t, "Message could not be delivered, tap to retry", resp.Error.Message)

	ctx, ok := resp.Error.Context.(map[string]interface{})
	if assert.True(t, ok) {
		assert.Equal(t, "t1", ctx["thread_id"])
		assert.NotContains(t, ctx, "content")
	}
}

func TestToHTTPResponse_PlainError(t *testing.T) {
	resp := ToHTTPResponse(errors.New("boom"), "")
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Nil(t, resp.Error.Context)
}
