package tracing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestInfo is the correlation data carried through a request. It is
// stored by value, so every With* call returns a new context.
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
	SpanID    string    `json:"span_id"`
	UserID    string    `json:"user_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

type infoKey struct{}

// Info returns the request info stored in ctx, or the zero value.
func Info(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(infoKey{}).(RequestInfo)
	return info
}

func update(ctx context.Context, set func(*RequestInfo)) context.Context {
	info := Info(ctx)
	set(&info)
	return context.WithValue(ctx, infoKey{}, info)
}

// GenerateRequestID returns "req_" followed by 16 hex characters.
func GenerateRequestID() string {
	return "req_" + hexID()[:16]
}

func GenerateTraceID() string { return hexID() }
func GenerateSpanID() string  { return hexID()[16:] }

func hexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return update(ctx, func(i *RequestInfo) { i.RequestID = id })
}

// WithSpanIDs records the trace and span the request runs under.
func WithSpanIDs(ctx context.Context, traceID, spanID string) context.Context {
	return update(ctx, func(i *RequestInfo) { i.TraceID, i.SpanID = traceID, spanID })
}

func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return update(ctx, func(i *RequestInfo) { i.StartTime = t })
}

// WithUserID stores the session user resolved by the HTTP layer.
func WithUserID(ctx context.Context, userID string) context.Context {
	return update(ctx, func(i *RequestInfo) { i.UserID = userID })
}

func GetRequestID(ctx context.Context) string { return Info(ctx).RequestID }
func GetTraceID(ctx context.Context) string   { return Info(ctx).TraceID }
func GetSpanID(ctx context.Context) string    { return Info(ctx).SpanID }
func GetUserID(ctx context.Context) string    { return Info(ctx).UserID }

// Duration is the time elapsed since WithStartTime, or 0 when unset.
func Duration(ctx context.Context) time.Duration {
	start := Info(ctx).StartTime
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
