package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"furnidesk/internal/httputil"
	"furnidesk/internal/metrics"
	"furnidesk/internal/privacy"
	"furnidesk/internal/service"
	"furnidesk/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// RequestIDHeader echoes the request id back to the caller.
	RequestIDHeader = "X-Request-ID"
	// UserIDHeader names the dashboard user making the request.
	UserIDHeader = "X-User-ID"
)

// routeLabel returns the matched route template so metric labels stay
// bounded; unmatched paths collapse into one label.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// ObservabilityMiddleware ties a request id, a span, request metrics and the
// access log together. Register it with router.Use so the route is known.
func ObservabilityMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.WithOtelTracing(r.Context(), "http_request")
			defer span.End()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = tracing.GenerateRequestID()
			}
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)
			w.Header().Set(RequestIDHeader, requestID)

			route := routeLabel(r)
			clientIP := httputil.GetClientIP(r)
			tracing.AddSpanAttributes(ctx,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("client.address", clientIP),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
			)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			metrics.AddToGauge("http_requests_active", 1, nil, "Currently active HTTP requests")
			defer metrics.AddToGauge("http_requests_active", -1, nil, "Currently active HTTP requests")

			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(wrapper.statusCode)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 500 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
			}

			labels := map[string]string{"method": r.Method, "route": route, "status_code": status}
			metrics.IncrementCounter("http_requests_total", labels, "HTTP requests by route and status")
			metrics.RecordTimer("http_request_duration", duration, labels, "HTTP request duration")
			if wrapper.responseSize > 0 {
				metrics.Observe("http_response_size_bytes", float64(wrapper.responseSize),
					map[string]string{"route": route}, "HTTP response size in bytes")
			}

			level := logrus.InfoLevel
			switch {
			case wrapper.statusCode >= 500:
				level = logrus.ErrorLevel
			case wrapper.statusCode >= 400:
				level = logrus.WarnLevel
			case r.URL.Path == "/health" || r.URL.Path == "/metrics":
				level = logrus.DebugLevel
			}

			logger.WithFields(logrus.Fields{
				"request_id":               requestID,
				"trace_id":                 tracing.GetTraceID(ctx),
				"method":                   r.Method,
				"path":                     r.URL.Path,
				"route":                    route,
				service.LogFieldUserID:     privacy.MaskUserID(r.Header.Get(UserIDHeader)),
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				"size":                     wrapper.responseSize,
			}).Log(level, "HTTP request completed")
		})
	}
}

// WebhookObservabilityMiddleware counts webhook deliveries by source and
// outcome. It runs inside ObservabilityMiddleware.
func WebhookObservabilityMiddleware(logger *logrus.Logger, source string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracing.StartSpan(r.Context(), "webhook_request",
				attribute.String("webhook.source", source),
				attribute.Int64("http.request.content_length", r.ContentLength),
			)
			defer span.End()
			r = r.WithContext(ctx)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			outcome := "success"
			if wrapper.statusCode >= 400 {
				outcome = "error"
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("webhook failed with HTTP %d", wrapper.statusCode))
			}

			metrics.IncrementCounter("webhook_requests_total", map[string]string{
				"source":  source,
				"outcome": outcome,
			}, "Webhook deliveries by source and outcome")
			metrics.RecordTimer("webhook_processing_duration", time.Since(start), map[string]string{
				"source": source,
			}, "Webhook processing duration")

			entry := logger.WithFields(logrus.Fields{
				"request_id":               tracing.GetRequestID(ctx),
				service.LogFieldSource:     source,
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   time.Since(start).Milliseconds(),
			})
			if outcome == "error" {
				entry.Warn("Webhook request rejected")
			} else {
				entry.Debug("Webhook request processed")
			}
		})
	}
}

// responseWrapper captures response metrics
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController and the websocket upgrade reach the
// underlying writer.
func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return hj.Hijack()
}
