package middleware

import (
	"net/http"
	"strings"

	"furnidesk/internal/tracing"

	"github.com/sirupsen/logrus"
)

var sensitiveHeaders = map[string]bool{
	"authorization":  true,
	"cookie":         true,
	"x-api-key":      true,
	"x-webhook-hmac": true,
}

// DebugLoggingMiddleware logs request headers at debug level, masking
// credentials. Bodies are never logged since they carry message content.
func DebugLoggingMiddleware(logger *logrus.Logger, skipPaths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsLevelEnabled(logrus.DebugLevel) || skipped(r.URL.Path, skipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			logger.WithFields(logrus.Fields{
				"request_id":      tracing.GetRequestID(r.Context()),
				"method":          r.Method,
				"url":             r.URL.String(),
				"protocol":        r.Proto,
				"content_length":  r.ContentLength,
				"request_headers": maskHeaders(r.Header),
			}).Debug("Request details")

			next.ServeHTTP(w, r)
		})
	}
}

func skipped(path string, skipPaths []string) bool {
	for _, p := range skipPaths {
		if path == p {
			return true
		}
	}
	return false
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if sensitiveHeaders[strings.ToLower(name)] {
			out[name] = "***MASKED***"
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}
