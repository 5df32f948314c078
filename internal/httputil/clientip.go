package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the caller address used for rate limiting and logs.
// The first valid entry of X-Forwarded-For wins, then X-Real-IP, then
// RemoteAddr. Bracketed IPv6 and host:port forms are reduced to the address.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := normalizeIP(first); ip != "" {
			return ip
		}
	}

	if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if ip := normalizeIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func normalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	if net.ParseIP(raw) == nil {
		return ""
	}
	return raw
}
