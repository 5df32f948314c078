package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"furnidesk/internal/errors"
	"furnidesk/internal/httputil"
	"furnidesk/internal/metrics"
	"furnidesk/internal/service"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	visitorIdleTimeout = 5 * time.Minute
	visitorSweepPeriod = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	logger   *logrus.Logger
	now      func() time.Time
}

// NewIPRateLimiter allows perSecond requests per address with the given
// burst. Non-positive values disable limiting.
func NewIPRateLimiter(perSecond float64, burst int, logger *logrus.Logger) *IPRateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 || burst <= 0 {
		limit = rate.Inf
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		logger:   logger,
		now:      time.Now,
	}
}

// Allow reports whether a request from ip may proceed now.
func (l *IPRateLimiter) Allow(ip string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Sweep drops visitors idle longer than the idle timeout and returns how
// many remain.
func (l *IPRateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-visitorIdleTimeout)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
	return len(l.visitors)
}

// Run sweeps idle visitors until ctx is cancelled.
func (l *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(visitorSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetGauge("rate_limiter_visitors", float64(l.Sweep()), nil, "Client addresses tracked by the rate limiter")
		}
	}
}

// Middleware rejects requests over the limit with 429 and a RATE_LIMIT body.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if l.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		metrics.IncrementCounter("http_rate_limited_total", nil, "Requests rejected by the rate limiter")
		l.logger.WithFields(logrus.Fields{
			service.LogFieldRemoteIP: ip,
			"path":                   r.URL.Path,
		}).Warn("Rate limit exceeded")

		w.Header().Set("Retry-After", "1")
		httputil.WriteError(w, r, nil, errors.NewRateLimitError(float64(l.limit), l.burst))
	})
}
