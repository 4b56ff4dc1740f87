package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/opdstack/clinic-platform/internal/session"
)

// limiter is a token bucket for one caller. Tokens refill continuously at
// the configured rate up to the burst ceiling.
type limiter struct {
	tokens   float64
	refilled time.Time
}

// callerLimits tracks one bucket per caller. Callers are keyed by session
// actor when a session is present, so a shared clinic NAT does not starve
// the whole front desk, and by client IP otherwise.
type callerLimits struct {
	mu    sync.Mutex
	rate  float64
	burst float64
	byKey map[string]*limiter
	now   func() time.Time
}

func newCallerLimits(rate float64, burst int) *callerLimits {
	return &callerLimits{
		rate:  rate,
		burst: float64(burst),
		byKey: make(map[string]*limiter),
		now:   time.Now,
	}
}

func (c *callerLimits) take(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.prune(now)

	l, ok := c.byKey[key]
	if !ok {
		l = &limiter{tokens: c.burst, refilled: now}
		c.byKey[key] = l
	}

	l.tokens += now.Sub(l.refilled).Seconds() * c.rate
	if l.tokens > c.burst {
		l.tokens = c.burst
	}
	l.refilled = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// prune drops buckets idle long enough to have fully refilled anyway. Runs
// under the limits lock, amortized across requests instead of a background
// goroutine.
func (c *callerLimits) prune(now time.Time) {
	if len(c.byKey) < 1024 {
		return
	}
	cutoff := now.Add(-10 * time.Minute)
	for key, l := range c.byKey {
		if l.refilled.Before(cutoff) {
			delete(c.byKey, key)
		}
	}
}

func callerKey(r *http.Request) string {
	if sess, ok := session.FromContext(r.Context()); ok && sess.ActorID != "" {
		return "actor:" + sess.ActorID
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return "ip:" + xri
	}
	return "ip:" + r.RemoteAddr
}

// RateLimit rejects callers above rate requests/sec (with the given burst)
// using 429 Too Many Requests.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limits := newCallerLimits(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limits.take(callerKey(r)) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
