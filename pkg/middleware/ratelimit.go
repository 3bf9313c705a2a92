package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ariya-Dice/tansoo/pkg/httputil"
)

// RateLimitConfig bounds requests per client key.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// TTL evicts limiters for keys not seen in this long.
	TTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterTable struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	cfg     RateLimitConfig
	now     func() time.Time
}

func newLimiterTable(cfg RateLimitConfig) *limiterTable {
	return &limiterTable{
		entries: make(map[string]*limiterEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (t *limiterTable) get(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(t.cfg.RPS), t.cfg.Burst)}
		t.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// evict drops entries idle for longer than the TTL and returns how many
// remain.
func (t *limiterTable) evict() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.cfg.TTL)
	for k, e := range t.entries {
		if e.lastSeen.Before(cutoff) {
			delete(t.entries, k)
		}
	}
	return len(t.entries)
}

// KeyFunc picks the rate limit bucket for a request.
type KeyFunc func(*http.Request) string

// SessionOrIPKey buckets by cart session id, falling back to client IP.
func SessionOrIPKey(r *http.Request) string {
	if id := r.Header.Get(SessionIDHeader); id != "" {
		return "s:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimit rejects requests over the per-key rate with 429. Idle keys are
// evicted every TTL until stop is closed.
func RateLimit(cfg RateLimitConfig, key KeyFunc, logger *slog.Logger, stop <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	table := newLimiterTable(cfg)

	go func() {
		ticker := time.NewTicker(cfg.TTL)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				table.evict()
			case <-stop:
				return
			}
		}
	}()

	retryAfter := strconv.Itoa(max(1, int(1/cfg.RPS)))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !table.get(k).Allow() {
				logger.WarnContext(r.Context(), "rate limit exceeded", slog.String("key", k))
				w.Header().Set("Retry-After", retryAfter)
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
