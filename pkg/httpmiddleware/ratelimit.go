package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc returns the key a request is counted against. Defaults to
	// ClientIP.
	KeyFunc func(*http.Request) string
}

// counter approximates a sliding window from two fixed windows: the
// previous window's count is weighted by how much of it still overlaps.
type counter struct {
	start time.Time
	curr  float64
	prev  float64
}

func (c *counter) advance(now time.Time, window time.Duration) {
	elapsed := now.Sub(c.start)
	switch {
	case elapsed < window:
		return
	case elapsed < 2*window:
		c.prev = c.curr
	default:
		c.prev = 0
	}
	c.curr = 0
	c.start = now.Truncate(window)
}

func (c *counter) estimate(now time.Time, window time.Duration) float64 {
	overlap := 1 - now.Sub(c.start).Seconds()/window.Seconds()
	return c.prev*max(overlap, 0) + c.curr
}

type limiter struct {
	max    int
	window time.Duration
	key    func(*http.Request) string

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	return &limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		key:      key,
		counters: make(map[string]*counter),
	}
}

// take counts a request for key unless the limit is reached.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &counter{start: now.Truncate(l.window)}
		l.counters[key] = c
	}
	c.advance(now, l.window)

	reset = c.start.Add(l.window)
	used := c.estimate(now, l.window)
	if used >= float64(l.max) {
		return 0, reset, false
	}
	c.curr++
	return max(int(float64(l.max)-used-1), 0), reset, true
}

// evict drops counters idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

func (l *limiter) runEviction(ctx context.Context) {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// RateLimit returns a middleware enforcing a per-key sliding window limit.
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejected requests get 429 with Retry-After.
// Idle keys are evicted in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.runEviction(ctx)
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		remaining, reset, ok := l.take(l.key(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		retry := max(reset.Sub(now), 0)
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		zctx.From(r.Context()).Debug("Rate limited", zap.Duration("retry_after", retry))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError writes the API error body {"code","message"}.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
