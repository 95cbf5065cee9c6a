package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newRateLimited(t *testing.T, cfg RateLimitConfig) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return RateLimit(ctx, cfg)(okHandler())
}

func hit(h http.Handler, remoteAddr string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := newRateLimited(t, RateLimitConfig{Max: 5, Window: time.Minute})

	for i := range 5 {
		w := hit(h, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := newRateLimited(t, RateLimitConfig{Max: 2, Window: time.Minute})

	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999").Code)
	}

	w := hit(h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var (
		code    int
		message string
	)
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "message":
			message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", message)
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := newRateLimited(t, RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:5678").Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := newRateLimited(t, RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-User")
		},
	})

	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1", "X-User", "a").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "2.2.2.2:2", "X-User", "a").Code)
	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1", "X-User", "b").Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		header []string
		want   string
	}{
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "forwarded list", remote: "192.168.1.1:4444", header: []string{"X-Forwarded-For", "203.0.113.50, 70.41.3.18"}, want: "203.0.113.50"},
		{name: "real ip", remote: "192.168.1.1:4444", header: []string{"X-Real-IP", "198.51.100.7"}, want: "198.51.100.7"},
		{name: "no port", remote: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for i := 0; i+1 < len(tt.header); i += 2 {
				req.Header.Set(tt.header[i], tt.header[i+1])
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.take("k", base)
		require.True(t, ok)
	}
	_, _, ok := l.take("k", base.Add(30*time.Second))
	assert.False(t, ok, "window is full")

	// Halfway into the next window the previous 4 requests weigh 2.
	remaining, reset, ok := l.take("k", base.Add(90*time.Second))
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, base.Add(2*time.Minute), reset)

	// Two idle windows reset the counter completely.
	remaining, _, ok = l.take("k", base.Add(5*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	l.take("old", base)
	l.take("new", base.Add(2*time.Minute))
	l.evict(base.Add(2*time.Minute + time.Second))

	assert.NotContains(t, l.counters, "old")
	assert.Contains(t, l.counters, "new")
}
