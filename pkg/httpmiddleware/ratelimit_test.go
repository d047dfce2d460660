package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/checkout/summary", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(handler, requestFrom("192.168.1.1:12345"))

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(handler, requestFrom("10.0.0.1:9999")).Code)
	}

	w := serve(handler, requestFrom("10.0.0.1:9999"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	code, msg := decodeError(t, w)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", msg)
}

func TestRateLimit_RemainingCountsDown(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for _, want := range []string{"2", "1", "0"} {
		w := serve(handler, requestFrom("10.0.0.7:1"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serve(handler, requestFrom("10.0.0.1:1234")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, requestFrom("10.0.0.2:1234")).Code, "independent limit per client")
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, requestFrom("10.0.0.1:5678")).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("Authorization")
		},
	})(okHandler())

	withToken := func(token string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	assert.Equal(t, http.StatusOK, serve(handler, withToken("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, withToken("a")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, withToken("b")).Code)
}

func TestRateLimit_Skip(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Skip:   func(r *http.Request) bool { return r.URL.Path == "/readyz" },
	})(okHandler())

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		w := serve(handler, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_WindowSlides(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	_, _, ok := l.take("k", start)
	require.True(t, ok)
	_, _, ok = l.take("k", start)
	require.True(t, ok)
	_, _, ok = l.take("k", start.Add(30*time.Second))
	require.False(t, ok)

	// Two windows later the previous counts no longer weigh in.
	_, _, ok = l.take("k", start.Add(2*time.Minute+time.Second))
	assert.True(t, ok)
}

func TestRateLimit_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	l.take("old", start)
	l.take("fresh", start.Add(2*time.Minute))
	l.evict(start.Add(2*time.Minute + time.Second))

	assert.NotContains(t, l.counters, "old")
	assert.Contains(t, l.counters, "fresh")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{
			name:    "forwarded for first hop",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"},
			remote:  "192.168.1.1:4444",
			want:    "203.0.113.50",
		},
		{
			name:    "real ip",
			headers: map[string]string{"X-Real-IP": "198.51.100.7"},
			remote:  "192.168.1.1:4444",
			want:    "198.51.100.7",
		},
		{name: "remote without port", remote: "unix", want: "unix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFrom(tt.remote)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
