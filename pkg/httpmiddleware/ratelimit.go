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
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests, e.g. health probes, from limiting.
	Skip func(*http.Request) bool
}

// counter approximates a sliding window from two fixed windows.
type counter struct {
	prev      float64
	prevStart time.Time
	curr      float64
	currStart time.Time
}

type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &limiter{
		cfg:      cfg,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// take consumes one request for key, reporting the remaining budget, the end
// of the current window and whether the request fits.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.counters[key]
	if c == nil {
		c = &counter{currStart: now}
		l.counters[key] = c
	}

	window := l.cfg.Window
	if now.Sub(c.currStart) >= window {
		c.prev, c.prevStart = c.curr, c.currStart
		c.curr, c.currStart = 0, now.Truncate(window)
		if now.Sub(c.prevStart) >= 2*window {
			c.prev = 0
		}
	}

	overlap := max(0, 1-now.Sub(c.currStart).Seconds()/window.Seconds())
	used := c.prev*overlap + c.curr
	reset = c.currStart.Add(window)

	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	c.curr++
	return max(0, int(float64(l.cfg.Max)-used-1)), reset, true
}

// evict drops counters idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.currStart) >= 2*l.cfg.Window {
			delete(l.counters, key)
		}
	}
}

func (l *limiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * l.cfg.Window)
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

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.cfg.Skip != nil && l.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		now := l.now()
		remaining, reset, ok := l.take(l.cfg.KeyFunc(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !ok {
			wait := max(0, reset.Sub(now))
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit limits requests per client. Counters are never evicted; use
// RateLimitWithCleanup for long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a background goroutine, bound to
// ctx, that evicts idle counters.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.evictLoop(ctx)
	return l.middleware
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
