// Package health serves Kubernetes-style liveness and readiness probes.
//
// Every check runs on its own ticker. A check turns unhealthy only after
// FailureThreshold consecutive failures and recovers after SuccessThreshold
// consecutive passes, so one slow ping does not flap the probe.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Thresholds tune when a check flips state.
type Thresholds struct {
	Failure int
	Success int
}

// DefaultThresholds mirror the Kubernetes probe defaults.
var DefaultThresholds = Thresholds{Failure: 3, Success: 1}

// check holds one registered check. run is only ever called from the
// check's own goroutine, so the streak counters are unsynchronized; healthy
// and lastErr are read by HTTP handlers.
type check struct {
	name       string
	timeout    time.Duration
	fn         CheckFunc
	thresholds Thresholds

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails  int
	passes int
}

func newCheck(name string, timeout time.Duration, fn CheckFunc, t Thresholds) *check {
	c := &check{name: name, timeout: timeout, fn: fn, thresholds: t}
	c.healthy.Store(true)
	return c
}

func (c *check) isHealthy() bool {
	return c.healthy.Load()
}

func (c *check) getLastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	if err != nil {
		c.passes = 0
		c.fails++
		if c.fails >= c.thresholds.Failure {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.passes++
	if c.passes >= c.thresholds.Success {
		c.healthy.Store(true)
	}
}

func (c *check) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// Health aggregates liveness and readiness checks.
type Health struct {
	ready      atomic.Bool
	thresholds Thresholds

	mu              sync.RWMutex
	livenessChecks  []*check
	readinessChecks []*check
	cancel          context.CancelFunc
}

// Option configures Health.
type Option func(*Health)

// WithThresholds overrides DefaultThresholds for checks registered later.
func WithThresholds(t Thresholds) Option {
	return func(h *Health) { h.thresholds = t }
}

// New returns a Health that reports not ready until SetReady(true).
func New(opts ...Option) *Health {
	h := &Health{thresholds: DefaultThresholds}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddLivenessCheck registers a check that decides whether the process
// should be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, newCheck(name, timeout, fn, h.thresholds))
}

// AddReadinessCheck registers a check that decides whether the instance
// should receive traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, newCheck(name, timeout, fn, h.thresholds))
}

// Start runs every registered check each interval until ctx is done or Stop
// is called. Register checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Concat(h.livenessChecks, h.readinessChecks)
	h.mu.Unlock()

	for _, c := range checks {
		go c.loop(ctx, interval)
	}
}

// Stop cancels the check goroutines. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. The server sets it after startup
// and clears it when draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the manual gate AND all readiness checks.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, c := range h.snapshot(&h.readinessChecks) {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(checks *[]*check) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(*checks)
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(&h.livenessChecks)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(&h.readinessChecks))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

// failures maps each unhealthy check to its last error.
func failures(checks []*check) map[string]string {
	out := make(map[string]string)
	for _, c := range checks {
		if c.isHealthy() {
			continue
		}
		msg := "check is unhealthy"
		if err := c.getLastError(); err != nil {
			msg = err.Error()
		}
		out[c.name] = msg
	}
	return out
}

// writeStatus writes {"status":"ok"} or
// {"status":"unhealthy","checks":{name: error}} with 503.
func writeStatus(w http.ResponseWriter, failed map[string]string) {
	status, code := "ok", http.StatusOK
	if len(failed) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if len(failed) == 0 {
			return
		}
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		slices.Sort(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failed[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
