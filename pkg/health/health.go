// Package health serves /livez and /readyz probes. Registered checks run in
// the background on a fixed interval; the endpoints only report the latest
// results and never call a check inline.
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

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// failureThreshold is the number of consecutive failures after which a
// check is reported unhealthy.
const failureThreshold = 3

type probe int

const (
	liveness probe = iota
	readiness
)

type check struct {
	name    string
	probe   probe
	timeout time.Duration
	fn      CheckFunc

	// Guarded by Health.mu.
	fails   int
	lastErr error
}

func (c *check) healthy() bool {
	return c.fails < failureThreshold
}

// Health tracks liveness and readiness of the service.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	checks []*check
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(&check{name: name, probe: liveness, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check that decides whether the service
// should receive traffic, such as storage connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(&check{name: name, probe: readiness, timeout: timeout, fn: fn})
}

func (h *Health) add(c *check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// Start runs every registered check immediately and then once per interval
// until Stop is called or ctx is canceled.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			h.RunChecks(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// RunChecks executes every check once, in parallel, and records the results.
func (h *Health) RunChecks(ctx context.Context) {
	h.mu.Lock()
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	errs := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			errs[i] = c.fn(checkCtx)
		}()
	}
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range checks {
		c.lastErr = errs[i]
		if errs[i] != nil {
			c.fails++
		} else {
			c.fails = 0
		}
	}
}

// Stop halts background checks and waits for the runner to exit. It is safe
// to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetReady marks the service ready or, during shutdown, not ready.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(readiness)) == 0
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func (h *Health) failures(p probe) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]string)
	for _, c := range h.checks {
		if c.probe != p || c.healthy() {
			continue
		}
		msg := "check is unhealthy"
		if c.lastErr != nil {
			msg = c.lastErr.Error()
		}
		out[c.name] = msg
	}
	return out
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	status, text := http.StatusOK, "ok"
	if len(failures) > 0 {
		status, text = http.StatusServiceUnavailable, "unhealthy"
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(text) })
		if len(failures) == 0 {
			return
		}
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
