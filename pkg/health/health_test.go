package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func doProbe(t *testing.T, h http.HandlerFunc) (int, statusBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body statusBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

func runTimes(h *Health, n int) {
	for range n {
		h.RunChecks(context.Background())
	}
}

// --- Tests ---

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		check  CheckFunc
		runs   int
		status int
	}{
		{name: "no checks", runs: 0, status: http.StatusOK},
		{name: "passing", check: passing(), runs: 1, status: http.StatusOK},
		{name: "failing below threshold", check: failing("boom"), runs: failureThreshold - 1, status: http.StatusOK},
		{name: "failing at threshold", check: failing("boom"), runs: failureThreshold, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			if tt.check != nil {
				h.AddLivenessCheck("probe", time.Second, tt.check)
			}
			runTimes(h, tt.runs)

			code, body := doProbe(t, h.LiveEndpoint)
			assert.Equal(t, tt.status, code)
			if tt.status != http.StatusOK {
				assert.Equal(t, "unhealthy", body.Status)
				assert.Equal(t, "boom", body.Checks["probe"])
			}
		})
	}
}

func TestReadyEndpoint_RequiresSetReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("storage", time.Second, passing())
	runTimes(h, 1)

	code, body := doProbe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, body = doProbe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	code, _ = doProbe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_Recovery(t *testing.T) {
	var down atomic.Bool
	down.Store(true)

	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("storage", time.Second, func(context.Context) error {
		if down.Load() {
			return errors.New("connection refused")
		}
		return nil
	})
	h.AddLivenessCheck("goroutines", time.Second, passing())

	runTimes(h, failureThreshold)
	code, body := doProbe(t, h.ReadyEndpoint)
	require.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", body.Checks["storage"])

	// Readiness failures do not affect liveness.
	code, _ = doProbe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)

	down.Store(false)
	runTimes(h, 1)
	code, _ = doProbe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.AddLivenessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	runTimes(h, failureThreshold)

	code, body := doProbe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), body.Checks["slow"])
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddLivenessCheck("count", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	h.Stop()
	h.Stop()

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestCheckers(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))

	assert.NoError(t, PingCheck(func() error { return nil })(context.Background()))
	assert.EqualError(t, PingCheck(func() error { return errors.New("closed") })(context.Background()), "closed")
}
