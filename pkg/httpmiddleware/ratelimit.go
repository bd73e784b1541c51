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
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client limiter. Each client gets a
// token bucket holding Max tokens that refills at Max per Window.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	cfg   RateLimitConfig
	every rate.Limit

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	if cfg.Max <= 0 {
		cfg.Max = 1
	}
	return &rateLimiter{
		cfg:      cfg,
		every:    rate.Limit(float64(cfg.Max) / cfg.Window.Seconds()),
		visitors: make(map[string]*visitor),
	}
}

func (rl *rateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.every, rl.cfg.Max)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// evict drops visitors idle for longer than two windows. Their buckets are
// full again by then, so a fresh limiter is equivalent.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= 2*rl.cfg.Window {
			delete(rl.visitors, key)
		}
	}
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// RateLimit returns a middleware that rejects clients exceeding the limit
// with 429 and a Retry-After header. Idle clients are never evicted; use
// RateLimitWithCleanup for long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle clients
// until ctx is canceled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.evict(now)
			}
		}
	}()
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		lim := rl.limiter(rl.cfg.KeyFunc(r), now)

		res := lim.ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if delay > 0 {
			res.CancelAt(now)
		}

		remaining := max(int(lim.TokensAt(now)), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if delay > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			var e jx.Encoder
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusTooManyRequests) })
				e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write(e.Bytes())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
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
