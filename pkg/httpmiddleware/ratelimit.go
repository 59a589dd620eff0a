package httpmiddleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the length of one window.
	Window time.Duration
	// Clients bounds the number of tracked keys. Zero means 10000.
	Clients int
	// KeyFunc extracts the limit key from a request. Nil uses the client IP.
	KeyFunc func(*http.Request) string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// window counts requests in two adjacent fixed windows; the previous one is
// weighted by its overlap with the sliding window ending now.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

type rateLimiter struct {
	max     int
	length  time.Duration
	keyFunc func(*http.Request) string
	now     func() time.Time

	mu      sync.Mutex
	clients *expirable.LRU[string, *window]
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Clients <= 0 {
		cfg.Clients = 10_000
	}
	return &rateLimiter{
		max:     cfg.Max,
		length:  cfg.Window,
		keyFunc: cfg.KeyFunc,
		now:     cfg.Now,
		// A key idle for two windows has nothing left to weigh.
		clients: expirable.NewLRU[string, *window](cfg.Clients, nil, 2*cfg.Window),
	}
}

// allow registers a request for key at now and reports whether it is within
// the limit, how many requests remain and when the current window resets.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, found := rl.clients.Get(key)
	if !found {
		w = &window{currStart: now.Truncate(rl.length)}
	}
	// Re-adding refreshes the expiry of an active key.
	rl.clients.Add(key, w)

	if elapsed := now.Sub(w.currStart); elapsed >= rl.length {
		if elapsed >= 2*rl.length {
			w.prevCount = 0
		} else {
			w.prevCount = w.currCount
		}
		w.currCount = 0
		w.currStart = now.Truncate(rl.length)
	}

	overlap := 1 - now.Sub(w.currStart).Seconds()/rl.length.Seconds()
	effective := w.prevCount*max(overlap, 0) + w.currCount
	resetAt = w.currStart.Add(rl.length)

	if effective >= float64(rl.max) {
		return 0, resetAt, false
	}
	w.currCount++
	return max(int(float64(rl.max)-effective-1), 0), resetAt, true
}

// RateLimit returns a middleware enforcing a per-key sliding window limit.
// Rejected requests get 429 with a Retry-After header; every response
// carries X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := rl.now()
			remaining, resetAt, ok := rl.allow(rl.keyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retry := max(resetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host of RemoteAddr.
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
