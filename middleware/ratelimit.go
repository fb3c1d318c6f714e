package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/moddyapp/signproxy/internal/httpx"
)

// DefaultLimiterExpiry is how long an idle client keeps its bucket.
const DefaultLimiterExpiry = 5 * time.Minute

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int

	// Expiry evicts clients idle for longer. Defaults to
	// DefaultLimiterExpiry.
	Expiry time.Duration

	// KeyFunc identifies the client. Defaults to the remote IP.
	KeyFunc func(r *http.Request) string

	Clock clockwork.Clock
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	expiry  time.Duration
	keyFunc func(r *http.Request) string
	clock   clockwork.Clock

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter validates cfg and returns a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) (*RateLimiter, error) {
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		return nil, ErrInvalidRate
	}

	rl := &RateLimiter{
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
		expiry:   cfg.Expiry,
		keyFunc:  cfg.KeyFunc,
		clock:    cfg.Clock,
		visitors: make(map[string]*visitor),
	}

	if rl.expiry <= 0 {
		rl.expiry = DefaultLimiterExpiry
	}

	if rl.keyFunc == nil {
		rl.keyFunc = RemoteIP
	}

	if rl.clock == nil {
		rl.clock = clockwork.NewRealClock()
	}

	rl.lastSweep = rl.clock.Now()

	return rl, nil
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.expiry {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.expiry {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.visitors)
}

// Middleware answers 429 {"error":"rate limit exceeded"} once a client
// runs out of tokens.
func (rl *RateLimiter) Middleware() Func {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(rl.keyFunc(r)) {
				w.Header().Set("Retry-After", "1")
				httpx.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RemoteIP returns the host part of r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
