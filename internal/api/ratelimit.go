package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/duckmesh/nlq/internal/config"
)

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = 5 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client address. Idle buckets are
// swept lazily on access.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiters(cfg config.RateLimitConfig) *clientLimiters {
	return &clientLimiters{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		clients: map[string]*clientLimiter{},
		now:     time.Now,
	}
}

func (c *clientLimiters) get(client string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= limiterSweepInterval {
		for key, entry := range c.clients {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(c.clients, key)
			}
		}
		c.lastSweep = now
	}

	entry, ok := c.clients[client]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// RateLimiter enforces a per-client token bucket. A zero rate disables it.
func RateLimiter(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiters := newClientLimiters(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := limiters.get(clientIP(r))

			reservation := limiter.Reserve()
			if !reservation.OK() {
				writeTooManyRequests(w, r, 0)
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				writeTooManyRequests(w, r, int(delay.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP uses RemoteAddr only; forwarded headers are client controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	writeError(r.Context(), w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please retry later.")
}
