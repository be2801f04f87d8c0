package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateErr struct {
	Error string `json:"error"`
}

// idleTTL is how long a client's bucket survives without requests.
const idleTTL = 10 * time.Minute

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// ClientLimiter keeps one token bucket per client key. Buckets idle for
// longer than idleTTL are swept, so the map tracks only active clients.
type ClientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*clientBucket
	lastSweep time.Time
	now       func() time.Time
}

// NewClientLimiter returns nil (no limiting) when rps is not positive.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		buckets:   make(map[string]*clientBucket),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (c *ClientLimiter) Allow(key string) bool {
	c.mu.Lock()
	now := c.now()
	if now.Sub(c.lastSweep) >= idleTTL {
		c.sweep(now)
	}
	b, ok := c.buckets[key]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(c.limit, c.burst)}
		c.buckets[key] = b
	}
	b.seen = now
	c.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// sweep drops idle buckets; c.mu must be held.
func (c *ClientLimiter) sweep(now time.Time) {
	for key, b := range c.buckets {
		if now.Sub(b.seen) >= idleTTL {
			delete(c.buckets, key)
		}
	}
	c.lastSweep = now
}

// RateLimitMiddleware limits each authenticated user, or each remote host
// when the request carries no identity.
func RateLimitMiddleware(l *ClientLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow(clientKey(r)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			retry := math.Ceil(1.0 / float64(l.limit))
			w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rateErr{Error: "too_many_requests"})
		})
	}
}

func clientKey(r *http.Request) string {
	if id, ok := IdentityFromContext(r.Context()); ok {
		return "user:" + id.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
