package server

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle client's bucket is kept.
const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CommandLimiter rate limits control commands per client address with a
// token bucket. Idle buckets are pruned lazily.
type CommandLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	rate        rate.Limit
	burst       int
	lastCleanup time.Time

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// CommandLimiterStats are cumulative limiter counters.
type CommandLimiterStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
	Clients  int    `json:"clients"`
}

// NewCommandLimiter allows perSecond commands per client with the given burst.
// perSecond <= 0 disables limiting.
func NewCommandLimiter(perSecond float64, burst int) *CommandLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &CommandLimiter{
		visitors:    make(map[string]*visitor),
		rate:        limit,
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

func (cl *CommandLimiter) getVisitor(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	if now.Sub(cl.lastCleanup) > time.Minute {
		for k, v := range cl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(cl.visitors, k)
			}
		}
		cl.lastCleanup = now
	}

	v, ok := cl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(cl.rate, cl.burst)}
		cl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Allow reports whether a command from key may proceed.
func (cl *CommandLimiter) Allow(key string) bool {
	if cl.getVisitor(key).Allow() {
		cl.allowed.Add(1)
		return true
	}
	cl.rejected.Add(1)
	return false
}

func (cl *CommandLimiter) Stats() CommandLimiterStats {
	cl.mu.Lock()
	clients := len(cl.visitors)
	cl.mu.Unlock()
	return CommandLimiterStats{
		Allowed:  cl.allowed.Load(),
		Rejected: cl.rejected.Load(),
		Clients:  clients,
	}
}

// Middleware returns 429 Too Many Requests when a client exceeds its budget.
// RemoteAddr has already been rewritten by middleware.RealIP.
func (cl *CommandLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}

		if !cl.Allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
