package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

/*
PER-CLIENT LIMITING

One token bucket per client IP (golang.org/x/time/rate).
Idle buckets are evicted so the map cannot grow without bound.

Unparseable remote addresses share a single small fallback bucket:
never unlimited.
*/

const (
	FallbackPerSecond = 1
	FallbackBurst     = 2

	// idleTTL is how long a bucket survives without traffic.
	idleTTL = 10 * time.Minute
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	mu    sync.Mutex
	clock Clock

	perSecond rate.Limit
	burst     int

	clients   map[string]*client
	fallback  *rate.Limiter
	lastSweep time.Time
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		clock:     realClock{},
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		clients:   make(map[string]*client),
		fallback:  rate.NewLimiter(FallbackPerSecond, FallbackBurst),
	}
}

// SetClock is used only for tests.
func (l *Limiter) SetClock(c Clock) {
	l.clock = c
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow reports whether one more request from remoteAddr may pass now.
func (l *Limiter) Allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	ip := extractIP(remoteAddr)
	if ip == "" {
		return l.fallback.AllowN(now, 1)
	}

	l.sweep(now)

	c := l.clients[ip]
	if c == nil {
		c = &client{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now

	return c.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked client buckets.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleTTL {
		return
	}
	l.lastSweep = now

	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > idleTTL {
			delete(l.clients, ip)
		}
	}
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// chi's RealIP middleware may leave a bare address.
		if ip := net.ParseIP(remoteAddr); ip != nil {
			return ip.String()
		}
		return ""
	}
	return host
}
