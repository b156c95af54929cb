package proxy

import (
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// clientIdleTimeout is how long a client may stay silent before its
// limiter is dropped.
const clientIdleTimeout = 10 * time.Minute

// rateLimiter applies a per-client token bucket to the admin endpoints.
// Limiters for idle clients are pruned so the map stays bounded by the
// set of recently active clients.
type rateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

func (rl *rateLimiter) allow(client string) bool {
	now := time.Now()
	rl.mu.Lock()
	cl, ok := rl.clients[client]
	if !ok {
		rl.pruneLocked(now)
		cl = &clientLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()
	return cl.lim.Allow()
}

// pruneLocked drops limiters for clients idle past the timeout. Called
// with mu held, on the first sighting of a new client.
func (rl *rateLimiter) pruneLocked(now time.Time) {
	for client, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > clientIdleTimeout {
			delete(rl.clients, client)
		}
	}
}

// middleware rejects requests from clients that exceed their budget.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		client := clientIP(requ)
		if !rl.allow(client) {
			logrus.Warnf("Rate limit exceeded for %s on %s", client, requ.URL.Path)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, requ)
	})
}
