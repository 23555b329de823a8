package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the per-address limiter table; when it fills the
// table starts over.
const maxTrackedClients = 10000

// loginLimiter throttles login attempts per client address.
type loginLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

func newLoginLimiter(perMinute float64, burst int) *loginLimiter {
	l := &loginLimiter{limit: rate.Inf, burst: burst, clients: map[string]*rate.Limiter{}}
	if perMinute > 0 {
		l.limit = rate.Limit(perMinute / 60)
	}
	if l.burst <= 0 {
		l.burst = 1
	}
	return l
}

func (l *loginLimiter) allow(r *http.Request) bool {
	if l.limit == rate.Inf {
		return true
	}
	key := clientAddr(r)
	l.mu.Lock()
	lim, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.clients = map[string]*rate.Limiter{}
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
