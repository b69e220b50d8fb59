package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ipRateLimiter caps how often a single client IP may pass through a
// guarded endpoint within a sliding window. It guards only the
// run-creation route; everything else is unthrottled.
type ipRateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	seen      map[string][]time.Time
	now       func() time.Time
	lastSweep time.Time
}

func newIPRateLimiter(limit int, window time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		limit:  limit,
		window: window,
		seen:   map[string][]time.Time{},
		now:    time.Now,
	}
}

// allow records one hit for ip and reports whether it is within limit.
// A zero limit disables the limiter.
func (l *ipRateLimiter) allow(ip string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweepStale(cutoff)
		l.lastSweep = now
	}
	kept := l.seen[ip][:0]
	for _, t := range l.seen[ip] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.seen[ip] = kept
		return false
	}
	l.seen[ip] = append(kept, now)
	return true
}

// sweepStale drops IPs with no hit inside the window, so addresses
// that never come back do not accumulate. Caller holds the lock; runs
// at most once per window.
func (l *ipRateLimiter) sweepStale(cutoff time.Time) {
	for ip, hits := range l.seen {
		alive := false
		for _, t := range hits {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(l.seen, ip)
		}
	}
}

// middleware rejects over-limit requests with 429.
func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.allow(ip) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Detail: "too many pipeline runs created from this address, try again later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
