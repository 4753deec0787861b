package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"cybertrainer/internal/observability"
)

const (
	defaultThrottleHits   = 10
	defaultThrottleWindow = time.Minute
	throttleSweepSize     = 5000
)

// LoginThrottle caps login requests per client IP in a sliding window. It sits
// in front of the per-account lockout and does not replace it.
type LoginThrottle struct {
	mu      sync.Mutex
	maxHits int
	window  time.Duration
	hits    map[string][]time.Time
	now     func() time.Time
}

func NewLoginThrottle(maxHits int, window time.Duration) *LoginThrottle {
	if maxHits <= 0 {
		maxHits = defaultThrottleHits
	}
	if window <= 0 {
		window = defaultThrottleWindow
	}

	return &LoginThrottle{
		maxHits: maxHits,
		window:  window,
		hits:    make(map[string][]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *LoginThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(observability.ClientIP(r))
		if !allowed {
			secs := int(retryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *LoginThrottle) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.recent(ip, now)

	if len(recent) >= l.maxHits {
		l.hits[ip] = recent
		return false, recent[0].Add(l.window).Sub(now)
	}

	l.hits[ip] = append(recent, now)
	if len(l.hits) > throttleSweepSize {
		l.sweepLocked(now)
	}
	return true, 0
}

// Sweep drops clients with no hits inside the window.
func (l *LoginThrottle) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *LoginThrottle) sweepLocked(now time.Time) int {
	removed := 0
	for ip := range l.hits {
		recent := l.recent(ip, now)
		if len(recent) == 0 {
			delete(l.hits, ip)
			removed++
			continue
		}
		l.hits[ip] = recent
	}
	return removed
}

func (l *LoginThrottle) recent(ip string, now time.Time) []time.Time {
	threshold := now.Add(-l.window)
	hits := l.hits[ip]
	kept := hits[:0]
	for _, hit := range hits {
		if hit.After(threshold) {
			kept = append(kept, hit)
		}
	}
	return kept
}
