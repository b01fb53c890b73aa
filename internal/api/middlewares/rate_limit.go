package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	// defaultMaxVisitors bounds the tracked addresses. When it is reached,
	// unseen addresses are refused until idle ones are swept.
	defaultMaxVisitors = 10000
	sweepInterval      = time.Minute
)

// LoginRateLimiter throttles credential submissions per client IP with a
// token bucket refilled at perMinute tokens a minute. The IP is taken from
// RemoteAddr, so proxy headers only count when a trusted middleware has
// already rewritten it.
type LoginRateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	every       rate.Limit
	burst       int
	idle        time.Duration
	maxVisitors int
	lastSweep   time.Time
	now         func() time.Time
	onLimit     http.Handler
}

// NewLoginRateLimiter returns nil when perMinute <= 0, which disables throttling.
func NewLoginRateLimiter(perMinute int, onLimit http.Handler) *LoginRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	burst := perMinute / 2
	if burst < 1 {
		burst = 1
	}
	return &LoginRateLimiter{
		visitors:    make(map[string]*visitor),
		every:       rate.Every(time.Minute / time.Duration(perMinute)),
		burst:       burst,
		idle:        10 * time.Minute,
		maxVisitors: defaultMaxVisitors,
		now:         time.Now,
		onLimit:     onLimit,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			if l.onLimit != nil {
				l.onLimit.ServeHTTP(w, r)
				return
			}
			http.Error(w, "too many login attempts", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweepLocked(now)
	}

	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= l.maxVisitors {
			l.sweepLocked(now)
			if len(l.visitors) >= l.maxVisitors {
				return false
			}
		}
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *LoginRateLimiter) sweepLocked(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, k)
		}
	}
	l.lastSweep = now
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
