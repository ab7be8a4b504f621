package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trifle/internal/auth"
)

const limiterStaleAfter = 10 * time.Minute

// identityRateLimiter keeps one token bucket per caller. Authenticated
// callers are keyed by email, anonymous ones by client IP.
type identityRateLimiter struct {
	mu            sync.Mutex
	entries       map[string]*limiterEntry
	limit         rate.Limit
	burst         int
	opCount       int
	cleanupEveryN int
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

func newIdentityRateLimiter(perSecond float64, burst int) *identityRateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &identityRateLimiter{
		entries:       make(map[string]*limiterEntry),
		limit:         rate.Limit(perSecond),
		burst:         burst,
		cleanupEveryN: 64,
	}
}

func (l *identityRateLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeenAt = now
	l.maybeCleanupLocked(now)
	return entry.limiter.AllowN(now, 1)
}

func (l *identityRateLimiter) maybeCleanupLocked(now time.Time) {
	l.opCount++
	if l.cleanupEveryN <= 0 {
		l.cleanupEveryN = 64
	}
	if l.opCount%l.cleanupEveryN != 0 {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeenAt) > limiterStaleAfter {
			delete(l.entries, key)
		}
	}
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.Allow(limiterKey(r), time.Now()) {
			s.writeErrorReq(w, r, http.StatusTooManyRequests, apiError{
				status:  http.StatusTooManyRequests,
				code:    "resource_exhausted",
				errCode: ErrCodeResourceExhausted,
				err:     fmt.Errorf("too many requests; retry later"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limiterKey(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id.Authenticated {
		return "email:" + id.Email
	}
	ip := requestClientIP(r)
	if ip == "" {
		ip = "<unknown>"
	}
	return "ip:" + ip
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
