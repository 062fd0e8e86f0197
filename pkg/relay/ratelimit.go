package relay

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyedLimiter applies a token bucket per key (a client IP) and
// periodically evicts idle entries.
type keyedLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*limiterEntry
	hits  uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newKeyedLimiter returns nil, which allows everything, when rps or burst is
// not positive.
func newKeyedLimiter(rps float64, burst int, idleTTL time.Duration) *keyedLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &keyedLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*limiterEntry),
	}
}

// Allow reports whether one attempt for key is allowed at now.
func (l *keyedLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		l.evictLocked(now)
	}

	return allowed
}

func (l *keyedLimiter) evictLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, v := range l.byKey {
		if v.lastSeen.Before(cutoff) {
			delete(l.byKey, k)
		}
	}
}

// Len returns the number of tracked keys.
func (l *keyedLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}
