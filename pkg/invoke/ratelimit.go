package invoke

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// mapLimiter applies a token bucket per client key and evicts idle entries.
type mapLimiter struct {
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

// newMapLimiter returns nil when rate limiting is disabled.
func newMapLimiter(rps float64, burst int) *mapLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &mapLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		byKey:   make(map[string]*limiterEntry),
	}
}

// allow reports whether one token can be consumed for the key at now.
// A nil limiter allows everything.
func (l *mapLimiter) allow(key string, now time.Time) bool {
	if l == nil || key == "" {
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

	l.hits++
	if l.hits%1024 == 0 {
		l.evictIdle(now)
	}
	return e.limiter.AllowN(now, 1)
}

func (l *mapLimiter) evictIdle(now time.Time) {
	for k, e := range l.byKey {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.byKey, k)
		}
	}
}
