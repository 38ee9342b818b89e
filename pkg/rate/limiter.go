package rate

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	idleLimiterTTL   = 10 * time.Minute
	sweepEveryAllows = 10_000
)

// Limiter decides whether an operation identified by key may proceed
type Limiter interface {
	Allow(key string) (bool, error)
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type localRateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	allows   uint64
}

// NewLocalRateLimiter returns an in memory Limiter allowing limit operations
// per second for each key, with a burst of the same size. Keys that have been
// idle for a while are forgotten.
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	return newLocalRateLimiter(limit, time.Now)
}

func newLocalRateLimiter(limit rate.Limit, now func() time.Time) *localRateLimiter {
	return &localRateLimiter{
		limit:    limit,
		burst:    int(math.Max(1, float64(limit))),
		now:      now,
		limiters: make(map[string]*keyedLimiter),
	}
}

// Allow implements Limiter.Allow
func (l *localRateLimiter) Allow(key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &keyedLimiter{
			limiter: rate.NewLimiter(l.limit, l.burst),
		}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	l.allows++
	if l.allows%sweepEveryAllows == 0 {
		l.sweep(now)
	}
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1), nil
}

func (l *localRateLimiter) sweep(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > idleLimiterTTL {
			delete(l.limiters, key)
		}
	}
}

// NoLimiter allows every operation
type NoLimiter struct{}

// Allow implements Limiter.Allow
func (*NoLimiter) Allow(_ string) (bool, error) {
	return true, nil
}
