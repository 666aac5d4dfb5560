// Package ratelimiter bounds how often a single peer device can trigger
// expensive or probe-prone operations, such as unwrap attempts against
// envelopes it keeps re-sending.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptLimiter applies a token bucket per peer fingerprint and evicts idle
// entries so an envelope-spraying peer cannot grow the map unbounded.
type AttemptLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*bucket
	hits  uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns nil for non-positive args; a nil limiter allows everything.
func New(rps float64, burst int, idleTTL time.Duration) *AttemptLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &AttemptLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*bucket),
	}
}

// Allow reports whether one attempt may proceed for the key at now.
func (l *AttemptLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%256 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}
