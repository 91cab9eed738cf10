// ABOUTME: Per-key token bucket limiter for the sign-in endpoints
// ABOUTME: Keys are wallet addresses or remote hosts; idle buckets are evicted periodically

package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// evictEvery is how many Allow calls pass between idle sweeps.
const evictEvery = 512

// DefaultIdleTTL is used when New is given a non-positive idle TTL.
const DefaultIdleTTL = 10 * time.Minute

// Limiter applies a token bucket per key. A nil *Limiter allows everything.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	hits    uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns a limiter refilling perMinute tokens per minute up to burst.
// It returns nil, meaning unlimited, when either value is not positive.
func New(perMinute float64, burst int, idleTTL time.Duration) *Limiter {
	if perMinute <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Limiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether key may spend one token at now.
// Keys are compared exactly after trimming spaces; empty keys are never limited.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%evictEvery == 0 {
		l.evictLocked(now)
	}
	return allowed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) evictLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}
