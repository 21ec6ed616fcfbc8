package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickwarner/admediation/internal/observability"
)

// Config holds the show rate limit settings.
type Config struct {
	Capacity   int     // burst allowance per user
	RefillRate float64 // shows per second regained
	Enabled    bool
}

// UserLimiter keeps one token bucket per user, created lazily.
//
// Anonymous requests (empty user ID) share a single bucket.
type UserLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// NewUserLimiter creates a limiter with the given configuration.
func NewUserLimiter(config Config, metrics observability.MetricsRegistry) *UserLimiter {
	return &UserLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether a show request for userID may proceed.
// A disabled limiter always allows.
func (l *UserLimiter) Allow(userID string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}
	now := l.now()

	l.mu.RLock()
	bucket, ok := l.buckets[userID]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		bucket, ok = l.buckets[userID]
		if !ok {
			bucket = NewTokenBucket(l.config.Capacity, l.config.RefillRate, now)
			l.buckets[userID] = bucket
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow(now)
	if !allowed {
		l.metrics.IncrementShowRequests("rate_limited")
	}
	return allowed
}

// Prune drops buckets that have refilled completely and returns how many
// were removed. Callers run it periodically to bound memory.
func (l *UserLimiter) Prune() int {
	if l == nil {
		return 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, b := range l.buckets {
		if b.Full(now) {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// StatsFor returns rate limiting activity for userID. ok is false when the
// user has no bucket, either because it never sent a request or because the
// bucket was pruned.
func (l *UserLimiter) StatsFor(userID string) (Stats, bool) {
	if l == nil {
		return Stats{}, false
	}
	l.mu.RLock()
	bucket, ok := l.buckets[userID]
	l.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	hits, total := bucket.Stats()
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{UserID: userID, Hits: hits, Total: total, HitRate: hitRate}, true
}

// Stats describes rate limiting activity for one user.
type Stats struct {
	UserID  string  `json:"user_id"`
	Hits    int64   `json:"hits"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
}

func (s Stats) String() string {
	return fmt.Sprintf("user %q: %d/%d limited (%.2f%%)", s.UserID, s.Hits, s.Total, s.HitRate*100)
}
