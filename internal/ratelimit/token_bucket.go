// Package ratelimit implements per-user token bucket limits on rewarded show
// requests.
//
// A bucket allows a burst up to its capacity and then refills at a constant
// rate, so a user can watch a few ads back to back but cannot farm rewards by
// hammering the show endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a thread-safe token bucket.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
	hitCount   int64
	totalCount int64
}

// NewTokenBucket creates a full bucket holding capacity tokens that refills
// refillRate tokens per second.
func NewTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: now,
	}
}

// Allow consumes one token if available at time now.
func (tb *TokenBucket) Allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++
	tb.refill(now)

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	tb.hitCount++
	return false
}

// Full reports whether the bucket has refilled completely at time now.
func (tb *TokenBucket) Full(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(now)
	return tb.tokens >= tb.capacity
}

// Stats returns the number of rejected and total requests.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed.Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
