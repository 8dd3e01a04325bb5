// Package ratelimit bounds how fast each user can hit the gateway.
// Prompt analysis burns LLM quota and executions call live third-party
// APIs, so limits are per user, never global.
//
// Buckets refill lazily inside Allow; no background goroutine.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when the user's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config sets the refill rate and burst capacity.
type Config struct {
	RequestsPerMinute int // Refill rate. 0 disables limiting entirely.
	BurstSize         int // Bucket capacity. 0 falls back to RequestsPerMinute.
}

// Limiter hands out request tokens from one bucket per user, so a
// runaway client cannot starve anyone else's quota.
type Limiter struct {
	mu    sync.Mutex
	users map[string]*bucket
	rate  float64 // tokens per second
	burst float64
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// refill credits tokens for the time since the last fill, capped at
// burst.
func (b *bucket) refill(now time.Time, rate, burst float64) {
	b.tokens += now.Sub(b.lastFill).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastFill = now
}

// NewLimiter creates a limiter from cfg. A zero RequestsPerMinute
// makes Allow always succeed.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		users: make(map[string]*bucket),
		rate:  float64(cfg.RequestsPerMinute) / 60.0,
		burst: float64(burst),
	}
}

// Allow consumes one token from the user's bucket, creating a full
// bucket on first sight. Empty buckets return ErrRateLimited.
func (l *Limiter) Allow(userID string) error {
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.users[userID]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.users[userID] = b
	}
	b.refill(now, l.rate, l.burst)

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}
