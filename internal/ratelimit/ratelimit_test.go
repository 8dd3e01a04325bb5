package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllow_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("unlimited limiter refused request %d: %v", i, err)
		}
	}
}

func TestAllow_BurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("request %d within burst refused: %v", i, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after burst, got %v", err)
	}
}

func TestAllow_UsersIndependent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("alice first request: %v", err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("alice should be limited")
	}
	if err := l.Allow("bob"); err != nil {
		t.Fatalf("bob must have a separate bucket: %v", err)
	}
}

func TestAllow_Refill(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 6000, BurstSize: 1})

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// 100 tokens/sec refill rate: backdate the bucket instead of sleeping.
	l.mu.Lock()
	l.users["alice"].lastFill = l.users["alice"].lastFill.Add(-time.Second)
	l.mu.Unlock()

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("bucket should have refilled: %v", err)
	}
}

func TestNewLimiter_BurstDefaultsToRate(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 5})
	if l.burst != 5 {
		t.Errorf("burst = %v, want 5", l.burst)
	}
}
