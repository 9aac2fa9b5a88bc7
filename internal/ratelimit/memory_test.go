package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func closeLimiter(t *testing.T, m *MemoryLimiter) {
	t.Helper()
	if err := m.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestMemoryLimiterAllowsBurst(t *testing.T) {
	m := NewMemoryLimiter(10, 5) // 10 rps, burst 5
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := m.Allow(ctx, "user:3f2c")
		if err != nil {
			t.Fatalf("Allow returned error on request %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d within burst must be allowed", i)
		}
	}
}

func TestMemoryLimiterDeniesPastBurst(t *testing.T) {
	m := NewMemoryLimiter(10, 3)
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow(ctx, "user:3f2c"); !ok {
			t.Fatalf("request %d within burst must be allowed", i)
		}
	}

	ok, err := m.Allow(ctx, "user:3f2c")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if ok {
		t.Fatal("request past an exhausted burst must be denied")
	}
}

func TestMemoryLimiterRefill(t *testing.T) {
	// 1000 rps refills one token per millisecond, so a short pause after
	// exhausting burst=2 frees at least one token.
	m := NewMemoryLimiter(1000, 2)
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = m.Allow(ctx, "user:3f2c")
	}
	if ok, _ := m.Allow(ctx, "user:3f2c"); ok {
		t.Fatal("exhausted bucket must deny before any refill")
	}

	time.Sleep(5 * time.Millisecond)

	ok, err := m.Allow(ctx, "user:3f2c")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if !ok {
		t.Fatal("refilled bucket must allow again")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(10, 1)
	defer closeLimiter(t, m)

	ctx := context.Background()
	if ok, _ := m.Allow(ctx, "user:aa11"); !ok {
		t.Fatal("first request for user:aa11 must be allowed")
	}
	if ok, _ := m.Allow(ctx, "user:aa11"); ok {
		t.Fatal("second request for user:aa11 must be denied")
	}

	// The auth endpoint keys by IP; its bucket does not share tokens with
	// any user bucket.
	if ok, _ := m.Allow(ctx, "auth:203.0.113.9"); !ok {
		t.Fatal("auth:203.0.113.9 must get its own bucket")
	}
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	m := NewMemoryLimiter(100, 50)
	defer closeLimiter(t, m)

	ctx := context.Background()
	var wg sync.WaitGroup
	allowed := make([]int, 10)

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(ctx, "user:shared")
				if err != nil {
					t.Errorf("goroutine %d: Allow error: %v", idx, err)
					return
				}
				if ok {
					allowed[idx]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, c := range allowed {
		total += c
	}
	if total < 1 || total > 50 {
		t.Fatalf("100 concurrent requests against burst 50: got %d allowed", total)
	}
}

func TestMemoryLimiterEvictsIdle(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	defer closeLimiter(t, m)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "user:idle")

	m.mu.Lock()
	m.buckets["user:idle"].seen = time.Now().Add(-15 * time.Minute)
	m.mu.Unlock()

	m.evictIdle()

	m.mu.Lock()
	_, exists := m.buckets["user:idle"]
	m.mu.Unlock()

	if exists {
		t.Fatal("idle bucket must be evicted")
	}
}

func TestMemoryLimiterRefillCapsAtBurst(t *testing.T) {
	m := NewMemoryLimiter(1000, 3)
	defer closeLimiter(t, m)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "user:3f2c")

	// A long idle period must not accumulate more than the burst capacity.
	m.mu.Lock()
	m.buckets["user:3f2c"].seen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow(ctx, "user:3f2c"); !ok {
			t.Fatalf("request %d after idle must be allowed", i)
		}
	}
	if ok, _ := m.Allow(ctx, "user:3f2c"); ok {
		t.Fatal("tokens past the burst capacity must not accumulate")
	}
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "anything")
		if err != nil {
			t.Fatalf("NoopLimiter.Allow error: %v", err)
		}
		if !ok {
			t.Fatal("NoopLimiter must always allow")
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("NoopLimiter.Close error: %v", err)
	}
}
