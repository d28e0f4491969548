package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func stopCleanup(tb *TokenBucket) {
	tb.Stop()
}

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(60, 5, 5*time.Minute)
	defer stopCleanup(tb)

	key := "test-user"
	for i := 0; i < 5; i++ {
		if !tb.Allow(key) {
			t.Errorf("request %d should be allowed (burst)", i+1)
		}
	}
	if tb.Allow(key) {
		t.Error("request should be denied after burst exhausted")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(60, 3, 5*time.Minute) // 1 token/sec
	defer stopCleanup(tb)

	key := "test-refill"
	for i := 0; i < 3; i++ {
		tb.Allow(key)
	}
	if tb.Allow(key) {
		t.Error("request should be denied (no tokens)")
	}

	time.Sleep(1100 * time.Millisecond)

	if !tb.Allow(key) {
		t.Error("request should be allowed after refill")
	}
	if tb.Allow(key) {
		t.Error("request should be denied after consuming refilled token")
	}
}

func TestTokenBucketConcurrency(t *testing.T) {
	tb := NewTokenBucket(600, 100, 5*time.Minute)
	defer stopCleanup(tb)

	key := "test-concurrent"
	concurrency := 50
	requestsPerGoroutine := 2

	var wg sync.WaitGroup
	allowed := make(chan bool, concurrency*requestsPerGoroutine)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < requestsPerGoroutine; j++ {
				allowed <- tb.Allow(key)
			}
		}()
	}
	wg.Wait()
	close(allowed)

	allowedCount := 0
	for a := range allowed {
		if a {
			allowedCount++
		}
	}
	if allowedCount != 100 {
		t.Errorf("expected exactly 100 allowed requests, got %d", allowedCount)
	}
}

func TestTokenBucketGetRemaining(t *testing.T) {
	tb := NewTokenBucket(60, 10, 5*time.Minute)
	defer stopCleanup(tb)

	key := "test-remaining"
	if remaining := tb.GetRemaining(key); remaining != 10 {
		t.Errorf("expected 10 remaining tokens, got %d", remaining)
	}

	for i := 0; i < 3; i++ {
		tb.Allow(key)
	}
	if remaining := tb.GetRemaining(key); remaining != 7 {
		t.Errorf("expected 7 remaining tokens, got %d", remaining)
	}
}

func TestTokenBucketResetTime(t *testing.T) {
	tb := NewTokenBucket(60, 5, 5*time.Minute) // 1 token/sec
	defer stopCleanup(tb)

	key := "test-reset"
	for i := 0; i < 5; i++ {
		tb.Allow(key)
	}

	resetTime := tb.GetResetTime(key)
	now := time.Now().Unix()
	diff := resetTime - now
	if diff < 4 || diff > 6 {
		t.Errorf("expected reset time ~5 seconds from now, got %d", diff)
	}
}

func TestTokenBucketAllowN(t *testing.T) {
	tb := NewTokenBucket(60, 10, 5*time.Minute)
	defer stopCleanup(tb)

	key := "test-allowN"
	if !tb.AllowN(key, 5) {
		t.Error("should allow consuming 5 tokens")
	}
	if remaining := tb.GetRemaining(key); remaining != 5 {
		t.Errorf("expected 5 remaining tokens, got %d", remaining)
	}
	if !tb.AllowN(key, 5) {
		t.Error("should allow consuming remaining 5 tokens")
	}
	if tb.AllowN(key, 1) {
		t.Error("should not allow consuming tokens when empty")
	}
}

func TestTokenBucketMultipleKeys(t *testing.T) {
	tb := NewTokenBucket(60, 5, 5*time.Minute)
	defer stopCleanup(tb)

	key1, key2 := "user1", "user2"
	for i := 0; i < 5; i++ {
		tb.Allow(key1)
	}
	if tb.Allow(key1) {
		t.Error("key1 should be denied")
	}
	if !tb.Allow(key2) {
		t.Error("key2 should be allowed (separate bucket)")
	}
}

func TestTokenBucketCleanup(t *testing.T) {
	tb := NewTokenBucket(60, 5, 100*time.Millisecond)
	defer stopCleanup(tb)

	key := "test-cleanup"
	tb.Allow(key)

	if _, exists := tb.buckets.Load(key); !exists {
		t.Error("bucket should exist after use")
	}

	time.Sleep(250 * time.Millisecond)

	if _, exists := tb.buckets.Load(key); exists {
		t.Error("bucket should be cleaned up after TTL")
	}
}

func BenchmarkTokenBucketAllow(b *testing.B) {
	tb := NewTokenBucket(6000, 1000, 5*time.Minute)
	defer stopCleanup(tb)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tb.Allow("benchmark-user")
	}
}

func BenchmarkTokenBucketConcurrent(b *testing.B) {
	tb := NewTokenBucket(60000, 10000, 5*time.Minute)
	defer stopCleanup(tb)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tb.Allow("benchmark-concurrent")
		}
	})
}
