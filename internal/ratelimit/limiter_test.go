package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalLimiter_OnePerWindow(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLocalLimiter(TypingRule(time.Second), func() time.Time { return now })
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "alice"); !ok {
		t.Fatal("first event should be allowed")
	}
	now = now.Add(500 * time.Millisecond)
	if ok, _ := l.Allow(ctx, "alice"); ok {
		t.Fatal("second event inside the window should be throttled")
	}
	now = now.Add(500 * time.Millisecond)
	if ok, _ := l.Allow(ctx, "alice"); !ok {
		t.Fatal("event after the window should be allowed")
	}
}

func TestLocalLimiter_IdentifiersAreIndependent(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLocalLimiter(TypingRule(time.Second), func() time.Time { return now })
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "alice"); !ok {
		t.Fatal("alice should be allowed")
	}
	if ok, _ := l.Allow(ctx, "bob"); !ok {
		t.Fatal("bob should be allowed")
	}
}

func TestLocalLimiter_HigherLimit(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLocalLimiter(Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}, func() time.Time { return now })
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow(ctx, "x"); ok {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("expected 3 allowed, got %d", allowed)
	}
}

// newTestRedisLimiter requires a running Redis on localhost:6379.
func newTestRedisLimiter(t *testing.T, rule Rule) *RedisLimiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, rule.Key+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return NewRedisLimiter(client, rule)
}

func TestRedisLimiter_Allow(t *testing.T) {
	l := newTestRedisLimiter(t, TypingRule(2*time.Second))
	ctx := context.Background()
	id := "test_redis_allow"

	ok, err := l.Allow(ctx, id)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !ok {
		t.Fatal("first event should be allowed")
	}
	ok, _ = l.Allow(ctx, id)
	if ok {
		t.Fatal("second event should be throttled")
	}

	ttl, err := l.client.TTL(ctx, l.rule.Key+id).Result()
	if err != nil {
		t.Fatalf("TTL() error: %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("expected window expiry within 2s, got %v", ttl)
	}
}
