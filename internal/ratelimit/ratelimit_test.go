package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 5, 0, time.UTC)

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "u:1", 2, time.Minute, now)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i, res.Allowed, err)
		}
	}
	res, _ := limiter.Allow(ctx, "u:1", 2, time.Minute, now.Add(30*time.Second))
	if res.Allowed {
		t.Fatalf("third request in window should be blocked")
	}
	if want := time.Date(2025, 1, 1, 10, 1, 0, 0, time.UTC); !res.Reset.Equal(want) {
		t.Fatalf("reset = %v, want %v", res.Reset, want)
	}
	if other, _ := limiter.Allow(ctx, "u:2", 2, time.Minute, now); !other.Allowed {
		t.Fatalf("keys must be independent")
	}

	next, _ := limiter.Allow(ctx, "u:1", 2, time.Minute, now.Add(time.Minute))
	if !next.Allowed || next.Remaining != 1 {
		t.Fatalf("next window: %+v", next)
	}
	if len(limiter.counters) != 1 {
		t.Fatalf("stale counters not swept: %d left", len(limiter.counters))
	}
}

func TestResolveLimitByTier(t *testing.T) {
	cfg := config.RateLimitConfig{FreeLimit: 2, SubscribedLimit: 20, Window: time.Minute}

	free := ResolveLimit(cfg, false)
	if free.Limit != 2 || free.Tier != TierFree || free.Window != time.Minute {
		t.Fatalf("free decision: %+v", free)
	}
	paid := ResolveLimit(cfg, true)
	if paid.Limit != 20 || paid.Tier != TierSubscribed {
		t.Fatalf("subscribed decision: %+v", paid)
	}
	cfg.SubscribedLimit = 0
	if off := ResolveLimit(cfg, true); off.Limit != 0 || KeyForUser("abc", off) != "" {
		t.Fatalf("zero limit must disable limiting: %+v", off)
	}
	if key := KeyForUser("abc", free); key != "u:abc" {
		t.Fatalf("key = %q", key)
	}
}

func TestManagerFallsBackToMemoryWhenRedisDown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	factoryCalls := 0
	manager := NewManager(config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"}, func() time.Time { return now }, func(options *redis.Options) *redis.Client {
		factoryCalls++
		options.DialTimeout = 50 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	})
	defer func() { _ = manager.Close() }()

	decision := Decision{Limit: 1, Window: time.Minute, Tier: TierFree}
	first, err := manager.Allow(context.Background(), "u:1", decision)
	if err != nil || !first.Allowed {
		t.Fatalf("first: allowed=%v err=%v", first.Allowed, err)
	}
	second, err := manager.Allow(context.Background(), "u:1", decision)
	if err != nil || second.Allowed {
		t.Fatalf("second should be blocked by memory limiter: allowed=%v err=%v", second.Allowed, err)
	}
	if factoryCalls != 1 {
		t.Fatalf("breaker should prevent reconnect attempts, factory called %d times", factoryCalls)
	}
}

func TestManagerDisabledLimit(t *testing.T) {
	manager := NewManager(config.RedisConfig{}, nil, nil)
	for i := 0; i < 5; i++ {
		res, err := manager.Allow(context.Background(), "", Decision{})
		if err != nil || !res.Allowed {
			t.Fatalf("disabled limit must allow")
		}
	}
}
