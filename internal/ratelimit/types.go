package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Tier is the entitlement level a limit was resolved for.
type Tier int

const (
	TierNone Tier = iota
	TierFree
	TierSubscribed
)

// Decision describes the resolved limit for one caller.
type Decision struct {
	Limit  int
	Window time.Duration
	Tier   Tier
}

// windowStart returns the start of the fixed window containing now, in unix nanoseconds.
func windowStart(now time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = time.Second
	}
	n := now.UnixNano()
	return n - n%int64(window)
}
