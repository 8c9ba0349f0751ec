package ratelimit

import "github.com/inkwell-app/inkwell/internal/config"

// ResolveLimit picks the free or subscribed limit. A zero limit disables limiting for that tier.
func ResolveLimit(cfg config.RateLimitConfig, subscribed bool) Decision {
	limit, tier := cfg.FreeLimit, TierFree
	if subscribed {
		limit, tier = cfg.SubscribedLimit, TierSubscribed
	}
	if limit <= 0 {
		return Decision{}
	}
	return Decision{Limit: limit, Window: cfg.Window, Tier: tier}
}
