package ratelimit

import "strings"

// KeyForUser builds the limiter key for a user. Empty when no limit applies.
func KeyForUser(userID string, decision Decision) string {
	userID = strings.TrimSpace(userID)
	if userID == "" || decision.Limit <= 0 || decision.Tier == TierNone {
		return ""
	}
	return "u:" + userID
}
