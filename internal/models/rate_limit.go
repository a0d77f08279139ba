package models

import "time"

// RateLimitRecord tracks requests from one caller IP in the current window.
type RateLimitRecord struct {
	Count        int       `json:"count"`
	LastReset    time.Time `json:"last_reset"`
	Blocked      bool      `json:"blocked"`
	BlockedUntil time.Time `json:"blocked_until"`
}
