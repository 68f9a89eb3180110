package core

import "time"

// RateLimitTier is one quota rule, e.g. 5 requests per 5s else a 10s lockout.
type RateLimitTier struct {
	MaxRequests    int `json:"max_requests"`
	PeriodSeconds  int `json:"period_seconds"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// RateLimitState is the server's live usage snapshot for one tier.
type RateLimitState struct {
	CurrentRequests  int `json:"current_requests"`
	PeriodSeconds    int `json:"period_seconds"`
	TimeoutRemaining int `json:"timeout_remaining"`
}

// RateLimitRule holds the tiers and states reported for one rule name.
// A nil slot marks an entry that failed to parse; positions stay aligned.
type RateLimitRule struct {
	Name   string            `json:"name"`
	Tiers  []*RateLimitTier  `json:"tiers"`
	States []*RateLimitState `json:"states"`
}

// BackoffState tracks rejection driven backoff for one limiter.
type BackoffState struct {
	ConsecutiveRejections int           `json:"consecutive_rejections"`
	BackoffUntil          time.Time     `json:"backoff_until"`
	Interval              time.Duration `json:"interval"`
}
