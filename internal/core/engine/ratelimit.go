package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/tradelens/tradelens/internal/core"
)

const (
	rejectionIntervalFloor = 5 * time.Second
	backoffBase            = 5 * time.Second
	backoffCap             = 120 * time.Second
	rejectionGrowth        = 1.5
	successDecay           = 0.9
)

// AdaptiveRateLimiter paces requests against one endpoint class using the
// rate limit feedback the server returns on every response.
//
// Wait is serialized: one caller sleeps and issues at a time, so requests
// against the endpoint class leave in issuance order.
type AdaptiveRateLimiter struct {
	Policy          string
	DefaultInterval time.Duration
	Clock           func() time.Time
	Sleep           func(ctx context.Context, d time.Duration) error

	waitMu sync.Mutex

	mu           sync.Mutex
	serverPolicy string
	rules        []core.RateLimitRule
	backoff      core.BackoffState
	lastRequest  time.Time
}

// LimiterStatus is a point-in-time snapshot of a limiter.
type LimiterStatus struct {
	Policy                string               `json:"policy"`
	ServerPolicy          string               `json:"server_policy,omitempty"`
	Interval              time.Duration        `json:"interval"`
	DefaultInterval       time.Duration        `json:"default_interval"`
	ConsecutiveRejections int                  `json:"consecutive_rejections"`
	BackoffUntil          time.Time            `json:"backoff_until"`
	BackoffRemaining      time.Duration        `json:"backoff_remaining"`
	RateLimited           bool                 `json:"rate_limited"`
	LastRequest           time.Time            `json:"last_request"`
	Rules                 []core.RateLimitRule `json:"rules,omitempty"`
}

// NewAdaptiveRateLimiter builds a limiter whose interval never drops below defaultInterval.
func NewAdaptiveRateLimiter(policy string, defaultInterval time.Duration) *AdaptiveRateLimiter {
	if defaultInterval < 0 {
		defaultInterval = 0
	}
	return &AdaptiveRateLimiter{
		Policy:          policy,
		DefaultInterval: defaultInterval,
		backoff:         core.BackoffState{Interval: defaultInterval},
	}
}

// Wait blocks until it is safe to send the next request, then stamps the
// issuance time. A cancelled context returns its error without stamping.
func (l *AdaptiveRateLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.waitMu.Lock()
	defer l.waitMu.Unlock()

	// A rejection recorded while we slept can push the deadline out again.
	for {
		delay := l.pendingDelay()
		if delay <= 0 {
			break
		}
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.lastRequest = l.now()
	l.mu.Unlock()
	return nil
}

// ParseHeaders replaces the rate limit policy from response headers and
// recomputes the pacing interval. Malformed input leaves state untouched.
func (l *AdaptiveRateLimiter) ParseHeaders(header map[string][]string) {
	if l == nil {
		return
	}

	serverPolicy, rules, ok := parseRateLimitHeaders(header)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if serverPolicy != "" {
		l.serverPolicy = serverPolicy
	}
	l.rules = rules
	l.recomputeLocked()
}

// Handle429 records a quota rejection and returns how long to back off.
func (l *AdaptiveRateLimiter) Handle429(retryAfter time.Duration) time.Duration {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.backoff.ConsecutiveRejections++
	wait := retryAfter
	if wait <= 0 {
		wait = exponentialBackoff(l.backoff.ConsecutiveRejections)
	}

	until := l.now().Add(wait)
	if until.After(l.backoff.BackoffUntil) {
		l.backoff.BackoffUntil = until
	}

	grown := time.Duration(float64(l.backoff.Interval) * rejectionGrowth)
	if grown < rejectionIntervalFloor {
		grown = rejectionIntervalFloor
	}
	if grown > l.backoff.Interval {
		l.backoff.Interval = grown
	}
	return wait
}

// HandleSuccess resets the rejection counter and relaxes the interval
// toward the default.
func (l *AdaptiveRateLimiter) HandleSuccess() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.backoff.ConsecutiveRejections = 0
	relaxed := time.Duration(float64(l.backoff.Interval) * successDecay)
	if relaxed < l.DefaultInterval {
		relaxed = l.DefaultInterval
	}
	if relaxed < l.backoff.Interval {
		l.backoff.Interval = relaxed
	}
}

// Interval returns the current working interval.
func (l *AdaptiveRateLimiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff.Interval
}

// Backoff returns a copy of the backoff state.
func (l *AdaptiveRateLimiter) Backoff() core.BackoffState {
	if l == nil {
		return core.BackoffState{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Status returns a snapshot suitable for display.
func (l *AdaptiveRateLimiter) Status() LimiterStatus {
	if l == nil {
		return LimiterStatus{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	status := LimiterStatus{
		Policy:                l.Policy,
		ServerPolicy:          l.serverPolicy,
		Interval:              l.backoff.Interval,
		DefaultInterval:       l.DefaultInterval,
		ConsecutiveRejections: l.backoff.ConsecutiveRejections,
		BackoffUntil:          l.backoff.BackoffUntil,
		LastRequest:           l.lastRequest,
		Rules:                 cloneRules(l.rules),
	}
	if l.backoff.BackoffUntil.After(now) {
		status.RateLimited = true
		status.BackoffRemaining = l.backoff.BackoffUntil.Sub(now)
	}
	return status
}

func (l *AdaptiveRateLimiter) pendingDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var delay time.Duration
	if l.backoff.BackoffUntil.After(now) {
		delay += l.backoff.BackoffUntil.Sub(now)
	}
	if !l.lastRequest.IsZero() {
		if elapsed := now.Sub(l.lastRequest); elapsed < l.backoff.Interval {
			delay += l.backoff.Interval - elapsed
		}
	}
	return delay
}

func (l *AdaptiveRateLimiter) recomputeLocked() {
	interval := l.DefaultInterval
	for _, rule := range l.rules {
		for i := 0; i < len(rule.Tiers) && i < len(rule.States); i++ {
			if candidate := safeInterval(rule.Tiers[i], rule.States[i]); candidate > interval {
				interval = candidate
			}
		}
	}
	l.backoff.Interval = interval
}

func (l *AdaptiveRateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (l *AdaptiveRateLimiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

// safeInterval returns the pacing one tier demands given its live state.
func safeInterval(tier *core.RateLimitTier, state *core.RateLimitState) time.Duration {
	if tier == nil || state == nil || tier.MaxRequests <= 0 {
		return 0
	}
	if state.TimeoutRemaining > 0 {
		return seconds(float64(state.TimeoutRemaining))
	}

	usage := float64(state.CurrentRequests) / float64(tier.MaxRequests)
	period := float64(tier.PeriodSeconds)
	remaining := float64(tier.MaxRequests - state.CurrentRequests)

	switch {
	case usage > 0.8:
		if remaining <= 0 {
			return seconds(rejectionGrowth * period)
		}
		return seconds(rejectionGrowth * period / remaining)
	case usage > 0.5:
		return seconds(period / remaining)
	default:
		return 0
	}
}

func exponentialBackoff(rejections int) time.Duration {
	if rejections < 1 {
		rejections = 1
	}
	wait := float64(backoffBase) * math.Pow(2, float64(rejections-1))
	if wait > float64(backoffCap) {
		return backoffCap
	}
	return time.Duration(wait)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func cloneRules(rules []core.RateLimitRule) []core.RateLimitRule {
	if len(rules) == 0 {
		return nil
	}
	out := make([]core.RateLimitRule, len(rules))
	for i, rule := range rules {
		out[i] = core.RateLimitRule{
			Name:   rule.Name,
			Tiers:  append([]*core.RateLimitTier(nil), rule.Tiers...),
			States: append([]*core.RateLimitState(nil), rule.States...),
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
