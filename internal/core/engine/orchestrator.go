package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/core/cache"
	"github.com/tradelens/tradelens/internal/core/planner"
)

const (
	// DefaultMaxRetries is how many extra attempts a quota-rejected tier gets.
	DefaultMaxRetries = 2
	// DefaultEarlyStopCount is the tier total that ends a search.
	DefaultEarlyStopCount = 5
	// DefaultCallTimeout bounds one remote call.
	DefaultCallTimeout = 15 * time.Second
	// FetchBatchSize is the number of result IDs fetched per call.
	FetchBatchSize = 10

	endpointSearch = "search"
	endpointFetch  = "fetch"
)

// DefaultFetchLimits caps how many result IDs are fetched per tier.
var DefaultFetchLimits = map[int]int{
	planner.TierExact:   10,
	planner.TierSimilar: 10,
	planner.TierCore:    10,
	planner.TierBase:    15,
}

// NoListingsMessage is the session error when no tier and no auxiliary
// source produced data.
const NoListingsMessage = "No listings found in any tier"

// Transport performs remote trade calls. Failures are reported through the
// response outcome, never as Go errors.
type Transport interface {
	Search(ctx context.Context, query core.TradeQuery) *core.SearchResponse
	Fetch(ctx context.Context, queryID string, ids []string) *core.FetchResponse
}

// AuxSource prices items whose identity alone is enough.
type AuxSource interface {
	Supports(criteria core.SearchCriteria) bool
	Price(ctx context.Context, criteria core.SearchCriteria) (*core.AuxPrice, error)
}

// Converter normalizes listing prices into chaos.
type Converter interface {
	ToChaos(amount float64, currency string) float64
}

// Logger is the structured logger the orchestrator writes to.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Metrics receives search telemetry.
type Metrics interface {
	CacheLookup(hit bool)
	RemoteCall(endpoint string, outcome core.OutcomeKind)
	LimiterBackoff(endpoint string, wait time.Duration)
	LimiterInterval(endpoint string, interval time.Duration)
	SearchCompleted(result *core.SearchResult, elapsed time.Duration)
}

// Orchestrator runs tiered searches against the trade API.
//
// MaxRetries of zero means DefaultMaxRetries; a negative value disables
// retries. EarlyStopCount and CallTimeout fall back to their defaults when
// not positive.
type Orchestrator struct {
	SearchLimiter  *AdaptiveRateLimiter
	FetchLimiter   *AdaptiveRateLimiter
	Cache          *cache.ResultCache
	Planner        *planner.Planner
	Transport      Transport
	Aux            AuxSource
	Converter      Converter
	Logger         Logger
	Metrics        Metrics
	MaxRetries     int
	EarlyStopCount int
	FetchLimits    map[int]int
	CallTimeout    time.Duration
	Clock          func() time.Time
	Sleep          func(ctx context.Context, d time.Duration) error

	flight singleflight.Group
}

// Search prices an item. It never returns nil and never panics; failures
// are reported on the result.
func (o *Orchestrator) Search(ctx context.Context, criteria core.SearchCriteria) *core.SearchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if o == nil || o.Transport == nil {
		return o.failed(criteria, core.ReasonInternal, "search orchestrator is not configured")
	}
	if err := validateCriteria(criteria); err != nil {
		return o.failed(criteria, core.ReasonInvalidCriteria, err.Error())
	}

	key := cache.KeyFor(criteria)
	if cached, ok := o.Cache.Get(key); ok {
		o.recordCacheLookup(true)
		cached.FromCache = true
		o.logger().Debug("search served from cache",
			zap.String("item", cached.Item),
			zap.String("session_id", cached.SessionID))
		return cached
	}
	o.recordCacheLookup(false)

	value, _, shared := o.flight.Do(key, func() (any, error) {
		return o.run(ctx, criteria, key), nil
	})
	result := value.(*core.SearchResult)
	if !shared {
		return result
	}
	if result.Reason == core.ReasonCancelled && ctx.Err() == nil {
		// the flight was cut short by another caller's context
		o.logger().Debug("collapsed search was cancelled by its leader; searching again",
			zap.String("session_id", result.SessionID))
		return o.Search(ctx, criteria)
	}
	return result.Clone()
}

func (o *Orchestrator) run(ctx context.Context, criteria core.SearchCriteria, key string) (result *core.SearchResult) {
	result = &core.SearchResult{
		SessionID:     uuid.NewString(),
		Item:          criteria.DisplayName(),
		Rarity:        criteria.Rarity,
		StoppedAtTier: -1,
		StartedAt:     o.now(),
		Tiers:         []core.TierResult{},
	}
	log := o.logger()

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Reason = core.ReasonInternal
			result.Error = fmt.Sprintf("search failed: %v", r)
			log.Warn("search panicked", zap.String("session_id", result.SessionID), zap.Any("panic", r))
		}
		result.CompletedAt = o.now()
		if o.Metrics != nil {
			o.Metrics.SearchCompleted(result, result.CompletedAt.Sub(result.StartedAt))
		}
	}()

	log.Info("search started",
		zap.String("session_id", result.SessionID),
		zap.String("item", result.Item),
		zap.String("rarity", string(criteria.Rarity)),
		zap.Int("modifiers", len(criteria.EnabledModifiers())))

	o.consultAux(ctx, criteria, result)

	plans := o.planner()
	earlyStop := o.earlyStopCount()
	cancelled := false
	for _, tier := range planner.Tiers() {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if ok, why := plans.Applicable(criteria, tier); !ok {
			result.SkippedTiers = append(result.SkippedTiers, tier)
			log.Debug("tier skipped", zap.Int("tier", tier), zap.String("reason", why))
			continue
		}

		tierResult := o.runTier(ctx, plans, criteria, tier, result)
		result.Tiers = append(result.Tiers, tierResult)
		if !tierResult.Succeeded() {
			log.Warn("tier failed",
				zap.Int("tier", tier),
				zap.String("outcome", string(tierResult.Outcome)),
				zap.String("error", tierResult.Error))
			continue
		}

		result.StoppedAtTier = tier
		log.Info("tier completed",
			zap.Int("tier", tier),
			zap.String("label", tierResult.Label),
			zap.Int("total", tierResult.Total),
			zap.Int("fetched", tierResult.Fetched))
		if tierResult.Total >= earlyStop {
			break
		}
	}
	if ctx.Err() != nil {
		cancelled = true
	}

	result.Success = result.StoppedAtTier >= 0 || result.AuxPrice != nil
	switch {
	case result.Success && cancelled:
		result.Reason = core.ReasonCancelled
	case result.Success:
		result.Reason = core.ReasonOK
	case cancelled:
		result.Reason = core.ReasonCancelled
		result.Error = fmt.Sprintf("search cancelled: %v", ctx.Err())
	default:
		result.Reason = core.ReasonNoResults
		result.Error = NoListingsMessage
	}

	// Partial sessions cut short by cancellation are not cached.
	if result.Success && !cancelled {
		o.Cache.Put(key, result)
	}

	log.Info("search finished",
		zap.String("session_id", result.SessionID),
		zap.Bool("success", result.Success),
		zap.String("reason", result.Reason),
		zap.Int("stopped_at_tier", result.StoppedAtTier),
		zap.Int("remote_calls", result.TotalRemoteCalls))
	return result
}

func (o *Orchestrator) consultAux(ctx context.Context, criteria core.SearchCriteria, result *core.SearchResult) {
	if o.Aux == nil || !o.Aux.Supports(criteria) {
		return
	}
	price, err := o.Aux.Price(ctx, criteria)
	if err != nil {
		o.logger().Warn("auxiliary price lookup failed", zap.String("item", result.Item), zap.Error(err))
		return
	}
	result.AuxPrice = price
}

func (o *Orchestrator) runTier(ctx context.Context, plans *planner.Planner, criteria core.SearchCriteria, tier int, session *core.SearchResult) core.TierResult {
	plan, err := plans.Build(criteria, tier)
	if err != nil {
		return core.TierResult{Tier: tier, Outcome: core.OutcomeMalformedResponse, Error: err.Error(), Listings: []core.Listing{}}
	}

	tierResult := core.TierResult{
		Tier:        tier,
		Label:       plan.Descriptor.Label,
		Description: plan.Descriptor.Description,
		Listings:    []core.Listing{},
	}

	resp := o.search(ctx, plan.Query, &tierResult, session)
	tierResult.Outcome = resp.Kind
	if resp.Kind != core.OutcomeOK {
		tierResult.Error = resp.Message()
		return tierResult
	}
	tierResult.Total = resp.Total

	listings, icon := o.fetchListings(ctx, tier, resp.QueryID, resp.ResultIDs, session)
	tierResult.Listings = listings
	tierResult.Fetched = len(listings)
	if session.TradeIcon == "" {
		session.TradeIcon = icon
	}
	return tierResult
}

// search issues one tier query, retrying quota rejections.
func (o *Orchestrator) search(ctx context.Context, query core.TradeQuery, tierResult *core.TierResult, session *core.SearchResult) *core.SearchResponse {
	limiter := o.SearchLimiter
	maxRetries := o.maxRetries()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return &core.SearchResponse{Outcome: core.Outcome{Kind: core.OutcomeNetworkFailure, Err: err}}
		}

		tierResult.Attempts++
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout())
		resp := o.Transport.Search(callCtx, query)
		cancel()
		if resp == nil {
			resp = &core.SearchResponse{Outcome: core.Outcome{Kind: core.OutcomeMalformedResponse, Err: errors.New("empty search response")}}
		}
		session.TotalSearches++
		session.TotalRemoteCalls++
		o.recordRemoteCall(endpointSearch, resp.Kind)

		switch resp.Kind {
		case core.OutcomeOK:
			limiter.HandleSuccess()
			limiter.ParseHeaders(resp.Headers)
			o.recordInterval(endpointSearch, limiter)
			return resp
		case core.OutcomeQuotaRejected:
			wait := limiter.Handle429(resp.RetryAfter)
			o.recordBackoff(endpointSearch, wait)
			if tierResult.Attempts > maxRetries {
				o.logger().Warn("search rate limited, giving up on tier",
					zap.Int("tier", tierResult.Tier),
					zap.Int("attempts", tierResult.Attempts))
				return resp
			}
			o.logger().Warn("search rate limited, backing off",
				zap.Int("tier", tierResult.Tier),
				zap.Duration("wait", wait),
				zap.Int("attempt", tierResult.Attempts))
			if err := o.sleep(ctx, wait); err != nil {
				return resp
			}
		default:
			return resp
		}
	}
}

func (o *Orchestrator) fetchListings(ctx context.Context, tier int, queryID string, ids []string, session *core.SearchResult) ([]core.Listing, string) {
	limit := o.fetchLimit(tier)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	listings := make([]core.Listing, 0, len(ids))
	icon := ""
	for start := 0; start < len(ids); start += FetchBatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+FetchBatchSize, len(ids))
		resp := o.fetchBatch(ctx, queryID, ids[start:end], session)
		if resp == nil {
			break
		}
		if resp.Kind != core.OutcomeOK {
			o.logger().Warn("fetch batch skipped",
				zap.Int("tier", tier),
				zap.Int("batch_start", start),
				zap.String("outcome", string(resp.Kind)),
				zap.String("error", resp.Message()))
			continue
		}
		if icon == "" {
			icon = resp.Icon
		}
		listings = append(listings, resp.Listings...)
	}

	for i := range listings {
		listings[i].ChaosValue = o.toChaos(listings[i].Amount, listings[i].Currency)
	}
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].ChaosValue < listings[j].ChaosValue
	})
	return listings, icon
}

// fetchBatch fetches one batch, retrying once after a quota rejection. It
// returns nil when the context ends before a call could be made.
func (o *Orchestrator) fetchBatch(ctx context.Context, queryID string, ids []string, session *core.SearchResult) *core.FetchResponse {
	limiter := o.FetchLimiter
	var resp *core.FetchResponse

	for attempt := 1; attempt <= 2; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout())
		resp = o.Transport.Fetch(callCtx, queryID, ids)
		cancel()
		if resp == nil {
			resp = &core.FetchResponse{Outcome: core.Outcome{Kind: core.OutcomeMalformedResponse, Err: errors.New("empty fetch response")}}
		}
		session.TotalFetches++
		session.TotalRemoteCalls++
		o.recordRemoteCall(endpointFetch, resp.Kind)

		switch resp.Kind {
		case core.OutcomeOK:
			limiter.HandleSuccess()
			limiter.ParseHeaders(resp.Headers)
			o.recordInterval(endpointFetch, limiter)
			return resp
		case core.OutcomeQuotaRejected:
			wait := limiter.Handle429(resp.RetryAfter)
			o.recordBackoff(endpointFetch, wait)
			if attempt == 2 {
				return resp
			}
			if err := o.sleep(ctx, wait); err != nil {
				return resp
			}
		default:
			return resp
		}
	}
	return resp
}

func validateCriteria(criteria core.SearchCriteria) error {
	if criteria.Rarity.FixedIdentity() && strings.TrimSpace(criteria.Name) == "" {
		return fmt.Errorf("%s items need a name", criteria.Rarity)
	}
	if strings.TrimSpace(criteria.DisplayName()) == "" && len(criteria.EnabledModifiers()) == 0 {
		return errors.New("item needs a name, base type or modifiers")
	}
	return nil
}

func (o *Orchestrator) failed(criteria core.SearchCriteria, reason, message string) *core.SearchResult {
	now := o.now()
	return &core.SearchResult{
		SessionID:     uuid.NewString(),
		Item:          criteria.DisplayName(),
		Rarity:        criteria.Rarity,
		Reason:        reason,
		Error:         message,
		Tiers:         []core.TierResult{},
		StoppedAtTier: -1,
		StartedAt:     now,
		CompletedAt:   now,
	}
}

func (o *Orchestrator) toChaos(amount float64, currency string) float64 {
	if o.Converter == nil {
		return amount
	}
	return o.Converter.ToChaos(amount, currency)
}

func (o *Orchestrator) recordCacheLookup(hit bool) {
	if o.Metrics != nil {
		o.Metrics.CacheLookup(hit)
	}
}

func (o *Orchestrator) recordRemoteCall(endpoint string, kind core.OutcomeKind) {
	if o.Metrics != nil {
		o.Metrics.RemoteCall(endpoint, kind)
	}
}

func (o *Orchestrator) recordBackoff(endpoint string, wait time.Duration) {
	if o.Metrics != nil {
		o.Metrics.LimiterBackoff(endpoint, wait)
	}
}

func (o *Orchestrator) recordInterval(endpoint string, limiter *AdaptiveRateLimiter) {
	if o.Metrics != nil && limiter != nil {
		o.Metrics.LimiterInterval(endpoint, limiter.Interval())
	}
}

func (o *Orchestrator) planner() *planner.Planner {
	if o.Planner != nil {
		return o.Planner
	}
	return &planner.Planner{}
}

func (o *Orchestrator) logger() Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o *Orchestrator) maxRetries() int {
	switch {
	case o.MaxRetries < 0:
		return 0
	case o.MaxRetries == 0:
		return DefaultMaxRetries
	default:
		return o.MaxRetries
	}
}

func (o *Orchestrator) earlyStopCount() int {
	if o.EarlyStopCount > 0 {
		return o.EarlyStopCount
	}
	return DefaultEarlyStopCount
}

func (o *Orchestrator) callTimeout() time.Duration {
	if o.CallTimeout > 0 {
		return o.CallTimeout
	}
	return DefaultCallTimeout
}

func (o *Orchestrator) fetchLimit(tier int) int {
	if limit, ok := o.FetchLimits[tier]; ok && limit >= 0 {
		return limit
	}
	return DefaultFetchLimits[tier]
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
