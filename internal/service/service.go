// Package service assembles the search engine from configuration and exposes
// the operations shared by the CLI and the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradelens/tradelens/internal/config"
	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/core/cache"
	"github.com/tradelens/tradelens/internal/core/currency"
	"github.com/tradelens/tradelens/internal/core/engine"
	"github.com/tradelens/tradelens/internal/core/planner"
	"github.com/tradelens/tradelens/internal/core/scout"
	"github.com/tradelens/tradelens/internal/core/store"
	"github.com/tradelens/tradelens/internal/core/trade"
	"github.com/tradelens/tradelens/internal/metrics"
)

// Endpoint classes reported by Limits.
const (
	EndpointSearch = "search"
	EndpointFetch  = "fetch"
)

// ErrHistoryDisabled is returned by history operations when no store is open.
var ErrHistoryDisabled = errors.New("scan history is not enabled")

// LimiterReport pairs an endpoint class with its limiter snapshot.
type LimiterReport struct {
	Endpoint string               `json:"endpoint"`
	Status   engine.LimiterStatus `json:"status"`
}

// Service owns one configured search engine.
type Service struct {
	Trade  *trade.Client
	Scout  *scout.Client
	Rates  *currency.Table
	Cache  *cache.ResultCache
	Store  *store.Store
	Engine *engine.Orchestrator
	Logger engine.Logger

	searchLimiter *engine.AdaptiveRateLimiter
	fetchLimiter  *engine.AdaptiveRateLimiter
	stats         atomic.Pointer[trade.StatIndex]
}

// Options customizes New. Zero values are fine.
type Options struct {
	Store      *store.Store
	Logger     engine.Logger
	Metrics    engine.Metrics
	HTTPClient *http.Client
}

// New wires the trade client, limiters, cache, planner and auxiliary price
// source described by cfg.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.Recorder{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Trade.Timeout}
	}

	resultCache, err := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	rates := currency.NewTable()
	tradeClient := &trade.Client{
		BaseURL:   cfg.Trade.BaseURL,
		League:    cfg.Trade.League,
		SessionID: cfg.Trade.SessionID,
		UserAgent: cfg.Trade.UserAgent,
		Client:    httpClient,
	}

	svc := &Service{
		Trade:         tradeClient,
		Rates:         rates,
		Cache:         resultCache,
		Store:         opts.Store,
		Logger:        logger,
		searchLimiter: engine.NewAdaptiveRateLimiter(EndpointSearch, cfg.Limits.SearchInterval),
		fetchLimiter:  engine.NewAdaptiveRateLimiter(EndpointFetch, cfg.Limits.FetchInterval),
	}
	svc.stats.Store(trade.NewStatIndex(nil))

	orchestrator := &engine.Orchestrator{
		SearchLimiter:  svc.searchLimiter,
		FetchLimiter:   svc.fetchLimiter,
		Cache:          resultCache,
		Planner:        &planner.Planner{},
		Transport:      tradeClient,
		Converter:      rates,
		Logger:         logger,
		Metrics:        recorder,
		MaxRetries:     cfg.Search.MaxRetries,
		EarlyStopCount: cfg.Search.EarlyStopCount,
		CallTimeout:    cfg.Search.CallTimeout,
	}
	if cfg.Search.MaxRetries == 0 {
		// config zero disables retries; the orchestrator treats zero as its default
		orchestrator.MaxRetries = -1
	}

	if cfg.Scout.Enabled {
		svc.Scout = scout.New(cfg.Scout.BaseURL, cfg.Trade.League, cfg.Scout.Interval, rates)
		svc.Scout.Client = &http.Client{Timeout: cfg.Scout.Timeout}
		if opts.HTTPClient != nil {
			svc.Scout.Client = opts.HTTPClient
		}
		orchestrator.Aux = svc.Scout
	}

	svc.Engine = orchestrator
	return svc, nil
}

// Warmup loads the stat catalogue and the auxiliary currency rates in
// parallel. Either failure is returned; the service stays usable with
// whatever did load.
func (s *Service) Warmup(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		index, err := s.Trade.LoadStats(ctx)
		if err != nil {
			return fmt.Errorf("load stat catalogue: %w", err)
		}
		s.stats.Store(index)
		s.Logger.Debug("Stat catalogue loaded", zap.Int("stats", index.Len()))
		return nil
	})

	if s.Scout != nil {
		g.Go(func() error {
			if err := s.Scout.LoadRates(ctx); err != nil {
				return fmt.Errorf("load currency rates: %w", err)
			}
			s.Logger.Debug("Currency rates loaded", zap.Int("rates", len(s.Rates.Rates())))
			return nil
		})
	}

	return g.Wait()
}

// StatIndex returns the current stat catalogue.
func (s *Service) StatIndex() *trade.StatIndex {
	return s.stats.Load()
}

// Search resolves missing modifier IDs, prices the item and records the
// session in history when a store is attached.
func (s *Service) Search(ctx context.Context, criteria core.SearchCriteria) *core.SearchResult {
	if len(criteria.Modifiers) > 0 {
		mods, resolved := s.StatIndex().ResolveModifiers(criteria.Modifiers)
		criteria.Modifiers = mods
		if resolved > 0 {
			s.Logger.Debug("Resolved modifier stat ids", zap.Int("resolved", resolved))
		}
	}

	result := s.Engine.Search(ctx, criteria)
	s.record(ctx, result)
	return result
}

func (s *Service) record(ctx context.Context, result *core.SearchResult) {
	if s.Store == nil || result == nil || result.FromCache {
		return
	}
	switch result.Reason {
	case core.ReasonCancelled, core.ReasonInvalidCriteria:
		return
	}

	// the search context may already be done; history still gets written
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := s.Store.RecordScan(writeCtx, result); err != nil {
		metrics.RecordHistoryWrite(false)
		s.Logger.Warn("Failed to record scan history",
			zap.String("session_id", result.SessionID),
			zap.Error(err))
		return
	}
	metrics.RecordHistoryWrite(true)
}

// Limits reports both limiters.
func (s *Service) Limits() []LimiterReport {
	return []LimiterReport{
		{Endpoint: EndpointSearch, Status: s.searchLimiter.Status()},
		{Endpoint: EndpointFetch, Status: s.fetchLimiter.Status()},
	}
}

// CacheStats reports result cache occupancy.
func (s *Service) CacheStats() cache.Stats {
	return s.Cache.Stats()
}

// InvalidateCache drops cached results matching the filters; empty filters
// clear everything.
func (s *Service) InvalidateCache(name, baseType string) int {
	return s.Cache.Invalidate(name, baseType)
}

// History lists recent scans, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]store.ScanRecord, error) {
	if s.Store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.Store.ListScans(ctx, limit)
}

// Scan returns one recorded scan.
func (s *Service) Scan(ctx context.Context, id string) (*store.ScanRecord, error) {
	if s.Store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.Store.GetScan(ctx, strings.TrimSpace(id))
}

// ClearHistory removes all recorded scans.
func (s *Service) ClearHistory(ctx context.Context) (int64, error) {
	if s.Store == nil {
		return 0, ErrHistoryDisabled
	}
	return s.Store.ClearScans(ctx)
}

// Leagues lists the leagues known to the trade API.
func (s *Service) Leagues(ctx context.Context) ([]trade.League, error) {
	return s.Trade.Leagues(ctx)
}

// CurrencyRates returns the conversion table in use.
func (s *Service) CurrencyRates() []currency.Rate {
	return s.Rates.Rates()
}
