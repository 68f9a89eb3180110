package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/core/cache"
	"github.com/tradelens/tradelens/internal/core/engine"
	"github.com/tradelens/tradelens/internal/core/store"
	"github.com/tradelens/tradelens/internal/service"
)

func pricedResult() *core.SearchResult {
	return &core.SearchResult{
		Item:          "Ruby Ring",
		Rarity:        core.RarityRare,
		Success:       true,
		Reason:        core.ReasonOK,
		StoppedAtTier: 1,
		SkippedTiers:  []int{0},
		TotalSearches: 2,
		TotalFetches:  1,
		Tiers: []core.TierResult{
			{Tier: 0, Label: "exact", Outcome: core.OutcomeOK},
			{Tier: 1, Label: "relaxed", Outcome: core.OutcomeOK, Total: 12, Fetched: 3, Attempts: 1, Listings: []core.Listing{
				{Amount: 10, Currency: "chaos", ChaosValue: 10, Account: "alice"},
				{Amount: 1, Currency: "divine", ChaosValue: 150, Account: "bob|smith"},
				{Amount: 20, Currency: "chaos", ChaosValue: 20, Account: "carol"},
			}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestTableFormatterRendersTiersAndListings(t *testing.T) {
	rendered, err := NewFormatter(FormatTable).FormatSearch(pricedResult())
	require.NoError(t, err)

	require.Contains(t, rendered, "Ruby Ring")
	require.Contains(t, rendered, "ok (stopped)")
	require.Contains(t, rendered, "1 divine")
	require.Contains(t, strings.ToLower(rendered), "skipped tiers: 0")
	require.Contains(t, rendered, "20.0c median, 10.0c to 150c over 3 listings")
	require.Contains(t, rendered, "[tier 1, 2 searches, 1 fetches]")
}

func TestMarkdownFormatterEscapesCells(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatSearch(pricedResult())
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(rendered, "## Ruby Ring"))
	require.Contains(t, rendered, "bob\\|smith")
	require.Contains(t, rendered, "**Result**:")
}

func TestFormattersHandleAuxOnlyAndFailures(t *testing.T) {
	aux := &core.SearchResult{
		Item:          "Headhunter",
		Success:       true,
		Reason:        core.ReasonOK,
		StoppedAtTier: -1,
		FromCache:     true,
		Tiers:         []core.TierResult{{Tier: 0, Label: "exact", Outcome: core.OutcomeQuotaRejected, Error: "rate limited"}},
		AuxPrice:      &core.AuxPrice{Source: "poe2scout", Chaos: 4200, Confidence: "high", Listings: 31},
	}
	rendered, err := NewFormatter(FormatTable).FormatSearch(aux)
	require.NoError(t, err)
	require.Contains(t, rendered, "~4200c (poe2scout estimate)")
	require.Contains(t, rendered, "[cached]")
	require.Contains(t, rendered, "quota_rejected: rate limited")

	failed := &core.SearchResult{Item: "Nothing", Reason: core.ReasonNoResults, StoppedAtTier: -1}
	rendered, err = NewFormatter(FormatMarkdown).FormatSearch(failed)
	require.NoError(t, err)
	require.Contains(t, rendered, "no listings found")

	rendered, err = NewFormatter(FormatTable).FormatSearch(nil)
	require.NoError(t, err)
	require.Empty(t, rendered)
}

func TestFormatSearchListJSON(t *testing.T) {
	rendered, err := FormatSearchList(FormatJSON, []*core.SearchResult{pricedResult()})
	require.NoError(t, err)

	var decoded []core.SearchResult
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, 1, decoded[0].StoppedAtTier)

	rendered, err = FormatSearchList(FormatTable, []*core.SearchResult{pricedResult(), nil, pricedResult()})
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(rendered, "over 3 listings"))
}

func TestReports(t *testing.T) {
	limits, err := FormatLimits(FormatTable, []service.LimiterReport{{
		Endpoint: "search",
		Status: engine.LimiterStatus{
			Policy:           "trade-search-request-limit",
			Interval:         6 * time.Second,
			DefaultInterval:  3 * time.Second,
			RateLimited:      true,
			BackoffRemaining: 1500 * time.Millisecond,
		},
	}})
	require.NoError(t, err)
	require.Contains(t, limits, "trade-search-request-limit")
	require.Contains(t, limits, "1.5s")

	stats, err := FormatCacheStats(FormatJSON, cache.Stats{Total: 4, Valid: 3, MaxEntries: 100, TTL: 5 * time.Minute})
	require.NoError(t, err)
	require.JSONEq(t, `{"total_entries":4,"valid_entries":3,"max_entries":100,"ttl":"5m0s"}`, stats)

	median := 25.0
	history, err := FormatHistory(FormatTable, []store.ScanRecord{{
		ID:          "0123456789abcdef",
		Item:        "Ruby Ring",
		Success:     true,
		MedianChaos: &median,
		Listings:    4,
		Source:      store.SourceTrade,
		ScannedAt:   time.Now(),
	}})
	require.NoError(t, err)
	require.Contains(t, history, "01234567")
	require.NotContains(t, history, "89abcdef")
	require.Contains(t, history, "25.0c")
	require.Contains(t, strings.ToLower(history), "1 scan")

	empty, err := FormatHistory(FormatJSON, nil)
	require.NoError(t, err)
	require.Equal(t, "[]", empty)
}
