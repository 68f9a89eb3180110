package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/core/store"
)

// maxListingRows caps the listing table; the JSON output carries them all.
const maxListingRows = 10

// headline is the one line verdict shown under every rendered search.
func headline(result *core.SearchResult) string {
	record := store.NewScanRecord(result, time.Now())

	var sb strings.Builder
	switch {
	case record.MedianChaos != nil && record.Source == store.SourceAux:
		sb.WriteString(fmt.Sprintf("~%s (%s estimate)", formatChaos(*record.MedianChaos), result.AuxPrice.Source))
	case record.MedianChaos != nil:
		sb.WriteString(fmt.Sprintf("%s median, %s to %s over %d listings",
			formatChaos(*record.MedianChaos), formatChaos(*record.MinChaos), formatChaos(*record.MaxChaos), record.Listings))
	case result.Error != "":
		sb.WriteString(result.Reason + ": " + result.Error)
	default:
		sb.WriteString(reasonLabel(result.Reason))
	}

	var notes []string
	if result.StoppedAtTier >= 0 {
		notes = append(notes, fmt.Sprintf("tier %d", result.StoppedAtTier))
	}
	if result.FromCache {
		notes = append(notes, "cached")
	} else {
		notes = append(notes, fmt.Sprintf("%d searches, %d fetches", result.TotalSearches, result.TotalFetches))
	}
	sb.WriteString(" [" + strings.Join(notes, ", ") + "]")
	return sb.String()
}

func reasonLabel(reason string) string {
	switch reason {
	case core.ReasonOK:
		return "ok"
	case core.ReasonNoResults:
		return "no listings found"
	case core.ReasonCancelled:
		return "cancelled"
	case core.ReasonInvalidCriteria:
		return "invalid item criteria"
	case "":
		return "unknown"
	default:
		return strings.ReplaceAll(reason, "_", " ")
	}
}

func tierStatus(result *core.SearchResult, tier core.TierResult) string {
	status := string(tier.Outcome)
	if tier.Error != "" && !tier.Succeeded() {
		status += ": " + tier.Error
	}
	if tier.Tier == result.StoppedAtTier && tier.Succeeded() {
		status += " (stopped)"
	}
	return status
}

func skippedNote(result *core.SearchResult) string {
	if len(result.SkippedTiers) == 0 {
		return ""
	}
	parts := make([]string, 0, len(result.SkippedTiers))
	for _, tier := range result.SkippedTiers {
		parts = append(parts, fmt.Sprintf("%d", tier))
	}
	return "skipped tiers: " + strings.Join(parts, ", ")
}

func stoppedListings(result *core.SearchResult) []core.Listing {
	tier, ok := result.StoppedTier()
	if !ok {
		return nil
	}
	if len(tier.Listings) > maxListingRows {
		return tier.Listings[:maxListingRows]
	}
	return tier.Listings
}

func formatChaos(value float64) string {
	if value >= 100 {
		return fmt.Sprintf("%.0fc", value)
	}
	return fmt.Sprintf("%.1fc", value)
}

func formatListingPrice(listing core.Listing) string {
	return fmt.Sprintf("%g %s", listing.Amount, listing.Currency)
}

func formatOptionalChaos(value *float64) string {
	if value == nil {
		return "-"
	}
	return formatChaos(*value)
}
