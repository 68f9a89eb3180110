package output

import (
	"fmt"
	"strings"

	"github.com/tradelens/tradelens/internal/core"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatSearch renders a search result as Markdown.
func (f *MarkdownFormatter) FormatSearch(result *core.SearchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(result.Item)))
	sb.WriteString("| Tier | Name | Status | Total | Fetched |\n")
	sb.WriteString("|------|------|--------|-------|---------|\n")
	for _, tier := range result.Tiers {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %d |\n",
			tier.Tier,
			escapeMarkdownCell(tier.Label),
			escapeMarkdownCell(tierStatus(result, tier)),
			tier.Total,
			tier.Fetched,
		))
	}
	if aux := result.AuxPrice; aux != nil {
		sb.WriteString(fmt.Sprintf("| - | %s | %s | %d | - |\n",
			escapeMarkdownCell(aux.Source), escapeMarkdownCell(aux.Confidence), aux.Listings))
	}

	if listings := stoppedListings(result); len(listings) > 0 {
		sb.WriteString("\n| # | Price | Chaos | Account |\n")
		sb.WriteString("|---|-------|-------|---------|\n")
		for i, listing := range listings {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n",
				i+1,
				escapeMarkdownCell(formatListingPrice(listing)),
				formatChaos(listing.ChaosValue),
				escapeMarkdownCell(listing.Account),
			))
		}
	}

	if note := skippedNote(result); note != "" {
		sb.WriteString("\n_" + note + "_\n")
	}
	sb.WriteString(fmt.Sprintf("\n**Result**: %s\n", escapeMarkdownCell(headline(result))))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
