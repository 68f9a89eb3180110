package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tradelens/tradelens/internal/core"
)

// TableFormatter renders results as ASCII tables.
type TableFormatter struct{}

// FormatSearch renders the tier attempts, the listings of the tier the search
// stopped at, and a one line verdict.
func (f *TableFormatter) FormatSearch(result *core.SearchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := newTable()
	t.SetTitle(result.Item)
	t.AppendHeader(table.Row{"Tier", "Name", "Status", "Total", "Fetched", "Attempts"})
	for _, tier := range result.Tiers {
		t.AppendRow(table.Row{tier.Tier, tier.Label, tierStatus(result, tier), tier.Total, tier.Fetched, tier.Attempts})
	}
	if aux := result.AuxPrice; aux != nil {
		t.AppendRow(table.Row{"-", aux.Source, aux.Confidence, aux.Listings, "", ""})
	}
	if note := skippedNote(result); note != "" {
		t.AppendFooter(table.Row{"", note, "", "", "", ""})
	}

	rendered := t.Render()

	if listings := stoppedListings(result); len(listings) > 0 {
		lt := newTable()
		lt.AppendHeader(table.Row{"#", "Price", "Chaos", "Account", "Indexed"})
		for i, listing := range listings {
			lt.AppendRow(table.Row{i + 1, formatListingPrice(listing), formatChaos(listing.ChaosValue), listing.Account, listing.Indexed})
		}
		rendered += "\n" + lt.Render()
	}

	return rendered + "\n" + headline(result), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func renderRows(header table.Row, rows []table.Row, footer string) string {
	t := newTable()
	t.AppendHeader(header)
	t.AppendRows(rows)
	if footer != "" {
		footerRow := make(table.Row, len(header))
		footerRow[len(footerRow)-1] = footer
		t.AppendFooter(footerRow)
	}
	return t.Render()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func countFooter(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
