package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tradelens/tradelens/internal/core/cache"
	"github.com/tradelens/tradelens/internal/core/currency"
	"github.com/tradelens/tradelens/internal/core/store"
	"github.com/tradelens/tradelens/internal/core/trade"
	"github.com/tradelens/tradelens/internal/service"
)

// FormatLimits renders limiter snapshots.
func FormatLimits(format Format, reports []service.LimiterReport) (string, error) {
	if format == FormatJSON {
		return marshalJSON(reports)
	}
	rows := make([]table.Row, 0, len(reports))
	for _, report := range reports {
		status := report.Status
		policy := status.Policy
		if status.ServerPolicy != "" {
			policy += " (" + status.ServerPolicy + ")"
		}
		backoff := "-"
		if status.RateLimited {
			backoff = status.BackoffRemaining.Round(time.Millisecond).String()
		}
		rows = append(rows, table.Row{
			report.Endpoint,
			policy,
			status.Interval.String(),
			status.DefaultInterval.String(),
			status.ConsecutiveRejections,
			backoff,
		})
	}
	return renderRows(table.Row{"Endpoint", "Policy", "Interval", "Default", "Rejections", "Backoff"}, rows, ""), nil
}

// FormatCacheStats renders result cache occupancy.
func FormatCacheStats(format Format, stats cache.Stats) (string, error) {
	if format == FormatJSON {
		return marshalJSON(map[string]any{
			"total_entries": stats.Total,
			"valid_entries": stats.Valid,
			"max_entries":   stats.MaxEntries,
			"ttl":           stats.TTL.String(),
		})
	}
	rows := []table.Row{
		{"Entries", fmt.Sprintf("%d/%d", stats.Total, stats.MaxEntries)},
		{"Fresh", stats.Valid},
		{"Expired", stats.Total - stats.Valid},
		{"TTL", stats.TTL.String()},
	}
	return renderRows(table.Row{"Cache", "Value"}, rows, ""), nil
}

// FormatHistory renders recorded scans, newest first.
func FormatHistory(format Format, scans []store.ScanRecord) (string, error) {
	if format == FormatJSON {
		if scans == nil {
			scans = []store.ScanRecord{}
		}
		return marshalJSON(scans)
	}
	rows := make([]table.Row, 0, len(scans))
	for _, scan := range scans {
		rows = append(rows, table.Row{
			shortID(scan.ID),
			scan.ScannedAt.Local().Format("2006-01-02 15:04"),
			scan.Item,
			yesNo(scan.Success),
			formatOptionalChaos(scan.MedianChaos),
			scan.Listings,
			scan.Source,
		})
	}
	return renderRows(table.Row{"ID", "When", "Item", "Priced", "Median", "Listings", "Source"},
		rows, countFooter(len(scans), "scan")), nil
}

// FormatScan renders one recorded scan.
func FormatScan(format Format, scan *store.ScanRecord) (string, error) {
	if format == FormatJSON {
		return marshalJSON(scan)
	}
	if scan == nil {
		return "", nil
	}
	rows := []table.Row{
		{"ID", scan.ID},
		{"Item", scan.Item},
		{"Rarity", string(scan.Rarity)},
		{"Reason", scan.Reason},
		{"Min", formatOptionalChaos(scan.MinChaos)},
		{"Median", formatOptionalChaos(scan.MedianChaos)},
		{"Max", formatOptionalChaos(scan.MaxChaos)},
		{"Stopped tier", scan.StoppedTier},
		{"Listings", scan.Listings},
		{"Remote calls", scan.RemoteCalls},
		{"Source", scan.Source},
		{"Scanned", scan.ScannedAt.Format(time.RFC3339)},
	}
	return renderRows(table.Row{"Field", "Value"}, rows, ""), nil
}

// FormatRates renders the currency table.
func FormatRates(format Format, rates []currency.Rate) (string, error) {
	if format == FormatJSON {
		return marshalJSON(rates)
	}
	rows := make([]table.Row, 0, len(rates))
	for _, rate := range rates {
		rows = append(rows, table.Row{rate.Currency, fmt.Sprintf("%g", rate.Chaos)})
	}
	return renderRows(table.Row{"Currency", "Chaos"}, rows, ""), nil
}

// FormatLeagues renders the trade leagues.
func FormatLeagues(format Format, leagues []trade.League) (string, error) {
	if format == FormatJSON {
		return marshalJSON(leagues)
	}
	rows := make([]table.Row, 0, len(leagues))
	for _, league := range leagues {
		rows = append(rows, table.Row{league.ID, league.Realm, league.Text})
	}
	return renderRows(table.Row{"ID", "Realm", "Name"}, rows, countFooter(len(leagues), "league")), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
