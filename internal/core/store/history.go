package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradelens/tradelens/internal/core"
)

// ErrNotFound is returned when a scan id is unknown.
var ErrNotFound = errors.New("scan not found")

// Scan sources.
const (
	SourceTrade = "trade"
	SourceAux   = "aux"
	SourceBoth  = "trade+aux"
	SourceNone  = "none"
)

// ScanRecord is the persisted summary of one search session.
type ScanRecord struct {
	ID          string      `json:"id"`
	Item        string      `json:"item"`
	Rarity      core.Rarity `json:"rarity"`
	Success     bool        `json:"success"`
	Reason      string      `json:"reason"`
	MinChaos    *float64    `json:"min_chaos,omitempty"`
	MedianChaos *float64    `json:"median_chaos,omitempty"`
	MaxChaos    *float64    `json:"max_chaos,omitempty"`
	StoppedTier int         `json:"stopped_tier"`
	Listings    int         `json:"listings"`
	RemoteCalls int         `json:"remote_calls"`
	Source      string      `json:"source"`
	Icon        string      `json:"icon,omitempty"`
	ScannedAt   time.Time   `json:"scanned_at"`
}

// NewScanRecord summarizes result. Prices come from the listings of the tier
// the search stopped at, falling back to the aux catalog price.
func NewScanRecord(result *core.SearchResult, scannedAt time.Time) ScanRecord {
	record := ScanRecord{
		ID:          uuid.NewString(),
		Item:        result.Item,
		Rarity:      result.Rarity,
		Success:     result.Success,
		Reason:      result.Reason,
		StoppedTier: result.StoppedAtTier,
		RemoteCalls: result.TotalRemoteCalls,
		Source:      SourceNone,
		Icon:        result.TradeIcon,
		ScannedAt:   scannedAt.UTC(),
	}

	var prices []float64
	if tier, ok := result.StoppedTier(); ok {
		for _, listing := range tier.Listings {
			prices = append(prices, listing.ChaosValue)
		}
	}
	record.Listings = len(prices)

	aux := result.AuxPrice
	switch {
	case len(prices) > 0 && aux != nil:
		record.Source = SourceBoth
	case len(prices) > 0:
		record.Source = SourceTrade
	case aux != nil:
		record.Source = SourceAux
		prices = []float64{aux.Chaos}
	}
	if record.Icon == "" && aux != nil {
		record.Icon = aux.Icon
	}

	if len(prices) > 0 {
		sort.Float64s(prices)
		low, high := prices[0], prices[len(prices)-1]
		median := medianOf(prices)
		record.MinChaos, record.MedianChaos, record.MaxChaos = &low, &median, &high
	}
	return record
}

func medianOf(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// RecordScan stores a summary of result and trims history to the configured
// limit. Results served from the cache are skipped.
func (s *Store) RecordScan(ctx context.Context, result *core.SearchResult) (*ScanRecord, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil || result.FromCache {
		return nil, nil
	}
	if strings.TrimSpace(result.Item) == "" {
		return nil, errors.New("scan item is required")
	}

	record := NewScanRecord(result, s.now())

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin scan insert: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_history (id, item, rarity, success, reason, min_chaos, median_chaos, max_chaos,
			stopped_tier, listings, remote_calls, source, icon, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.Item, string(record.Rarity), boolToInt(record.Success), record.Reason,
		nullFloat(record.MinChaos), nullFloat(record.MedianChaos), nullFloat(record.MaxChaos),
		record.StoppedTier, record.Listings, record.RemoteCalls, record.Source, record.Icon,
		record.ScannedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert scan: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM scan_history
		WHERE seq NOT IN (SELECT seq FROM scan_history ORDER BY seq DESC LIMIT ?)
	`, s.historyLimit())
	if err != nil {
		return nil, fmt.Errorf("trim scan history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit scan: %w", err)
	}
	return &record, nil
}

const scanColumns = `id, item, rarity, success, reason, min_chaos, median_chaos, max_chaos,
	stopped_tier, listings, remote_calls, source, icon, scanned_at`

// ListScans returns up to limit scans, newest first. A non-positive limit
// returns the whole history.
func (s *Store) ListScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.historyLimit()
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+scanColumns+` FROM scan_history ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var records []ScanRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return records, nil
}

// GetScan returns one scan by id.
func (s *Store) GetScan(ctx context.Context, id string) (*ScanRecord, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scan_history WHERE id = ?`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ClearScans deletes the whole history and returns the number of rows removed.
func (s *Store) ClearScans(ctx context.Context) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM scan_history`)
	if err != nil {
		return 0, fmt.Errorf("clear scans: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear scans: %w", err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ScanRecord, error) {
	var (
		record              ScanRecord
		rarity              string
		success             int
		minC, medianC, maxC sql.NullFloat64
		icon                sql.NullString
		scannedAt           int64
	)
	if err := row.Scan(&record.ID, &record.Item, &rarity, &success, &record.Reason, &minC, &medianC, &maxC,
		&record.StoppedTier, &record.Listings, &record.RemoteCalls, &record.Source, &icon, &scannedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScanRecord{}, err
		}
		return ScanRecord{}, fmt.Errorf("read scan: %w", err)
	}

	record.Rarity = core.Rarity(rarity)
	record.Success = success != 0
	record.MinChaos = floatPtr(minC)
	record.MedianChaos = floatPtr(medianC)
	record.MaxChaos = floatPtr(maxC)
	record.Icon = icon.String
	record.ScannedAt = time.UnixMilli(scannedAt).UTC()
	return record, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	out := v.Float64
	return &out
}
