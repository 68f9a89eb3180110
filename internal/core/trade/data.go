package trade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/core/planner"
)

// League is a tradeable league.
type League struct {
	ID    string `json:"id"`
	Realm string `json:"realm,omitempty"`
	Text  string `json:"text"`
}

// StatIndex maps normalized modifier text to trade stat IDs.
type StatIndex struct {
	mu       sync.RWMutex
	entries  map[string]string
	patterns []string
}

// NewStatIndex builds an index from stat text to ID.
func NewStatIndex(stats map[string]string) *StatIndex {
	idx := &StatIndex{}
	idx.Replace(stats)
	return idx
}

// Replace swaps the indexed stats.
func (s *StatIndex) Replace(stats map[string]string) {
	entries := make(map[string]string, len(stats))
	for text, id := range stats {
		normalized := planner.NormalizeModifierText(text)
		if normalized == "" || id == "" {
			continue
		}
		if _, exists := entries[normalized]; !exists {
			entries[normalized] = id
		}
	}
	patterns := make([]string, 0, len(entries))
	for pattern := range entries {
		patterns = append(patterns, pattern)
	}
	// Longest first so substring matches prefer the most specific stat.
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})

	s.mu.Lock()
	s.entries = entries
	s.patterns = patterns
	s.mu.Unlock()
}

// Len returns the number of indexed stats.
func (s *StatIndex) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Resolve finds the stat ID for modifier text by exact then substring match.
func (s *StatIndex) Resolve(text string) (string, bool) {
	if s == nil {
		return "", false
	}
	normalized := planner.NormalizeModifierText(text)
	if normalized == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.entries[normalized]; ok {
		return id, true
	}
	for _, pattern := range s.patterns {
		if strings.Contains(normalized, pattern) || strings.Contains(pattern, normalized) {
			return s.entries[pattern], true
		}
	}
	return "", false
}

// ResolveModifiers fills in missing stat IDs. It returns the updated
// modifiers and how many were resolved.
func (s *StatIndex) ResolveModifiers(mods []core.Modifier) ([]core.Modifier, int) {
	out := append([]core.Modifier(nil), mods...)
	resolved := 0
	for i := range out {
		if out[i].ID != "" {
			continue
		}
		if id, ok := s.Resolve(out[i].Text); ok {
			out[i].ID = id
			resolved++
		}
	}
	return out, resolved
}

// LoadStats downloads the stat catalogue.
func (c *Client) LoadStats(ctx context.Context) (*StatIndex, error) {
	var payload struct {
		Result []struct {
			Label   string `json:"label"`
			Entries []struct {
				ID   string `json:"id"`
				Text string `json:"text"`
			} `json:"entries"`
		} `json:"result"`
	}
	if err := c.getJSON(ctx, "/data/stats", &payload); err != nil {
		return nil, err
	}

	stats := make(map[string]string)
	for _, group := range payload.Result {
		for _, entry := range group.Entries {
			if entry.ID == "" || entry.Text == "" {
				continue
			}
			if _, exists := stats[entry.Text]; !exists {
				stats[entry.Text] = entry.ID
			}
		}
	}
	return NewStatIndex(stats), nil
}

// Leagues lists the leagues the trade API accepts.
func (c *Client) Leagues(ctx context.Context) ([]League, error) {
	var payload struct {
		Result []League `json:"result"`
	}
	if err := c.getJSON(ctx, "/data/leagues", &payload); err != nil {
		return nil, err
	}
	return payload.Result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
