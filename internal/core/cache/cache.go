// Package cache keeps recent search outcomes keyed by a fingerprint of the
// item being priced.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/tradelens/tradelens/internal/core"
)

const (
	// DefaultTTL is how long a search result stays fresh.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries bounds the number of cached searches.
	DefaultMaxEntries = 100

	keySeparator = "|"
)

// Entry is one cached search outcome.
type Entry struct {
	Key       string
	CreatedAt time.Time
	Payload   *core.SearchResult
}

// Stats summarizes cache occupancy.
type Stats struct {
	Total      int           `json:"total_entries"`
	Valid      int           `json:"valid_entries"`
	MaxEntries int           `json:"max_entries"`
	TTL        time.Duration `json:"ttl"`
}

// ResultCache is a TTL and capacity bounded LRU of search results.
// It is safe for concurrent use.
type ResultCache struct {
	Clock func() time.Time

	mu         sync.Mutex
	entries    *lru.Cache
	ttl        time.Duration
	maxEntries int
}

// New creates a cache. Non-positive values fall back to the defaults.
func New(maxEntries int, ttl time.Duration) (*ResultCache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	entries, err := lru.New(maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	return &ResultCache{
		entries:    entries,
		ttl:        ttl,
		maxEntries: maxEntries,
	}, nil
}

// Fingerprint hashes the sorted IDs of enabled modifiers into a fixed width
// digest. Input order does not matter.
func Fingerprint(mods []core.Modifier) string {
	ids := make([]string, 0, len(mods))
	for _, mod := range mods {
		if mod.Enabled && mod.ID != "" {
			ids = append(ids, mod.ID)
		}
	}
	sort.Strings(ids)
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(ids, ",")))
}

// Key builds the lowercase composite cache key for an item.
func Key(name, baseType string, rarity core.Rarity, mods []core.Modifier) string {
	parts := []string{
		keyPart(string(rarity)),
		keyPart(name),
		keyPart(baseType),
		Fingerprint(mods),
	}
	return strings.ToLower(strings.Join(parts, keySeparator))
}

// KeyFor builds the cache key for search criteria.
func KeyFor(criteria core.SearchCriteria) string {
	return Key(criteria.Name, criteria.BaseType, criteria.Rarity, criteria.Modifiers)
}

// Get returns a fresh cached result. Expired entries are removed.
func (c *ResultCache) Get(key string) (*core.SearchResult, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	entry := raw.(*Entry)
	if !c.fresh(entry, c.now()) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.Payload.Clone(), true
}

// Put stores a result, evicting the least recently used entry at capacity.
func (c *ResultCache) Put(key string, result *core.SearchResult) {
	if c == nil || result == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, &Entry{
		Key:       key,
		CreatedAt: c.now(),
		Payload:   result.Clone(),
	})
}

// Invalidate removes entries whose name or base type contains the given
// filters, case-insensitively. With no filters the cache is cleared.
// It returns the number of entries removed.
func (c *ResultCache) Invalidate(name, baseType string) int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	name = strings.ToLower(strings.TrimSpace(name))
	baseType = strings.ToLower(strings.TrimSpace(baseType))
	if name == "" && baseType == "" {
		count := c.entries.Len()
		c.entries.Purge()
		return count
	}

	removed := 0
	for _, raw := range c.entries.Keys() {
		key, ok := raw.(string)
		if !ok {
			continue
		}
		parts := strings.Split(key, keySeparator)
		if len(parts) < 3 {
			continue
		}
		nameHit := name != "" && strings.Contains(parts[1], name)
		baseHit := baseType != "" && strings.Contains(parts[2], baseType)
		if !nameHit && !baseHit {
			continue
		}
		if c.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

// Stats reports total and still-fresh entries.
func (c *ResultCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	valid := 0
	for _, raw := range c.entries.Keys() {
		value, ok := c.entries.Peek(raw)
		if !ok {
			continue
		}
		if c.fresh(value.(*Entry), now) {
			valid++
		}
	}

	return Stats{
		Total:      c.entries.Len(),
		Valid:      valid,
		MaxEntries: c.maxEntries,
		TTL:        c.ttl,
	}
}

// Keys returns cached keys from least to most recently used.
func (c *ResultCache) Keys() []string {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raw := c.entries.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if key, ok := k.(string); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *ResultCache) fresh(entry *Entry, now time.Time) bool {
	return now.Sub(entry.CreatedAt) <= c.ttl
}

func (c *ResultCache) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func keyPart(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), keySeparator, "/")
}
