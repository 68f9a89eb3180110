package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradelens/tradelens/internal/core"
)

func mods(ids ...string) []core.Modifier {
	out := make([]core.Modifier, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.Modifier{ID: id, Text: id, Enabled: true})
	}
	return out
}

func newTestCache(t *testing.T, maxEntries int, ttl time.Duration, now *time.Time) *ResultCache {
	t.Helper()
	c, err := New(maxEntries, ttl)
	require.NoError(t, err)
	c.Clock = func() time.Time { return *now }
	return c
}

func result(item string) *core.SearchResult {
	return &core.SearchResult{
		Item:          item,
		Success:       true,
		StoppedAtTier: 1,
		Tiers: []core.TierResult{
			{Tier: 1, Label: "Similar", Total: 7, Outcome: core.OutcomeOK, Listings: []core.Listing{{Amount: 3, Currency: "exalted"}}},
		},
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := Fingerprint(mods("explicit.stat_1", "explicit.stat_2", "explicit.stat_3"))
	b := Fingerprint(mods("explicit.stat_3", "explicit.stat_1", "explicit.stat_2"))
	require.Equal(t, a, b)
	require.Len(t, a, 16)

	require.NotEqual(t, a, Fingerprint(mods("explicit.stat_1", "explicit.stat_2")))
}

func TestFingerprintIgnoresDisabledModifiers(t *testing.T) {
	withDisabled := append(mods("explicit.stat_1"), core.Modifier{ID: "explicit.stat_9", Enabled: false})
	require.Equal(t, Fingerprint(mods("explicit.stat_1")), Fingerprint(withDisabled))
}

func TestKeyIsLowercaseComposite(t *testing.T) {
	key := Key("Doom Loop", "Ruby Ring", core.RarityRare, mods("explicit.stat_1"))
	require.Equal(t, "rare|doom loop|ruby ring|"+Fingerprint(mods("explicit.stat_1")), key)

	require.Equal(t, key, Key("doom loop", "RUBY RING", core.RarityRare, mods("explicit.stat_1")))

	piped := Key("a|b", "c", core.RarityRare, nil)
	require.Equal(t, "rare|a/b|c|"+Fingerprint(nil), piped)
}

func TestGetPutRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(t, 10, time.Minute, &now)

	key := Key("Doom Loop", "Ruby Ring", core.RarityRare, mods("a"))
	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, result("Doom Loop"))
	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "Doom Loop", got.Item)
	require.Len(t, got.Tiers, 1)

	got.Tiers[0].Listings[0].Amount = 999
	again, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, float64(3), again.Tiers[0].Listings[0].Amount)
}

func TestGetExpiresAfterTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(t, 10, time.Minute, &now)

	c.Put("k", result("x"))

	now = now.Add(time.Minute)
	_, ok := c.Get("k")
	require.True(t, ok, "entry exactly ttl old is still fresh")

	now = now.Add(time.Second)
	_, ok = c.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, c.Stats().Total, "expired entry evicted on lookup")
}

func TestPutEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(t, 3, time.Hour, &now)

	c.Put("a", result("a"))
	c.Put("b", result("b"))
	c.Put("c", result("c"))

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", result("d"))

	_, ok = c.Get("b")
	require.False(t, ok, "b was least recently used")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		require.True(t, ok, key)
	}
	require.Equal(t, 3, c.Stats().Total)
}

func TestCapacityKeepsMostRecentEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	const capacity = 5
	c := newTestCache(t, capacity, time.Hour, &now)

	for i := 0; i <= capacity; i++ {
		c.Put(fmt.Sprintf("key-%d", i), result("x"))
	}

	require.Equal(t, []string{"key-1", "key-2", "key-3", "key-4", "key-5"}, c.Keys())
}

func TestInvalidate(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(t, 10, time.Hour, &now)

	c.Put(Key("Doom Loop", "Ruby Ring", core.RarityRare, nil), result("1"))
	c.Put(Key("Gloom Loop", "Sapphire Ring", core.RarityRare, nil), result("2"))
	c.Put(Key("Headhunter", "Leather Belt", core.RarityUnique, nil), result("3"))

	require.Equal(t, 2, c.Invalidate("LOOP", ""))
	require.Equal(t, 1, c.Stats().Total)

	c.Put(Key("Doom Loop", "Ruby Ring", core.RarityRare, nil), result("1"))
	c.Put(Key("Ventor's Gamble", "Gold Ring", core.RarityUnique, nil), result("4"))
	require.Equal(t, 2, c.Invalidate("loop", "belt"), "either filter selects an entry")
	require.Equal(t, 1, c.Stats().Total)
	require.Equal(t, 1, c.Invalidate("", "gold"))

	c.Put(Key("a", "b", core.RarityRare, nil), result("5"))
	c.Put(Key("c", "d", core.RarityRare, nil), result("6"))
	require.Equal(t, 2, c.Invalidate("", ""))
	require.Equal(t, 0, c.Stats().Total)
}

func TestStats(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(t, 10, time.Minute, &now)

	c.Put("old", result("old"))
	now = now.Add(2 * time.Minute)
	c.Put("new", result("new"))

	stats := c.Stats()
	require.Equal(t, Stats{Total: 2, Valid: 1, MaxEntries: 10, TTL: time.Minute}, stats)
}

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(0, 0)
	require.NoError(t, err)
	stats := c.Stats()
	require.Equal(t, DefaultMaxEntries, stats.MaxEntries)
	require.Equal(t, DefaultTTL, stats.TTL)
}

func TestConcurrentAccess(t *testing.T) {
	c, err := New(16, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k-%d", (n+j)%32)
				c.Put(key, result(key))
				c.Get(key)
				if j%50 == 0 {
					c.Invalidate("k-1", "")
				}
			}
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, c.Stats().Total, 16)
}
