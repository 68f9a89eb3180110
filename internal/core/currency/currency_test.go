package currency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToChaosDefaults(t *testing.T) {
	table := NewTable()

	require.Equal(t, 3.0, table.ToChaos(3, "chaos"))
	require.Equal(t, 100.0, table.ToChaos(2, "Exalted"))
	require.Equal(t, 150.0, table.ToChaos(1, "divine-orb"))
	require.InDelta(t, 5.0, table.ToChaos(5000, "gold"), 1e-9)
	require.Equal(t, 7.0, table.ToChaos(7, ""), "empty currency is chaos")
	require.Equal(t, 4.0, table.ToChaos(4, "mirror"), "unknown currency is one to one")
}

func TestSetUpdatesAliases(t *testing.T) {
	table := NewTable()

	require.True(t, table.Set("Divine", 210))
	require.Equal(t, 210.0, table.ToChaos(1, "divine"))
	require.Equal(t, 210.0, table.ToChaos(1, "divine-orb"))

	require.False(t, table.Set("divine", 0))
	require.False(t, table.Set("", 5))
	rate, ok := table.Rate("divine")
	require.True(t, ok)
	require.Equal(t, 210.0, rate)
}

func TestUpdateFromLeague(t *testing.T) {
	table := NewTable()
	table.UpdateFromLeague(60, 120)

	require.Equal(t, 60.0, table.ToChaos(1, "divine"))
	require.Equal(t, 0.5, table.ToChaos(1, "exalted"))
	require.Equal(t, 0.5, table.ToChaos(1, "exalted-orb"))

	table.UpdateFromLeague(0, 100)
	require.Equal(t, 60.0, table.ToChaos(1, "divine"), "non-positive divine price is ignored")
}

func TestRatesSorted(t *testing.T) {
	rates := NewTable().Rates()
	require.Len(t, rates, len(defaultRates))
	for i := 1; i < len(rates); i++ {
		require.Less(t, rates[i-1].Currency, rates[i].Currency)
	}
}

func TestNilTableUsesDefaults(t *testing.T) {
	var table *Table
	require.Equal(t, 50.0, table.ToChaos(1, "exalted"))
	require.Nil(t, table.Rates())
	require.False(t, table.Set("chaos", 2))
}

func TestConcurrentAccess(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table.Set("divine", float64(100+i))
			_ = table.ToChaos(1, "divine")
			_ = table.Rates()
		}(i)
	}
	wg.Wait()

	rate, ok := table.Rate("divine")
	require.True(t, ok)
	require.GreaterOrEqual(t, rate, 100.0)
}
