package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradelens/tradelens/internal/core"
)

func TestParseItemsSingleYAML(t *testing.T) {
	items, err := parseItems([]byte(`
base_type: Ruby Ring
rarity: rare
modifiers:
  - text: "+60 to maximum Life"
    value: 60
  - id: explicit.stat_3372524247
    text: "+30% to Fire Resistance"
    enabled: false
`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, core.RarityRare, items[0].Rarity)
	require.Len(t, items[0].Modifiers, 2)
	require.True(t, items[0].Modifiers[0].Enabled)
	require.False(t, items[0].Modifiers[1].Enabled)
}

func TestParseItemsListAndWrapper(t *testing.T) {
	items, err := parseItems([]byte(`[{"name":"Headhunter","base_type":"Leather Belt","rarity":"Unique"},{"base_type":"Divine Orb","rarity":"currency"}]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, core.RarityCurrency, items[1].Rarity)

	items, err = parseItems([]byte("items:\n  - base_type: Ruby Ring\n  - base_type: Gold Ring\n"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Gold Ring", items[1].BaseType)
}

func TestParseItemsRejectsEmptyAndScalars(t *testing.T) {
	_, err := parseItems([]byte("   \n"))
	require.Error(t, err)

	_, err = parseItems([]byte("just a string"))
	require.Error(t, err)

	_, err = parseItems([]byte("items: []"))
	require.Error(t, err)
}

func TestReadItemsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"base_type":"Ruby Ring"}`), 0o600))

	items, err := readItemsFile(path)
	require.NoError(t, err)
	require.Equal(t, "Ruby Ring", items[0].BaseType)

	_, err = readItemsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseModifier(t *testing.T) {
	mod, err := parseModifier("explicit.stat_3299347043=60")
	require.NoError(t, err)
	require.Equal(t, "explicit.stat_3299347043", mod.ID)
	require.NotNil(t, mod.Value)
	require.InDelta(t, 60, *mod.Value, 0.001)

	mod, err = parseModifier("+25% increased Movement Speed")
	require.NoError(t, err)
	require.Empty(t, mod.ID)
	require.Equal(t, "+25% increased Movement Speed", mod.Text)
	require.InDelta(t, 25, *mod.Value, 0.001)

	mod, err = parseModifier("pseudo.pseudo_total_life")
	require.NoError(t, err)
	require.Equal(t, "pseudo.pseudo_total_life", mod.ID)
	require.Nil(t, mod.Value)

	_, err = parseModifier("explicit.life=lots")
	require.Error(t, err)

	_, err = parseModifier("  ")
	require.Error(t, err)
}
