package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/observability"
	"github.com/tradelens/tradelens/internal/output"
)

var searchCmd = &cobra.Command{
	Use:   "search [name]",
	Short: "Price an item on the trade site",
	Long: `Price an item by searching the trade site tier by tier, relaxing the
query until enough listings are found.

Examples:
  # Price a unique by name and base type
  tradelens search "Headhunter" --base "Leather Belt" --rarity unique

  # Price a rare by its modifiers (text is resolved to stat ids)
  tradelens search --base "Ruby Ring" --rarity rare \
    --mod "+60 to maximum Life" --mod "+30% to Fire Resistance"

  # Price every item in a file and write JSON
  tradelens search --item items.yaml --output-format json --out prices.json`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("base", "", "item base type")
	searchCmd.Flags().String("rarity", "", "item rarity: normal, magic, rare, unique, currency, gem")
	searchCmd.Flags().String("class", "", "item class")
	searchCmd.Flags().StringArray("mod", nil, "modifier text or stat.id=value (repeatable)")
	searchCmd.Flags().Int("ilvl", 0, "minimum item level")
	searchCmd.Flags().String("item", "", "YAML or JSON file with one or more items (- for stdin)")
	searchCmd.Flags().Bool("no-history", false, "do not record the search in scan history")
	searchCmd.Flags().StringP("output-format", "o", "table", "output format: table, json, markdown")
	searchCmd.Flags().String("out", "", "write output to a file instead of stdout")
}

func runSearch(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	items, err := resolveItems(cmd, args)
	if err != nil {
		return err
	}
	noHistory, _ := cmd.Flags().GetBool("no-history")

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{history: !noHistory, warmup: true})
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]*core.SearchResult, 0, len(items))
	for _, item := range items {
		result := a.service.Search(ctx, item)
		observability.CLILogger.Debug("Search finished",
			zap.String("item", result.Item),
			zap.String("reason", result.Reason),
			zap.Int("stopped_at_tier", result.StoppedAtTier),
			zap.Int("remote_calls", result.TotalRemoteCalls))
		results = append(results, result)
		if result.Reason == core.ReasonCancelled {
			break
		}
	}

	outPath, _ := cmd.Flags().GetString("out")
	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer sink.close() // nolint:errcheck

	var rendered string
	if len(results) == 1 {
		rendered, err = output.NewFormatter(format).FormatSearch(results[0])
	} else {
		rendered, err = output.FormatSearchList(format, results)
	}
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
		return err
	}
	if sink.path != "-" {
		observability.CLILogger.Info("Search results written", zap.String("path", sink.path))
	}

	for _, result := range results {
		if result.Success {
			return nil
		}
	}
	return fmt.Errorf("no price found for %s", describeItems(items))
}

// resolveItems builds criteria from --item or from the positional name and
// item flags, which are mutually exclusive.
func resolveItems(cmd *cobra.Command, args []string) ([]core.SearchCriteria, error) {
	itemFile, _ := cmd.Flags().GetString("item")
	base, _ := cmd.Flags().GetString("base")
	rarity, _ := cmd.Flags().GetString("rarity")
	class, _ := cmd.Flags().GetString("class")
	rawMods, _ := cmd.Flags().GetStringArray("mod")
	itemLevel, _ := cmd.Flags().GetInt("ilvl")

	if strings.TrimSpace(itemFile) != "" {
		if len(args) > 0 || base != "" || len(rawMods) > 0 {
			return nil, fmt.Errorf("--item cannot be combined with a name, --base or --mod")
		}
		return readItemsFile(itemFile)
	}

	criteria := core.SearchCriteria{
		Name:      strings.TrimSpace(strings.Join(args, " ")),
		BaseType:  strings.TrimSpace(base),
		Rarity:    core.ParseRarity(rarity),
		ItemClass: strings.TrimSpace(class),
		ItemLevel: itemLevel,
	}
	for _, raw := range rawMods {
		mod, err := parseModifier(raw)
		if err != nil {
			return nil, err
		}
		criteria.Modifiers = append(criteria.Modifiers, mod)
	}
	if criteria.Name == "" && criteria.BaseType == "" {
		return nil, fmt.Errorf("an item name, --base or --item is required")
	}
	return []core.SearchCriteria{criteria}, nil
}

func describeItems(items []core.SearchCriteria) string {
	if len(items) == 1 {
		return items[0].DisplayName()
	}
	return fmt.Sprintf("any of %d items", len(items))
}
