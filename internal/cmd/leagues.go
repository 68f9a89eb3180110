package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tradelens/tradelens/internal/core/trade"
	"github.com/tradelens/tradelens/internal/observability"
	"github.com/tradelens/tradelens/internal/output"
)

var leaguesCmd = &cobra.Command{
	Use:   "leagues",
	Short: "List the leagues the trade site accepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		leagues, err := a.service.Leagues(cmd.Context())
		if err != nil {
			return err
		}
		return printReport(cmd, func(format output.Format) (string, error) {
			return output.FormatLeagues(format, leagues)
		})
	},
}

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Show the currency conversion table",
	Long: `Show the chaos value of each currency used to compare listings. With the
auxiliary price source enabled the table is refreshed from the current
league economy first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if a.service.Scout != nil {
			if err := a.service.Scout.LoadRates(cmd.Context()); err != nil {
				observability.CLILogger.Warn("Using default currency rates", zap.Error(err))
			}
		}
		rates := a.service.CurrencyRates()
		return printReport(cmd, func(format output.Format) (string, error) {
			return output.FormatRates(format, rates)
		})
	},
}

func init() {
	rootCmd.AddCommand(leaguesCmd)
	rootCmd.AddCommand(ratesCmd)
	addOutputFormatFlag(leaguesCmd)
	addOutputFormatFlag(ratesCmd)
}

func leagueKnown(leagues []trade.League, league string) bool {
	for _, l := range leagues {
		if strings.EqualFold(l.ID, league) || strings.EqualFold(l.Text, league) {
			return true
		}
	}
	return false
}
