package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tradelens/tradelens/internal/output"
	"github.com/tradelens/tradelens/internal/service"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show rate limiter state",
	Long: `Show the search and fetch rate limiters: the policy learned from the
server, the current pacing interval and any active backoff.

Without --server this shows the configured starting state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reports, err := fetchLimits(cmd)
		if err != nil {
			return err
		}
		return printReport(cmd, func(format output.Format) (string, error) {
			return output.FormatLimits(format, reports)
		})
	},
}

func fetchLimits(cmd *cobra.Command) ([]service.LimiterReport, error) {
	if remote := remoteFromFlag(cmd); remote != nil {
		var body struct {
			Limiters []service.LimiterReport `json:"limiters"`
		}
		if err := remote.get(cmd.Context(), "/v1/limits", nil, &body); err != nil {
			return nil, err
		}
		return body.Limiters, nil
	}

	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.service.Limits(), nil
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	addServerFlag(limitsCmd)
	addOutputFormatFlag(limitsCmd)
}
