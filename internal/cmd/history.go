package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelens/tradelens/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded searches",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent searches, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		a, err := newApp(cmd.Context(), appOptions{history: true})
		if err != nil {
			return err
		}
		defer a.Close()

		scans, err := a.service.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return printReport(cmd, func(format output.Format) (string, error) {
			return output.FormatHistory(format, scans)
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{history: true})
		if err != nil {
			return err
		}
		defer a.Close()

		scan, err := a.service.Scan(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("scan %s: %w", args[0], err)
		}
		return printReport(cmd, func(format output.Format) (string, error) {
			return output.FormatScan(format, scan)
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{history: true})
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.service.ClearHistory(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d scan(s) from %s\n", removed, storeLocation(a.cfg.Store))
		return err
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().IntP("limit", "n", 20, "number of scans to show")
	addOutputFormatFlag(historyListCmd)
	addOutputFormatFlag(historyShowCmd)
}
