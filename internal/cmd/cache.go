package cmd

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradelens/tradelens/internal/core/cache"
	"github.com/tradelens/tradelens/internal/output"
	"github.com/tradelens/tradelens/internal/server/handlers"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the result cache of a running server",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show result cache occupancy",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := fetchCacheStats(cmd)
		if err != nil {
			return err
		}
		return printReport(cmd, func(format output.Format) (string, error) {
			return output.FormatCacheStats(format, stats)
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached results, optionally only for one item",
	Long: `Drop cached results from a running server. An entry is dropped when its
name contains --name or its base type contains --base; with neither, the
whole cache is cleared.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := remoteFromFlag(cmd)
		if remote == nil {
			return fmt.Errorf("--server is required; the CLI keeps no cache between runs")
		}
		name, _ := cmd.Flags().GetString("name")
		base, _ := cmd.Flags().GetString("base")

		query := url.Values{}
		if name != "" {
			query.Set("name", name)
		}
		if base != "" {
			query.Set("base", base)
		}

		var body handlers.InvalidateResponse
		if err := remote.delete(cmd.Context(), "/v1/cache", query, &body); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached result(s)\n", body.Removed)
		return err
	},
}

func fetchCacheStats(cmd *cobra.Command) (cache.Stats, error) {
	remote := remoteFromFlag(cmd)
	if remote == nil {
		cfg, err := loadConfig()
		if err != nil {
			return cache.Stats{}, err
		}
		return cache.Stats{MaxEntries: cfg.Cache.MaxEntries, TTL: cfg.Cache.TTL}, nil
	}

	var body handlers.CacheStatsResponse
	if err := remote.get(cmd.Context(), "/v1/cache", nil, &body); err != nil {
		return cache.Stats{}, err
	}
	ttl, err := time.ParseDuration(body.TTL)
	if err != nil {
		return cache.Stats{}, fmt.Errorf("server reported invalid ttl %q: %w", body.TTL, err)
	}
	return cache.Stats{Total: body.Total, Valid: body.Valid, MaxEntries: body.MaxEntries, TTL: ttl}, nil
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)

	addServerFlag(cacheStatsCmd)
	addOutputFormatFlag(cacheStatsCmd)
	addServerFlag(cacheClearCmd)
	cacheClearCmd.Flags().String("name", "", "only drop results for this item name")
	cacheClearCmd.Flags().String("base", "", "only drop results for this base type")
}
