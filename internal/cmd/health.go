package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tradelens/tradelens/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Verify the configuration is valid, the history store opens and the trade
site answers a league listing. --offline skips the network check.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		offline, _ := cmd.Flags().GetBool("offline")

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
		}
		logger.Info("✅ Configuration valid", zap.String("league", cfg.Trade.League))

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		db, err := openStore(ctx, cfg.Store)
		if err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "History store unavailable", err)
		}
		_ = db.Close()
		logger.Info("✅ History store ready", zap.String("database", storeLocation(cfg.Store)))

		if offline {
			logger.Info("✅ All health checks passed (offline)")
			return
		}

		a, err := newApp(ctx, appOptions{})
		if err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Service initialization failed", err)
		}
		defer a.Close()

		leagues, err := a.service.Leagues(ctx)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Trade site unreachable", err)
		}
		if !leagueKnown(leagues, cfg.Trade.League) {
			logger.Warn(fmt.Sprintf("⚠️  League %q is not listed by the trade site", cfg.Trade.League))
		}
		logger.Info("✅ Trade site reachable", zap.Int("leagues", len(leagues)))
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().Bool("offline", false, "skip the trade site check")
}
