package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradelens/tradelens/internal/config"
	"github.com/tradelens/tradelens/internal/core/store"
	errwrap "github.com/tradelens/tradelens/internal/errors"
	"github.com/tradelens/tradelens/internal/metrics"
	"github.com/tradelens/tradelens/internal/observability"
	"github.com/tradelens/tradelens/internal/server"
	"github.com/tradelens/tradelens/internal/server/handlers"
	"github.com/tradelens/tradelens/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP search service",
	Long: `Start the HTTP search service. Limiter state and the result cache live as
long as the process, so repeated searches share pacing and cached results.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload the stat catalogue and currency rates`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().Bool("no-history", false, "serve without the scan history store")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errwrap.Wrap(cmd.Context(), errwrap.CodeConfigInvalid, err, "invalid configuration")
	}

	observability.InitServerLogger(config.AppName, cfg.Logging)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}
		metrics.SetServerStartTime(time.Now().Unix())
	}

	var db *store.Store
	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		db, err = openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return errwrap.WrapDatabase(cmd.Context(), err, "history store unavailable")
		}
	}

	svc, err := service.New(cfg, service.Options{Store: db, Logger: logger})
	if err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "service initialization failed")
	}

	health := handlers.NewHealthManager(versionInfo.Version)
	if cfg.Metrics.Enabled {
		health.RegisterChecker("telemetry", handlers.HealthCheckerFunc(func(ctx context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errors.New("telemetry system not initialized")
			}
			return nil
		}))
	}
	if db != nil {
		health.RegisterChecker("history_store", handlers.HealthCheckerFunc(func(ctx context.Context) error {
			return db.DB.PingContext(ctx)
		}))
	}

	info := &handlers.ServiceInfo{
		League:         cfg.Trade.League,
		TradeAPI:       cfg.Trade.BaseURL,
		HistoryEnabled: db != nil,
	}
	if svc.Scout != nil {
		info.AuxSource = cfg.Scout.BaseURL
	}
	handlers.SetServiceInfo(info)

	srv := server.New(cfg.Server, &handlers.API{Backend: svc}, health)

	logger.Info("Initializing server",
		zap.String("version", versionInfo.Version),
		zap.String("addr", srv.Addr()),
		zap.String("league", cfg.Trade.League),
		zap.Bool("history", db != nil),
		zap.Bool("aux_prices", svc.Scout != nil),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	registerShutdown(srv, db, cfg.Server.ShutdownTimeout)
	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading stat catalogue and currency rates")
		if err := svc.Warmup(ctx); err != nil {
			logger.Warn("Reload incomplete", zap.Error(err))
		}
		return nil
	})
	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(srv.Start)
	g.Go(func() error {
		// Searches before warmup still work; modifier text just cannot be resolved yet.
		if err := svc.Warmup(ctx); err != nil {
			logger.Warn("Warmup incomplete", zap.Error(err))
			return nil
		}
		logger.Info("Warmup complete", zap.Int("stats", svc.StatIndex().Len()))
		return nil
	})
	go func() {
		if err := signals.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Signal handler error", zap.Error(err))
		}
	}()

	if err := g.Wait(); err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "server error")
	}
	return nil
}

// registerShutdown installs the shutdown handlers; they run in LIFO order,
// so the HTTP server stops before the store closes and the logger flushes.
func registerShutdown(srv *server.Server, db *store.Store, timeout time.Duration) {
	logger := observability.ServerLogger
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	signals.OnShutdown(func(ctx context.Context) error {
		if err := logger.Sync(); err != nil {
			// stdout/stderr may already be closed
			logger.Debug("Logger sync returned error", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close history store", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})
}
