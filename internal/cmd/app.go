package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tradelens/tradelens/internal/config"
	"github.com/tradelens/tradelens/internal/core/store"
	"github.com/tradelens/tradelens/internal/observability"
	"github.com/tradelens/tradelens/internal/service"
)

// app is a configured service plus whatever it opened.
type app struct {
	cfg     *config.Config
	service *service.Service
	store   *store.Store
}

// Close releases the history store.
func (a *app) Close() {
	if a == nil || a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		observability.CLILogger.Debug("Failed to close history store", zap.Error(err))
	}
}

type appOptions struct {
	// history opens the scan history store.
	history bool
	// warmup loads the stat catalogue and currency rates before returning.
	warmup bool
}

// newApp loads configuration and wires a service for a CLI command.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if opts.history {
		db, err := openStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		a.store = db
	}

	svc, err := service.New(cfg, service.Options{
		Store:  a.store,
		Logger: observability.CLILogger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = svc

	if opts.warmup {
		// Modifier text can still be searched by ID; a failed warmup is not fatal.
		if err := svc.Warmup(ctx); err != nil {
			observability.CLILogger.Warn("Warmup incomplete", zap.Error(err))
		}
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	return db, nil
}

// storeLocation returns the resolved database location for display.
func storeLocation(cfg config.StoreConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	path := cfg.Path
	if path == "" {
		path = config.DefaultStorePath()
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
