package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration. Values are
// layered: built-in defaults, then the user config file, then TRADELENS_*
// environment variables and command flags.
type Config struct {
	Trade   TradeConfig   `mapstructure:"trade"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Search  SearchConfig  `mapstructure:"search"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Scout   ScoutConfig   `mapstructure:"scout"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// TradeConfig points the client at the trade API.
type TradeConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	League    string        `mapstructure:"league"`
	SessionID string        `mapstructure:"session_id"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LimitsConfig holds the floor intervals of the adaptive limiters.
type LimitsConfig struct {
	SearchInterval time.Duration `mapstructure:"search_interval"`
	FetchInterval  time.Duration `mapstructure:"fetch_interval"`
}

// SearchConfig tunes the tiered search loop.
type SearchConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	EarlyStopCount int           `mapstructure:"early_stop_count"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
}

// CacheConfig bounds the in-memory result cache.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// ScoutConfig controls the poe2scout price source.
type ScoutConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	URL          string `mapstructure:"url"`
	AuthToken    string `mapstructure:"auth_token"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate rejects settings the search engine cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Trade.BaseURL) == "" {
		add("trade.base_url is required")
	}
	if strings.TrimSpace(c.Trade.League) == "" {
		add("trade.league is required")
	}
	if c.Trade.Timeout <= 0 {
		add("trade.timeout must be positive")
	}
	if c.Limits.SearchInterval < 0 {
		add("limits.search_interval must not be negative")
	}
	if c.Limits.FetchInterval < 0 {
		add("limits.fetch_interval must not be negative")
	}
	if c.Search.MaxRetries < 0 {
		add("search.max_retries must not be negative")
	}
	if c.Search.EarlyStopCount <= 0 {
		add("search.early_stop_count must be positive")
	}
	if c.Search.CallTimeout <= 0 {
		add("search.call_timeout must be positive")
	}
	if c.Cache.TTL <= 0 {
		add("cache.ttl must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		add("cache.max_entries must be positive")
	}
	if c.Scout.Enabled && c.Scout.Interval <= 0 {
		add("scout.interval must be positive")
	}
	if c.Store.HistoryLimit < 0 {
		add("store.history_limit must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port %d is out of range", c.Server.Port)
	}
	if level := strings.ToLower(strings.TrimSpace(c.Logging.Level)); level != "" && !validLogLevels[level] {
		add("logging.level %q is not one of trace, debug, info, warn, error", c.Logging.Level)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
