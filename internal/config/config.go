// Package config defines the top-level configuration for the chart grid
// server and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattvy/chartgrid/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CHARTGRID_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Chart    ChartConfig    `toml:"chart"`
	Analysis AnalysisConfig `toml:"analysis"`
	Profile  ProfileConfig  `toml:"profile"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds exchange API endpoints and the traded symbol.
type ExchangeConfig struct {
	RESTHost string `toml:"rest_host"`
	WSHost   string `toml:"ws_host"`
	Symbol   string `toml:"symbol"`
	// RequestsPerMinute budgets REST calls through the shared rate limiter.
	// Zero disables budgeting.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// PostgresConfig holds PostgreSQL connection parameters. The database is
// optional: when disabled, candles are never recorded and the profile is
// built from live exchange trades only.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. Optional: when
// disabled, trade archiving and profile snapshots are unavailable.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ChartConfig holds grid layout and panel lifecycle parameters.
type ChartConfig struct {
	Columns           int      `toml:"columns"`
	DefaultTimeframes []string `toml:"default_timeframes"`
	LayoutKey         string   `toml:"layout_key"`
	PersistDebounce   duration `toml:"persist_debounce"`
	RetryBase         duration `toml:"retry_base"`
	RetryCap          duration `toml:"retry_cap"`
	RetryMaxAttempts  int      `toml:"retry_max_attempts"`
}

// AnalysisConfig holds the initial shared swing-analysis settings. The
// registry owns these at runtime; the config only seeds them.
type AnalysisConfig struct {
	SwingEnabled     bool `toml:"swing_enabled"`
	ComparisonWindow int  `toml:"comparison_window"`
	ForwardWindow    int  `toml:"forward_window"`
	AnalysisWindow   int  `toml:"analysis_window"`
}

// ProfileConfig holds volume profile parameters.
type ProfileConfig struct {
	LevelCount        int     `toml:"level_count"`
	TickSize          float64 `toml:"tick_size"`
	ValueAreaFraction float64 `toml:"value_area_fraction"`
	FetchLimit        int     `toml:"fetch_limit"`
	FlushSize         int     `toml:"flush_size"`
}

// ArchiveConfig holds trade archive sweep parameters. Requires both postgres
// and s3 to be enabled.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			RESTHost:          "https://api.binance.com",
			WSHost:            "wss://stream.binance.com:9443",
			Symbol:            "BTCUSDT",
			RequestsPerMinute: 1200,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "chartgrid",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "chartgrid-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Chart: ChartConfig{
			Columns:           2,
			DefaultTimeframes: []string{"1h", "4h", "1d", "1w"},
			LayoutKey:         "chartgrid:layout",
			PersistDebounce:   duration{500 * time.Millisecond},
			RetryBase:         duration{500 * time.Millisecond},
			RetryCap:          duration{30 * time.Second},
			RetryMaxAttempts:  5,
		},
		Analysis: AnalysisConfig{
			SwingEnabled:     true,
			ComparisonWindow: 5,
			ForwardWindow:    3,
			AnalysisWindow:   200,
		},
		Profile: ProfileConfig{
			LevelCount:        24,
			TickSize:          0,
			ValueAreaFraction: 0.7,
			FetchLimit:        1000,
			FlushSize:         200,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 1 * *",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if c.Exchange.RESTHost == "" {
		errs = append(errs, "exchange: rest_host must not be empty")
	}
	if c.Exchange.WSHost == "" {
		errs = append(errs, "exchange: ws_host must not be empty")
	}
	if strings.TrimSpace(c.Exchange.Symbol) == "" {
		errs = append(errs, "exchange: symbol must not be empty")
	}
	if c.Exchange.RequestsPerMinute < 0 {
		errs = append(errs, "exchange: requests_per_minute must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Chart
	if c.Chart.Columns < 1 {
		errs = append(errs, "chart: columns must be >= 1")
	}
	if c.Chart.LayoutKey == "" {
		errs = append(errs, "chart: layout_key must not be empty")
	}
	if len(c.Chart.DefaultTimeframes) == 0 {
		errs = append(errs, "chart: default_timeframes must not be empty")
	}
	for _, id := range c.Chart.DefaultTimeframes {
		if _, ok := domain.TimeframeByID(id); !ok {
			errs = append(errs, fmt.Sprintf("chart: unknown default timeframe %q", id))
		}
	}
	if c.Chart.RetryBase.Duration <= 0 {
		errs = append(errs, "chart: retry_base must be > 0")
	}
	if c.Chart.RetryCap.Duration < c.Chart.RetryBase.Duration {
		errs = append(errs, "chart: retry_cap must be >= retry_base")
	}
	if c.Chart.RetryMaxAttempts < 0 {
		errs = append(errs, "chart: retry_max_attempts must be >= 0")
	}

	// Analysis
	if c.Analysis.SwingEnabled {
		if c.Analysis.ComparisonWindow < 1 {
			errs = append(errs, "analysis: comparison_window must be >= 1")
		}
		if c.Analysis.ForwardWindow < 1 {
			errs = append(errs, "analysis: forward_window must be >= 1")
		}
		if c.Analysis.AnalysisWindow < 1 {
			errs = append(errs, "analysis: analysis_window must be >= 1")
		}
	}

	// Profile
	if c.Profile.LevelCount < 1 {
		errs = append(errs, "profile: level_count must be >= 1")
	}
	if c.Profile.TickSize < 0 {
		errs = append(errs, "profile: tick_size must be >= 0")
	}
	if c.Profile.ValueAreaFraction <= 0 || c.Profile.ValueAreaFraction > 1 {
		errs = append(errs, "profile: value_area_fraction must be in (0, 1]")
	}
	if c.Profile.FetchLimit < 1 {
		errs = append(errs, "profile: fetch_limit must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres to be enabled")
		}
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3 to be enabled")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
