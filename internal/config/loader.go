package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CHARTGRID_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CHARTGRID_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.RESTHost, "CHARTGRID_EXCHANGE_REST_HOST")
	setStr(&cfg.Exchange.WSHost, "CHARTGRID_EXCHANGE_WS_HOST")
	setStr(&cfg.Exchange.Symbol, "CHARTGRID_EXCHANGE_SYMBOL")
	setInt(&cfg.Exchange.RequestsPerMinute, "CHARTGRID_EXCHANGE_REQUESTS_PER_MINUTE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CHARTGRID_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CHARTGRID_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CHARTGRID_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CHARTGRID_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CHARTGRID_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CHARTGRID_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CHARTGRID_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CHARTGRID_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CHARTGRID_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CHARTGRID_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CHARTGRID_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CHARTGRID_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CHARTGRID_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CHARTGRID_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CHARTGRID_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CHARTGRID_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CHARTGRID_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CHARTGRID_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CHARTGRID_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CHARTGRID_S3_REGION")
	setStr(&cfg.S3.Bucket, "CHARTGRID_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CHARTGRID_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CHARTGRID_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CHARTGRID_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CHARTGRID_S3_FORCE_PATH_STYLE")

	// ── Chart ──
	setInt(&cfg.Chart.Columns, "CHARTGRID_CHART_COLUMNS")
	setStringSlice(&cfg.Chart.DefaultTimeframes, "CHARTGRID_CHART_DEFAULT_TIMEFRAMES")
	setStr(&cfg.Chart.LayoutKey, "CHARTGRID_CHART_LAYOUT_KEY")
	setDuration(&cfg.Chart.PersistDebounce, "CHARTGRID_CHART_PERSIST_DEBOUNCE")
	setDuration(&cfg.Chart.RetryBase, "CHARTGRID_CHART_RETRY_BASE")
	setDuration(&cfg.Chart.RetryCap, "CHARTGRID_CHART_RETRY_CAP")
	setInt(&cfg.Chart.RetryMaxAttempts, "CHARTGRID_CHART_RETRY_MAX_ATTEMPTS")

	// ── Analysis ──
	setBool(&cfg.Analysis.SwingEnabled, "CHARTGRID_ANALYSIS_SWING_ENABLED")
	setInt(&cfg.Analysis.ComparisonWindow, "CHARTGRID_ANALYSIS_COMPARISON_WINDOW")
	setInt(&cfg.Analysis.ForwardWindow, "CHARTGRID_ANALYSIS_FORWARD_WINDOW")
	setInt(&cfg.Analysis.AnalysisWindow, "CHARTGRID_ANALYSIS_ANALYSIS_WINDOW")

	// ── Profile ──
	setInt(&cfg.Profile.LevelCount, "CHARTGRID_PROFILE_LEVEL_COUNT")
	setFloat64(&cfg.Profile.TickSize, "CHARTGRID_PROFILE_TICK_SIZE")
	setFloat64(&cfg.Profile.ValueAreaFraction, "CHARTGRID_PROFILE_VALUE_AREA_FRACTION")
	setInt(&cfg.Profile.FetchLimit, "CHARTGRID_PROFILE_FETCH_LIMIT")
	setInt(&cfg.Profile.FlushSize, "CHARTGRID_PROFILE_FLUSH_SIZE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CHARTGRID_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "CHARTGRID_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "CHARTGRID_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "CHARTGRID_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CHARTGRID_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CHARTGRID_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CHARTGRID_SERVER_RATE_LIMIT")

	// ── Top-level ──
	setStr(&cfg.Mode, "CHARTGRID_MODE")
	setStr(&cfg.LogLevel, "CHARTGRID_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
