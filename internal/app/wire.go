package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/mattvy/chartgrid/internal/blob/s3"
	"github.com/mattvy/chartgrid/internal/cache/redis"
	"github.com/mattvy/chartgrid/internal/chart"
	"github.com/mattvy/chartgrid/internal/config"
	"github.com/mattvy/chartgrid/internal/domain"
	"github.com/mattvy/chartgrid/internal/feed"
	"github.com/mattvy/chartgrid/internal/platform/binance"
	"github.com/mattvy/chartgrid/internal/server/ws"
	"github.com/mattvy/chartgrid/internal/service"
	"github.com/mattvy/chartgrid/internal/store/postgres"
)

// Dependencies bundles every dependency that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores. CandleStore and TradeStore are nil when postgres is disabled.
	CandleStore domain.CandleStore
	TradeStore  domain.TradeStore
	LayoutStore domain.LayoutStore

	// Coordination
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage. Nil when s3 is disabled.
	BlobWriter domain.BlobWriter
	BlobReader *s3blob.Reader
	Archiver   *s3blob.Archiver

	// Market data
	Source domain.MarketDataSource

	// Core
	Hub      *ws.Hub
	Registry *chart.Registry
	Profiles *service.ProfileService
	Feed     *feed.TradeFeed
}

// budgetLimiter adapts a domain.RateLimiter so Wait enforces a configured
// budget instead of the limiter's built-in 1 req/s default.
type budgetLimiter struct {
	domain.RateLimiter
	limit  int
	window time.Duration
}

func (b budgetLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := b.Allow(ctx, key, b.limit, b.window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(50 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (layout persistence, locks, rate limiting) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.LayoutStore = redis.NewLayoutStore(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- PostgreSQL (optional candle/trade persistence) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.CandleStore = postgres.NewCandleStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
	}

	// --- S3 blob storage (optional archives and snapshots) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		// Archiver needs rows to sweep, so it also requires postgres.
		if pgTrades, ok := deps.TradeStore.(*postgres.TradeStore); ok {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, pgTrades, logger)
		}
	}

	// --- Exchange market data ---
	var restLimiter domain.RateLimiter
	if cfg.Exchange.RequestsPerMinute > 0 {
		restLimiter = budgetLimiter{
			RateLimiter: deps.RateLimiter,
			limit:       cfg.Exchange.RequestsPerMinute,
			window:      time.Minute,
		}
	}
	deps.Source = binance.NewRESTClient(cfg.Exchange.RESTHost, cfg.Exchange.Symbol, restLimiter)
	if deps.CandleStore != nil {
		deps.Source = service.NewRecordingSource(deps.Source, deps.CandleStore, logger)
	}

	// --- WebSocket hub and panel registry ---
	deps.Hub = ws.NewHub(logger)
	deps.Registry = chart.NewRegistry(chart.RegistryConfig{
		LayoutKey:         cfg.Chart.LayoutKey,
		Columns:           cfg.Chart.Columns,
		DefaultTimeframes: cfg.Chart.DefaultTimeframes,
		PersistDebounce:   cfg.Chart.PersistDebounce.Duration,
		Retry: chart.RetryPolicy{
			Base:        cfg.Chart.RetryBase.Duration,
			Cap:         cfg.Chart.RetryCap.Duration,
			MaxAttempts: cfg.Chart.RetryMaxAttempts,
		},
	}, deps.Source, deps.Hub, deps.LayoutStore, domain.AnalysisSettings{
		SwingEnabled:     cfg.Analysis.SwingEnabled,
		ComparisonWindow: cfg.Analysis.ComparisonWindow,
		ForwardWindow:    cfg.Analysis.ForwardWindow,
		AnalysisWindow:   cfg.Analysis.AnalysisWindow,
	}, logger)
	deps.Hub.SetResizeHandler(deps.Registry.ResizeResource)

	// --- Volume profile service ---
	deps.Profiles = service.NewProfileService(service.ProfileConfig{
		LevelCount:        cfg.Profile.LevelCount,
		TickSize:          cfg.Profile.TickSize,
		ValueAreaFraction: cfg.Profile.ValueAreaFraction,
		FetchLimit:        cfg.Profile.FetchLimit,
		FlushSize:         cfg.Profile.FlushSize,
	}, deps.Source, deps.TradeStore, deps.BlobWriter, logger)

	// --- Live trade feed ---
	deps.Feed = feed.NewTradeFeed(cfg.Exchange.WSHost, cfg.Exchange.Symbol, logger)
	deps.Feed.OnTrade(deps.Profiles.OnTrade)

	return deps, cleanup, nil
}
