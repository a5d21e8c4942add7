// Package service contains the application services gluing market data,
// analysis, and persistence together.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattvy/chartgrid/internal/analysis"
	"github.com/mattvy/chartgrid/internal/domain"
)

// defaultFlushSize is the live-trade buffer size that triggers a store flush.
const defaultFlushSize = 200

// ProfileConfig holds the volume profile parameters.
type ProfileConfig struct {
	// LevelCount is the number of price bins when no tick size is forced.
	LevelCount int
	// TickSize overrides the derived bin width when positive.
	TickSize float64
	// ValueAreaFraction is the volume share the value area must cover.
	ValueAreaFraction float64
	// FetchLimit is how many recent trades a profile is built from.
	FetchLimit int
	// FlushSize is the live buffer size that triggers a store flush.
	FlushSize int
}

// ProfileService builds volume profiles from trade prints. It serves
// on-demand profiles from the trade history, buffers live stream trades into
// the archival store, and uploads profile snapshots to object storage.
type ProfileService struct {
	cfg    ProfileConfig
	source domain.MarketDataSource
	store  domain.TradeStore // optional
	writer domain.BlobWriter // optional
	logger *slog.Logger

	mu     sync.Mutex
	buffer []domain.Trade
}

// NewProfileService creates a ProfileService. store and writer may be nil;
// buffering and snapshot upload are disabled respectively.
func NewProfileService(cfg ProfileConfig, source domain.MarketDataSource,
	store domain.TradeStore, writer domain.BlobWriter, logger *slog.Logger) *ProfileService {
	if cfg.LevelCount <= 0 {
		cfg.LevelCount = 24
	}
	if cfg.ValueAreaFraction <= 0 || cfg.ValueAreaFraction > 1 {
		cfg.ValueAreaFraction = 0.7
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 1000
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = defaultFlushSize
	}
	return &ProfileService{
		cfg:    cfg,
		source: source,
		store:  store,
		writer: writer,
		logger: logger.With(slog.String("component", "profile_service")),
	}
}

// Profile builds the current volume profile. Trades come from the archival
// store when one is wired, falling back to a direct exchange fetch.
func (s *ProfileService) Profile(ctx context.Context) (domain.VolumeProfile, error) {
	trades, err := s.recentTrades(ctx)
	if err != nil {
		return domain.VolumeProfile{}, err
	}
	return analysis.BuildProfile(trades, s.cfg.LevelCount, s.cfg.TickSize, s.cfg.ValueAreaFraction), nil
}

// Snapshot builds the current profile and uploads it as a timestamped JSON
// object under profiles/. Without a blob writer it only builds the profile.
func (s *ProfileService) Snapshot(ctx context.Context) (domain.VolumeProfile, error) {
	profile, err := s.Profile(ctx)
	if err != nil {
		return domain.VolumeProfile{}, err
	}
	if s.writer == nil {
		return profile, nil
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return domain.VolumeProfile{}, fmt.Errorf("service: marshal profile snapshot: %w", err)
	}

	path := snapshotPath(time.Now().UTC())
	if err := s.writer.Put(ctx, path, data, "application/json"); err != nil {
		return domain.VolumeProfile{}, fmt.Errorf("service: upload profile snapshot: %w", err)
	}

	s.logger.Info("profile snapshot uploaded",
		slog.String("path", path),
		slog.Int("levels", len(profile.Levels)),
	)
	return profile, nil
}

// OnTrade buffers one live trade and flushes the buffer to the archival
// store when it fills. It is the feed-facing handler and must not block the
// read loop on store latency, so flushes run on their own goroutine.
func (s *ProfileService) OnTrade(ctx context.Context, trade domain.Trade) {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, trade)
	var batch []domain.Trade
	if len(s.buffer) >= s.cfg.FlushSize {
		batch = s.buffer
		s.buffer = nil
	}
	s.mu.Unlock()

	if batch != nil {
		go s.flush(batch)
	}
}

// Flush writes any buffered trades to the store, for shutdown.
func (s *ProfileService) Flush(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := s.store.InsertBatch(ctx, batch); err != nil {
		return fmt.Errorf("service: flush trade buffer: %w", err)
	}
	return nil
}

func (s *ProfileService) flush(batch []domain.Trade) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.InsertBatch(ctx, batch); err != nil {
		s.logger.Warn("trade buffer flush failed",
			slog.Int("trades", len(batch)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ProfileService) recentTrades(ctx context.Context) ([]domain.Trade, error) {
	if s.store != nil {
		trades, err := s.store.ListRecent(ctx, s.cfg.FetchLimit)
		if err == nil && len(trades) > 0 {
			return trades, nil
		}
		if err != nil {
			s.logger.Warn("trade store read failed, falling back to exchange",
				slog.String("error", err.Error()))
		}
	}

	trades, err := s.source.Trades(ctx, s.cfg.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("service: fetch trades: %w", err)
	}
	return trades, nil
}

func snapshotPath(at time.Time) string {
	return "profiles/" + at.Format("2006-01-02/150405") + ".json"
}
