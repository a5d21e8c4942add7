package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattvy/chartgrid/internal/domain"
)

// RecordingSource decorates a market data source, teeing every successful
// candle fetch into the archival store. Store failures are logged and never
// surface to the reading panel.
type RecordingSource struct {
	inner   domain.MarketDataSource
	candles domain.CandleStore
	logger  *slog.Logger
}

// NewRecordingSource wraps source so candle reads are archived.
func NewRecordingSource(source domain.MarketDataSource, candles domain.CandleStore, logger *slog.Logger) *RecordingSource {
	return &RecordingSource{
		inner:   source,
		candles: candles,
		logger:  logger.With(slog.String("component", "recording_source")),
	}
}

// Candles fetches from the wrapped source and records the result.
func (r *RecordingSource) Candles(ctx context.Context, interval string, limit int) ([]domain.Candle, error) {
	candles, err := r.inner.Candles(ctx, interval, limit)
	if err != nil {
		return nil, err
	}

	go r.record(interval, candles)
	return candles, nil
}

// Trades passes through to the wrapped source; the live feed already records
// trade prints.
func (r *RecordingSource) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	return r.inner.Trades(ctx, limit)
}

func (r *RecordingSource) record(interval string, candles []domain.Candle) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.candles.InsertBatch(ctx, interval, candles); err != nil {
		r.logger.Warn("candle archive write failed",
			slog.String("interval", interval),
			slog.Int("candles", len(candles)),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.MarketDataSource = (*RecordingSource)(nil)
