package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mattvy/chartgrid/internal/domain"
)

// CandleStore implements domain.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *pgxpool.Pool
}

// NewCandleStore creates a new CandleStore backed by the given connection pool.
func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// InsertBatch upserts candles for one interval. The forming candle's OHLCV
// keeps changing until the bucket closes, so conflicts overwrite instead of
// skipping.
func (s *CandleStore) InsertBatch(ctx context.Context, interval string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO candles (
			interval, open_time, open, high, low, close, volume
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		) ON CONFLICT (interval, open_time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`

	for _, c := range candles {
		batch.Queue(query,
			interval, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert candle batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns up to limit most recent candles for the interval,
// oldest first.
func (s *CandleStore) ListRecent(ctx context.Context, interval string, limit int) ([]domain.Candle, error) {
	const query = `
		SELECT open_time, open, high, low, close, volume
		FROM candles
		WHERE interval = $1
		ORDER BY open_time DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent candles: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate candles: %w", err)
	}

	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// Compile-time interface check.
var _ domain.CandleStore = (*CandleStore)(nil)
