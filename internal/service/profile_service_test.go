package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattvy/chartgrid/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubSource struct {
	candles []domain.Candle
	trades  []domain.Trade
	err     error
}

func (s *stubSource) Candles(ctx context.Context, interval string, limit int) ([]domain.Candle, error) {
	return s.candles, s.err
}

func (s *stubSource) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	return s.trades, s.err
}

type stubTradeStore struct {
	mu       sync.Mutex
	inserted []domain.Trade
	recent   []domain.Trade
	listErr  error
}

func (s *stubTradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, trades...)
	return nil
}

func (s *stubTradeStore) ListRecent(ctx context.Context, limit int) ([]domain.Trade, error) {
	return s.recent, s.listErr
}

func (s *stubTradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return nil, nil
}

func (s *stubTradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (s *stubTradeStore) insertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

type stubWriter struct {
	mu    sync.Mutex
	paths []string
}

func (w *stubWriter) Put(ctx context.Context, path string, data []byte, contentType string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = append(w.paths, path)
	return nil
}

func trade(price, qty float64) domain.Trade {
	return domain.Trade{
		Price:    price,
		Quantity: qty,
		Side:     "buy",
		Time:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProfileService_ProfilePrefersStore(t *testing.T) {
	store := &stubTradeStore{recent: []domain.Trade{trade(100, 1), trade(110, 5)}}
	source := &stubSource{trades: []domain.Trade{trade(999, 1)}}
	svc := NewProfileService(ProfileConfig{LevelCount: 2}, source, store, nil, testLogger)

	profile, err := svc.Profile(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 6, profile.TotalVolume, 1e-9)
	assert.InDelta(t, 110, profile.PointOfControl, 1e-9)
}

func TestProfileService_ProfileFallsBackToSource(t *testing.T) {
	store := &stubTradeStore{listErr: errors.New("db down")}
	source := &stubSource{trades: []domain.Trade{trade(100, 2), trade(100, 3)}}
	svc := NewProfileService(ProfileConfig{}, source, store, nil, testLogger)

	profile, err := svc.Profile(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 5, profile.TotalVolume, 1e-9)
}

func TestProfileService_OnTradeFlushesAtThreshold(t *testing.T) {
	store := &stubTradeStore{}
	svc := NewProfileService(ProfileConfig{FlushSize: 3}, &stubSource{}, store, nil, testLogger)

	ctx := context.Background()
	svc.OnTrade(ctx, trade(100, 1))
	svc.OnTrade(ctx, trade(101, 1))
	assert.Equal(t, 0, store.insertedCount())

	svc.OnTrade(ctx, trade(102, 1))
	require.Eventually(t, func() bool {
		return store.insertedCount() == 3
	}, time.Second, time.Millisecond)
}

func TestProfileService_FlushDrainsBuffer(t *testing.T) {
	store := &stubTradeStore{}
	svc := NewProfileService(ProfileConfig{FlushSize: 100}, &stubSource{}, store, nil, testLogger)

	ctx := context.Background()
	svc.OnTrade(ctx, trade(100, 1))
	svc.OnTrade(ctx, trade(101, 1))

	require.NoError(t, svc.Flush(ctx))
	assert.Equal(t, 2, store.insertedCount())

	// A second flush with an empty buffer is a no-op.
	require.NoError(t, svc.Flush(ctx))
	assert.Equal(t, 2, store.insertedCount())
}

func TestProfileService_SnapshotUploads(t *testing.T) {
	store := &stubTradeStore{recent: []domain.Trade{trade(100, 1), trade(110, 5)}}
	writer := &stubWriter{}
	svc := NewProfileService(ProfileConfig{LevelCount: 2}, &stubSource{}, store, writer, testLogger)

	profile, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 6, profile.TotalVolume, 1e-9)

	require.Len(t, writer.paths, 1)
	assert.Contains(t, writer.paths[0], "profiles/")
	assert.Contains(t, writer.paths[0], ".json")
}

func TestRecordingSource_TeesCandles(t *testing.T) {
	candles := []domain.Candle{{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3}}
	source := &stubSource{candles: candles}
	store := &stubCandleStore{}
	rec := NewRecordingSource(source, store, testLogger)

	got, err := rec.Candles(context.Background(), "1h", 10)
	require.NoError(t, err)
	assert.Equal(t, candles, got)

	require.Eventually(t, func() bool {
		return store.count() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "1h", store.lastInterval())
}

func TestRecordingSource_FetchFailureSkipsRecording(t *testing.T) {
	source := &stubSource{err: errors.New("boom")}
	store := &stubCandleStore{}
	rec := NewRecordingSource(source, store, testLogger)

	_, err := rec.Candles(context.Background(), "1h", 10)
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, store.count())
}

type stubCandleStore struct {
	mu       sync.Mutex
	batches  int
	interval string
}

func (s *stubCandleStore) InsertBatch(ctx context.Context, interval string, candles []domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	s.interval = interval
	return nil
}

func (s *stubCandleStore) ListRecent(ctx context.Context, interval string, limit int) ([]domain.Candle, error) {
	return nil, nil
}

func (s *stubCandleStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func (s *stubCandleStore) lastInterval() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}
