package chart

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattvy/chartgrid/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fastRetry keeps backoff waits negligible in tests.
var fastRetry = RetryPolicy{Base: time.Millisecond, Cap: 4 * time.Millisecond, MaxAttempts: 2}

func testCandles(n int) []domain.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     p, High: p + 1, Low: p - 1, Close: p + 0.5,
			Volume: 1,
		}
	}
	return out
}

func testSettings() domain.AnalysisSettings {
	return domain.AnalysisSettings{
		SwingEnabled:     true,
		ComparisonWindow: 2,
		ForwardWindow:    2,
		AnalysisWindow:   100,
	}
}

func newTestResource(t *testing.T, source *fakeSource, settings domain.AnalysisSettings) (*Resource, *fakeSurface) {
	t.Helper()
	tf, ok := domain.TimeframeByID("1h")
	require.True(t, ok)
	surface := &fakeSurface{id: "chart-1"}
	res := NewResource("chart-1", tf, settings, source, surface, 640, 480, fastRetry, nil, testLogger)
	return res, surface
}

func TestResource_LoadSuccess(t *testing.T) {
	source := &fakeSource{candles: testCandles(20)}
	res, surface := newTestResource(t, source, testSettings())

	require.Equal(t, StateInitializing, res.State())
	require.NoError(t, res.Load(context.Background()))

	assert.Equal(t, StateReady, res.State())
	assert.Equal(t, 0, res.RetryCount())

	snap := surface.snapshot()
	assert.Len(t, snap.candles, 20)
	assert.Equal(t, 1, snap.fitCalls)
	assert.True(t, snap.swingsSet)
	assert.False(t, snap.failureShown)
	// last close 119.5, first open 100
	assert.InDelta(t, 19.5, res.PriceDelta(), 1e-9)
	assert.InDelta(t, 19.5, snap.delta, 1e-9)
}

func TestResource_SwingsDisabledClearsOverlay(t *testing.T) {
	source := &fakeSource{candles: testCandles(20)}
	settings := testSettings()
	settings.SwingEnabled = false
	res, surface := newTestResource(t, source, settings)

	require.NoError(t, res.Load(context.Background()))

	snap := surface.snapshot()
	assert.True(t, snap.swingsSet)
	assert.Nil(t, snap.swings)
}

func TestResource_RetryThenSuccess(t *testing.T) {
	source := &fakeSource{candles: testCandles(10), failures: 2}
	res, surface := newTestResource(t, source, testSettings())

	require.NoError(t, res.Load(context.Background()))

	assert.Equal(t, StateReady, res.State())
	assert.Equal(t, 0, res.RetryCount())
	assert.Equal(t, 3, source.callCount())
	assert.False(t, surface.snapshot().failureShown)
}

func TestResource_RetryExhaustionFails(t *testing.T) {
	source := &fakeSource{failAlways: true}
	res, surface := newTestResource(t, source, testSettings())

	err := res.Load(context.Background())
	require.Error(t, err)

	assert.Equal(t, StateFailed, res.State())
	assert.Equal(t, fastRetry.MaxAttempts, res.RetryCount())
	assert.Equal(t, fastRetry.MaxAttempts+1, source.callCount())
	require.Error(t, res.LastErr())

	snap := surface.snapshot()
	assert.True(t, snap.failureShown)
	assert.Contains(t, snap.failureMsg, "feed unavailable")
}

func TestResource_SuccessAfterFailureClearsIndicator(t *testing.T) {
	source := &fakeSource{failAlways: true}
	res, surface := newTestResource(t, source, testSettings())
	require.Error(t, res.Load(context.Background()))
	require.True(t, surface.snapshot().failureShown)

	source.mu.Lock()
	source.failAlways = false
	source.candles = testCandles(10)
	source.mu.Unlock()

	require.NoError(t, res.Load(context.Background()))
	assert.Equal(t, StateReady, res.State())
	assert.NoError(t, res.LastErr())
	assert.False(t, surface.snapshot().failureShown)
}

func TestResource_DestroyDuringBackoffSuppressesRetry(t *testing.T) {
	source := &fakeSource{failAlways: true}
	tf, _ := domain.TimeframeByID("1h")
	surface := &fakeSurface{id: "chart-1"}
	slow := RetryPolicy{Base: time.Minute, Cap: time.Minute, MaxAttempts: 3}
	res := NewResource("chart-1", tf, testSettings(), source, surface, 0, 0, slow, nil, testLogger)

	done := make(chan error, 1)
	go func() { done <- res.Load(context.Background()) }()

	require.Eventually(t, func() bool {
		return res.State() == StateRetrying
	}, time.Second, time.Millisecond)

	res.Destroy()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("load did not return after destroy")
	}

	assert.Equal(t, StateDestroyed, res.State())
	assert.Equal(t, 1, source.callCount())
	assert.False(t, surface.snapshot().failureShown)
}

func TestResource_DestroyInvokesDetachOnce(t *testing.T) {
	detaches := 0
	tf, _ := domain.TimeframeByID("1h")
	res := NewResource("chart-1", tf, testSettings(), &fakeSource{}, &fakeSurface{id: "chart-1"},
		0, 0, fastRetry, func() { detaches++ }, testLogger)

	res.Destroy()
	res.Destroy()

	assert.Equal(t, 1, detaches)
	assert.Equal(t, StateDestroyed, res.State())
}

func TestResource_LoadAfterDestroy(t *testing.T) {
	source := &fakeSource{candles: testCandles(5)}
	res, surface := newTestResource(t, source, testSettings())

	res.Destroy()

	assert.ErrorIs(t, res.Load(context.Background()), domain.ErrDestroyed)
	assert.ErrorIs(t, res.Reconfigure(context.Background(), ReconfigureOptions{}), domain.ErrDestroyed)
	assert.Equal(t, 0, source.callCount())
	assert.Equal(t, 0, surface.snapshot().setCandleCalls)
}

func TestResource_StaleLoadDiscarded(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSource{candles: testCandles(5), gate: gate}
	res, surface := newTestResource(t, source, testSettings())

	first := make(chan error, 1)
	go func() { first <- res.Load(context.Background()) }()

	require.Eventually(t, func() bool {
		return source.callCount() == 1
	}, time.Second, time.Millisecond)

	// A second load supersedes the blocked one.
	require.NoError(t, res.Load(context.Background()))
	close(gate)

	select {
	case err := <-first:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("superseded load did not return")
	}

	assert.Equal(t, StateReady, res.State())
	assert.Equal(t, 1, surface.snapshot().setCandleCalls)
}

func TestResource_DestroyDuringFetchDiscardsResult(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSource{candles: testCandles(5), gate: gate}
	res, surface := newTestResource(t, source, testSettings())

	done := make(chan error, 1)
	go func() { done <- res.Load(context.Background()) }()

	require.Eventually(t, func() bool {
		return source.callCount() == 1
	}, time.Second, time.Millisecond)

	// Destroy while the fetch is in flight, then let it resolve.
	res.Destroy()
	close(gate)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("destroyed load did not return")
	}

	assert.Equal(t, StateDestroyed, res.State())
	assert.Equal(t, 0, surface.snapshot().setCandleCalls)
}

func TestResource_ResizeNeverReloads(t *testing.T) {
	source := &fakeSource{candles: testCandles(5)}
	res, surface := newTestResource(t, source, testSettings())
	require.NoError(t, res.Load(context.Background()))

	res.Resize(800, 600)

	w, h := res.Dimensions()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
	snap := surface.snapshot()
	assert.Equal(t, 800, snap.width)
	assert.Equal(t, 600, snap.height)
	assert.Equal(t, 1, source.callCount())

	// Unchanged dimensions are a pure no-op.
	res.Resize(800, 600)
	assert.Equal(t, 1, source.callCount())
}

func TestResource_ResizeAfterDestroyIgnored(t *testing.T) {
	res, surface := newTestResource(t, &fakeSource{}, testSettings())
	res.Destroy()

	res.Resize(800, 600)

	w, h := res.Dimensions()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.False(t, surface.snapshot().sized)
}

func TestResource_ReconfigureSettingsPreservesViewport(t *testing.T) {
	source := &fakeSource{candles: testCandles(20)}
	res, surface := newTestResource(t, source, testSettings())
	require.NoError(t, res.Load(context.Background()))

	vr := domain.VisibleRange{
		From: time.Date(2025, 6, 1, 0, 5, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 1, 0, 15, 0, 0, time.UTC),
	}
	surface.setViewport(vr)

	settings := testSettings()
	settings.SwingEnabled = false
	require.NoError(t, res.Reconfigure(context.Background(), ReconfigureOptions{Settings: &settings}))

	snap := surface.snapshot()
	require.Len(t, snap.restored, 1)
	assert.Equal(t, vr, snap.restored[0])
	assert.Equal(t, 1, snap.fitCalls, "settings-only reload must not refit")
	assert.Nil(t, snap.swings)
}

func TestResource_ReconfigureTimeframeRefits(t *testing.T) {
	source := &fakeSource{candles: testCandles(20)}
	res, surface := newTestResource(t, source, testSettings())
	require.NoError(t, res.Load(context.Background()))

	surface.setViewport(domain.VisibleRange{
		From: time.Date(2025, 6, 1, 0, 5, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 1, 0, 15, 0, 0, time.UTC),
	})

	tf, ok := domain.TimeframeByID("1d")
	require.True(t, ok)
	require.NoError(t, res.Reconfigure(context.Background(), ReconfigureOptions{Timeframe: &tf}))

	assert.Equal(t, "1d", res.Timeframe().ID)
	snap := surface.snapshot()
	assert.Equal(t, 2, snap.fitCalls, "timeframe change always refits")
	assert.Empty(t, snap.restored)
}

func TestResource_ReconfigureResetsRetryCount(t *testing.T) {
	source := &fakeSource{failAlways: true}
	res, _ := newTestResource(t, source, testSettings())
	require.Error(t, res.Load(context.Background()))
	require.Equal(t, fastRetry.MaxAttempts, res.RetryCount())

	source.mu.Lock()
	source.failAlways = false
	source.candles = testCandles(5)
	source.mu.Unlock()

	settings := testSettings()
	require.NoError(t, res.Reconfigure(context.Background(), ReconfigureOptions{Settings: &settings}))
	assert.Equal(t, 0, res.RetryCount())
	assert.Equal(t, StateReady, res.State())
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{Base: 500 * time.Millisecond, Cap: 8 * time.Second, MaxAttempts: 5}

	assert.Equal(t, 500*time.Millisecond, p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))
	assert.Equal(t, 8*time.Second, p.Delay(10))
	// Shift overflow falls back to the cap.
	assert.Equal(t, 8*time.Second, p.Delay(62))
}
