// Package chart implements the resource lifecycle manager: per-panel chart
// resources with load/retry/reconfigure/resize/destroy semantics, the
// registry coordinating them, and the layout codec that persists the grid.
package chart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattvy/chartgrid/internal/analysis"
	"github.com/mattvy/chartgrid/internal/domain"
)

// State is a resource's lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateLoading      State = "loading"
	StateReady        State = "ready"
	StateRetrying     State = "retrying"
	StateFailed       State = "failed"
	StateDestroyed    State = "destroyed"
)

// RetryPolicy bounds the exponential backoff applied to failed loads:
// delay = min(Base << attempt, Cap), up to MaxAttempts retries.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// Delay returns the backoff before retry number attempt (zero-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Base << uint(attempt)
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}
	return d
}

// DefaultRetryPolicy matches the panel reload behavior: 500ms doubling up to
// 8s, five attempts before the panel is marked failed.
var DefaultRetryPolicy = RetryPolicy{
	Base:        500 * time.Millisecond,
	Cap:         8 * time.Second,
	MaxAttempts: 5,
}

// ReconfigureOptions carries the mutable inputs of a reconfiguration. Nil
// fields leave the current value untouched.
type ReconfigureOptions struct {
	Timeframe *domain.Timeframe
	Settings  *domain.AnalysisSettings
}

// Resource is one live chart panel: a rendering-surface binding, a data
// subscription, retry counters, and a destroyed flag. All exported methods
// are safe for concurrent use.
//
// Once destroyed, a resource never re-enters another state and never touches
// the rendering surface or market data source again, even when async work
// started earlier completes later.
type Resource struct {
	id      string
	source  domain.MarketDataSource
	surface domain.RenderSurface
	policy  RetryPolicy
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	timeframe  domain.Timeframe
	settings   domain.AnalysisSettings
	width      int
	height     int
	retryCount int
	destroyed  bool
	generation uint64
	priceDelta float64
	lastErr    error

	// detach releases the surface binding; installed by the registry and
	// invoked exactly once, after the destroyed flag is set.
	detach func()

	// done wakes pending backoff waits when the resource is destroyed.
	done chan struct{}
}

// NewResource creates a panel resource in the Initializing state, bound to
// the given surface. detach releases the binding on destroy and may be nil.
func NewResource(id string, tf domain.Timeframe, settings domain.AnalysisSettings,
	source domain.MarketDataSource, surface domain.RenderSurface,
	width, height int, policy RetryPolicy, detach func(), logger *slog.Logger) *Resource {
	return &Resource{
		id:        id,
		source:    source,
		surface:   surface,
		policy:    policy,
		logger:    logger.With(slog.String("component", "resource"), slog.String("panel", id)),
		state:     StateInitializing,
		timeframe: tf,
		settings:  settings,
		width:     width,
		height:    height,
		detach:    detach,
		done:      make(chan struct{}),
	}
}

// ID returns the resource's stable identifier.
func (r *Resource) ID() string { return r.id }

// State returns the current lifecycle state.
func (r *Resource) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Timeframe returns the currently configured timeframe.
func (r *Resource) Timeframe() domain.Timeframe {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeframe
}

// Dimensions returns the recorded render size.
func (r *Resource) Dimensions() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// RetryCount returns the current retry counter.
func (r *Resource) RetryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCount
}

// PriceDelta returns lastClose-firstOpen of the most recent load.
func (r *Resource) PriceDelta() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.priceDelta
}

// LastErr returns the error that drove the resource into Failed, if any.
func (r *Resource) LastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Surface returns the bound rendering surface (nil after constructions that
// never bound one). The registry uses it as the primary detach path.
func (r *Resource) Surface() domain.RenderSurface { return r.surface }

// Load fetches candles, runs swing analysis when enabled, and pushes the
// results to the surface, fitting the view to the full content. Used for the
// initial load and for restores.
func (r *Resource) Load(ctx context.Context) error {
	return r.load(ctx, true, nil)
}

// Reconfigure applies a timeframe and/or settings change and reloads.
// The retry counter resets. The user's viewport is preserved across the
// reload unless the timeframe changed, which always re-fits.
func (r *Resource) Reconfigure(ctx context.Context, opts ReconfigureOptions) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return domain.ErrDestroyed
	}

	refit := false
	if opts.Timeframe != nil && opts.Timeframe.ID != r.timeframe.ID {
		r.timeframe = *opts.Timeframe
		refit = true
	}
	if opts.Settings != nil {
		r.settings = *opts.Settings
	}
	r.retryCount = 0

	var restore *domain.VisibleRange
	if !refit {
		if vr, ok := r.surface.VisibleRange(); ok {
			restore = &vr
		}
	}
	r.mu.Unlock()

	return r.load(ctx, refit, restore)
}

// Resize records new dimensions and forwards them to the surface. It is
// synchronous, idempotent, and never triggers a reload.
func (r *Resource) Resize(width, height int) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	if width == r.width && height == r.height {
		r.mu.Unlock()
		return
	}
	r.width, r.height = width, height
	surface := r.surface
	r.mu.Unlock()

	surface.Resize(width, height)
}

// Destroy transitions the resource to its terminal state and releases the
// surface binding. The destroyed flag is set before the release so any
// in-flight load's completion becomes a no-op. Safe to call multiple times.
func (r *Resource) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	r.state = StateDestroyed
	close(r.done)
	detach := r.detach
	r.detach = nil
	r.mu.Unlock()

	if detach != nil {
		detach()
	}
	r.logger.Debug("resource destroyed")
}

// load drives the Loading/Retrying/Ready/Failed transitions for one load
// cycle. fit forces a full-content refit; restore, when non-nil, reapplies a
// saved viewport after the data lands.
func (r *Resource) load(ctx context.Context, fit bool, restore *domain.VisibleRange) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return domain.ErrDestroyed
	}
	r.generation++
	gen := r.generation
	r.state = StateLoading
	tf := r.timeframe
	r.mu.Unlock()

	for {
		candles, err := r.source.Candles(ctx, tf.Interval, tf.CandleLimit)

		r.mu.Lock()
		if r.destroyed || r.generation != gen {
			// A destroy or newer load superseded this cycle; discard the
			// late result without touching the surface.
			r.mu.Unlock()
			return nil
		}

		if err == nil {
			r.applyLocked(candles, fit, restore)
			r.state = StateReady
			r.retryCount = 0
			r.lastErr = nil
			r.mu.Unlock()
			return nil
		}

		if r.retryCount >= r.policy.MaxAttempts {
			r.state = StateFailed
			r.lastErr = err
			surface := r.surface
			r.mu.Unlock()

			surface.ShowFailure(err.Error())
			r.logger.Error("load failed permanently",
				slog.String("interval", tf.Interval),
				slog.Int("attempts", r.policy.MaxAttempts),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("chart: load %s: %w", r.id, err)
		}

		attempt := r.retryCount
		r.retryCount++
		r.state = StateRetrying
		r.mu.Unlock()

		delay := r.policy.Delay(attempt)
		r.logger.Warn("load failed, retrying",
			slog.String("interval", tf.Interval),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			// Destroyed during the backoff wait; the scheduled retry is
			// suppressed.
			return nil
		case <-time.After(delay):
		}

		r.mu.Lock()
		if r.destroyed || r.generation != gen {
			r.mu.Unlock()
			return nil
		}
		r.state = StateLoading
		r.mu.Unlock()
	}
}

// applyLocked pushes a successful load's results to the surface. Caller
// holds r.mu and has verified the resource is neither destroyed nor stale.
func (r *Resource) applyLocked(candles []domain.Candle, fit bool, restore *domain.VisibleRange) {
	r.surface.ClearFailure()
	r.surface.SetCandles(candles)

	if r.settings.SwingEnabled {
		points := analysis.DetectSwings(candles,
			r.settings.ComparisonWindow, r.settings.AnalysisWindow, r.settings.ForwardWindow)
		r.surface.SetSwings(analysis.SwingLine(points))
	} else {
		r.surface.SetSwings(nil)
	}

	r.priceDelta = domain.PriceDelta(candles)
	r.surface.SetPriceDelta(r.priceDelta)

	switch {
	case restore != nil:
		r.surface.SetVisibleRange(*restore)
	case fit:
		r.surface.FitContent()
	}
}
