package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattvy/chartgrid/internal/domain"
)

// idPrefix is the generated resource id scheme: chart-1, chart-2, ...
const idPrefix = "chart-"

// maxDimension bounds accepted panel dimensions in pixels.
const maxDimension = 16384

// RegistryConfig holds the registry's tunables.
type RegistryConfig struct {
	// LayoutKey is the persistence store key the layout blob lives under.
	LayoutKey string
	// Columns is the declared grid column count persisted with the layout.
	Columns int
	// DefaultTimeframes are the timeframe ids created when no saved layout
	// exists.
	DefaultTimeframes []string
	// PersistDebounce coalesces high-frequency persist triggers (continuous
	// resize); structural changes persist immediately.
	PersistDebounce time.Duration
	// Retry is the per-resource load retry policy.
	Retry RetryPolicy
}

// Registry owns the collection of live chart resources. It coordinates
// creation with rollback, removal with full teardown, shared-settings
// broadcast, and layout persistence. It is the single source of truth for
// the shared analysis settings and the id-sequence counter.
type Registry struct {
	cfg      RegistryConfig
	source   domain.MarketDataSource
	surfaces domain.SurfaceProvider
	store    domain.LayoutStore
	logger   *slog.Logger

	mu        sync.Mutex
	resources map[string]*Resource
	order     []string
	seq       int
	settings  domain.AnalysisSettings

	persistMu    sync.Mutex
	persistTimer *time.Timer
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, source domain.MarketDataSource,
	surfaces domain.SurfaceProvider, store domain.LayoutStore,
	settings domain.AnalysisSettings, logger *slog.Logger) *Registry {
	if cfg.LayoutKey == "" {
		cfg.LayoutKey = "chartgrid:layout"
	}
	if cfg.Columns < 1 {
		cfg.Columns = 2
	}
	if cfg.PersistDebounce <= 0 {
		cfg.PersistDebounce = 400 * time.Millisecond
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Registry{
		cfg:       cfg,
		source:    source,
		surfaces:  surfaces,
		store:     store,
		logger:    logger.With(slog.String("component", "registry")),
		resources: make(map[string]*Resource),
		settings:  settings,
	}
}

// AddOptions carries the optional parameters of AddResource.
type AddOptions struct {
	ID     string
	Width  int
	Height int
}

// AddResource creates a new panel for the timeframe and returns its id.
// Creation is transactional: any failure before the initial load settles
// rolls back the map entry, the resource, and the surface binding, and the
// layout is persisted only on full success.
func (g *Registry) AddResource(ctx context.Context, timeframeID string, opts AddOptions) (string, error) {
	tf, ok := domain.TimeframeByID(timeframeID)
	if !ok {
		return "", fmt.Errorf("chart: add resource: %w: %q", domain.ErrUnknownTimeframe, timeframeID)
	}
	if opts.Width < 0 || opts.Width > maxDimension || opts.Height < 0 || opts.Height > maxDimension {
		return "", fmt.Errorf("chart: add resource: %w: %dx%d", domain.ErrInvalidDimensions, opts.Width, opts.Height)
	}

	g.mu.Lock()
	id := opts.ID
	if id == "" {
		id = g.nextIDLocked()
	} else if _, exists := g.resources[id]; exists {
		g.mu.Unlock()
		return "", fmt.Errorf("chart: add resource: %w: %q", domain.ErrDuplicateID, id)
	}
	settings := g.settings
	g.mu.Unlock()

	surface, err := g.surfaces.Acquire(id, opts.Width, opts.Height)
	if err != nil {
		return "", fmt.Errorf("chart: add resource %s: acquire surface: %w", id, err)
	}

	res := NewResource(id, tf, settings, g.source, surface, opts.Width, opts.Height,
		g.cfg.Retry, func() { g.surfaces.Detach(surface) }, g.logger)

	// Register before the load starts so a concurrent removal issued while
	// the load is in flight finds the resource and cancels it instead of
	// racing ahead of registration.
	g.mu.Lock()
	if _, exists := g.resources[id]; exists {
		g.mu.Unlock()
		res.Destroy()
		return "", fmt.Errorf("chart: add resource: %w: %q", domain.ErrDuplicateID, id)
	}
	g.resources[id] = res
	g.order = append(g.order, id)
	g.mu.Unlock()

	if err := res.Load(ctx); err != nil {
		g.rollback(id, res)
		return "", fmt.Errorf("chart: add resource %s: initial load: %w", id, err)
	}

	// The resource may have been removed while loading; only persist when
	// it is still registered.
	g.mu.Lock()
	_, alive := g.resources[id]
	g.mu.Unlock()
	if alive {
		g.persistSoon()
		g.logger.Info("panel added",
			slog.String("panel", id),
			slog.String("timeframe", tf.ID),
		)
	}
	return id, nil
}

// rollback undoes a partially created resource: map entry, resource object,
// and surface binding, leaving no orphaned state.
func (g *Registry) rollback(id string, res *Resource) {
	g.mu.Lock()
	delete(g.resources, id)
	g.removeFromOrderLocked(id)
	g.mu.Unlock()

	res.Destroy()

	// The detach hook normally releases the binding; scan by id marker in
	// case the hook was lost before it ran.
	if s, ok := g.surfaces.FindByID(id); ok {
		g.surfaces.Detach(s)
	}
	g.logger.Warn("panel creation rolled back", slog.String("panel", id))
}

// RemoveResource destroys a panel and cleans up everything it owned:
// resource first, then the rendering binding, then the map entry, then the
// persisted layout. Unknown ids are a logged no-op.
func (g *Registry) RemoveResource(ctx context.Context, id string) {
	g.mu.Lock()
	res, ok := g.resources[id]
	if !ok {
		g.mu.Unlock()
		g.logger.Info("remove ignored, unknown panel", slog.String("panel", id))
		return
	}
	g.mu.Unlock()

	res.Destroy()

	// Fallback: the primary release path runs inside Destroy via the detach
	// hook; scan by the embedded id marker so a removal can never silently
	// fail to clean up the binding.
	if s, found := g.surfaces.FindByID(id); found {
		g.surfaces.Detach(s)
	}

	g.mu.Lock()
	delete(g.resources, id)
	g.removeFromOrderLocked(id)
	g.mu.Unlock()

	g.persistNow(ctx)
	g.logger.Info("panel removed", slog.String("panel", id))
}

// ReconfigureTimeframe switches a panel to another timeframe and reloads it.
// Unknown panel ids are a logged no-op; unknown timeframes are rejected.
func (g *Registry) ReconfigureTimeframe(ctx context.Context, id, timeframeID string) error {
	tf, ok := domain.TimeframeByID(timeframeID)
	if !ok {
		return fmt.Errorf("chart: reconfigure %s: %w: %q", id, domain.ErrUnknownTimeframe, timeframeID)
	}

	g.mu.Lock()
	res, found := g.resources[id]
	g.mu.Unlock()
	if !found {
		g.logger.Info("reconfigure ignored, unknown panel", slog.String("panel", id))
		return nil
	}

	err := res.Reconfigure(ctx, ReconfigureOptions{Timeframe: &tf})
	g.persistSoon()
	if err != nil {
		return fmt.Errorf("chart: reconfigure %s: %w", id, err)
	}
	return nil
}

// BroadcastSettings updates the registry-owned shared settings and forwards
// them to every live panel's analysis path. Panel loads run concurrently;
// individual failures are isolated and logged, never propagated.
func (g *Registry) BroadcastSettings(ctx context.Context, settings domain.AnalysisSettings) {
	g.mu.Lock()
	g.settings = settings
	live := g.snapshotLocked()
	g.mu.Unlock()

	var wg sync.WaitGroup
	for _, res := range live {
		wg.Add(1)
		go func(res *Resource) {
			defer wg.Done()
			if err := res.Reconfigure(ctx, ReconfigureOptions{Settings: &settings}); err != nil {
				g.logger.Warn("settings broadcast failed for panel",
					slog.String("panel", res.ID()),
					slog.String("error", err.Error()),
				)
			}
		}(res)
	}
	wg.Wait()
}

// Settings returns the current shared analysis settings. Callers must not
// cache the value across operations; the registry owns it.
func (g *Registry) Settings() domain.AnalysisSettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

// ReloadAll dispatches loads for every live panel concurrently and waits for
// all of them to settle, tolerating individual failures.
func (g *Registry) ReloadAll(ctx context.Context) {
	g.mu.Lock()
	live := g.snapshotLocked()
	g.mu.Unlock()

	var wg sync.WaitGroup
	for _, res := range live {
		wg.Add(1)
		go func(res *Resource) {
			defer wg.Done()
			if err := res.Load(ctx); err != nil {
				g.logger.Warn("reload failed for panel",
					slog.String("panel", res.ID()),
					slog.String("error", err.Error()),
				)
			}
		}(res)
	}
	wg.Wait()
}

// ResizeResource forwards new dimensions to a panel and schedules a
// debounced layout persist. Unknown ids are ignored.
func (g *Registry) ResizeResource(id string, width, height int) {
	g.mu.Lock()
	res, ok := g.resources[id]
	g.mu.Unlock()
	if !ok {
		return
	}
	res.Resize(width, height)
	g.persistSoon()
}

// Columns returns the declared grid column count.
func (g *Registry) Columns() int { return g.cfg.Columns }

// PanelStatus is a read-only snapshot of one panel for status APIs.
type PanelStatus struct {
	ID         string  `json:"id"`
	Timeframe  string  `json:"timeframe"`
	State      State   `json:"state"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	RetryCount int     `json:"retry_count"`
	PriceDelta float64 `json:"price_delta"`
	LastError  string  `json:"last_error,omitempty"`
}

// Snapshot returns the live panels in grid order.
func (g *Registry) Snapshot() []PanelStatus {
	g.mu.Lock()
	live := g.snapshotLocked()
	g.mu.Unlock()

	out := make([]PanelStatus, 0, len(live))
	for _, res := range live {
		w, h := res.Dimensions()
		st := PanelStatus{
			ID:         res.ID(),
			Timeframe:  res.Timeframe().ID,
			State:      res.State(),
			Width:      w,
			Height:     h,
			RetryCount: res.RetryCount(),
			PriceDelta: res.PriceDelta(),
		}
		if err := res.LastErr(); err != nil {
			st.LastError = err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Restore reads the persistence store and recreates panels from the saved
// layout in their saved order, reusing saved ids and sizes and re-deriving
// the id-sequence counter. When no usable layout exists it falls back to the
// configured default timeframes. Individual panel failures are tolerated.
func (g *Registry) Restore(ctx context.Context) {
	blob, err := g.store.Get(ctx, g.cfg.LayoutKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			g.logger.Warn("layout store read failed, using defaults",
				slog.String("error", err.Error()))
		}
		g.restoreDefaults(ctx)
		return
	}

	layout, err := DecodeLayout(blob)
	if err != nil {
		g.logger.Warn("saved layout unreadable, using defaults",
			slog.String("error", err.Error()))
		g.restoreDefaults(ctx)
		return
	}

	// Derive the sequence from the max numeric suffix so generated ids can
	// never collide with restored ones.
	g.mu.Lock()
	for _, e := range layout.Entries {
		if n, ok := idSuffix(e.ResourceID); ok && n > g.seq {
			g.seq = n
		}
	}
	g.mu.Unlock()

	restored := 0
	for _, e := range layout.Entries {
		_, err := g.AddResource(ctx, e.TimeframeID, AddOptions{
			ID:     e.ResourceID,
			Width:  e.Width,
			Height: e.Height,
		})
		if err != nil {
			g.logger.Warn("failed to restore panel",
				slog.String("panel", e.ResourceID),
				slog.String("timeframe", e.TimeframeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		restored++
	}

	if restored == 0 {
		g.restoreDefaults(ctx)
		return
	}
	g.logger.Info("layout restored", slog.Int("panels", restored))
}

// restoreDefaults creates the fixed default panel set.
func (g *Registry) restoreDefaults(ctx context.Context) {
	for _, tfID := range g.cfg.DefaultTimeframes {
		if _, err := g.AddResource(ctx, tfID, AddOptions{}); err != nil {
			g.logger.Warn("failed to create default panel",
				slog.String("timeframe", tfID),
				slog.String("error", err.Error()),
			)
		}
	}
	g.logger.Info("default layout created",
		slog.Int("panels", len(g.cfg.DefaultTimeframes)))
}

// PersistLayout snapshots every live panel into the persisted layout shape
// and writes it to the store. Dimensions come from the actual rendering
// binding when it has reported any, falling back to the recorded values.
// Store failures are logged and swallowed; the layout continues in memory.
func (g *Registry) PersistLayout(ctx context.Context) {
	g.persistNow(ctx)
}

func (g *Registry) persistNow(ctx context.Context) {
	g.mu.Lock()
	layout := domain.GridLayout{Columns: g.cfg.Columns}
	for i, id := range g.order {
		res, ok := g.resources[id]
		if !ok {
			continue
		}
		w, h := res.Dimensions()
		if cw, ch, ok := res.Surface().ContainerSize(); ok {
			w, h = cw, ch
		}
		layout.Entries = append(layout.Entries, domain.GridLayoutEntry{
			ResourceID:  id,
			TimeframeID: res.Timeframe().ID,
			Width:       w,
			Height:      h,
			Order:       i,
		})
	}
	g.mu.Unlock()

	blob, err := EncodeLayout(layout)
	if err != nil {
		g.logger.Error("layout encode failed", slog.String("error", err.Error()))
		return
	}
	if err := g.store.Set(ctx, g.cfg.LayoutKey, blob); err != nil {
		g.logger.Warn("layout persist failed, continuing in memory",
			slog.String("error", err.Error()))
	}
}

// persistSoon schedules a debounced persist, coalescing bursts of
// high-frequency triggers into one store write.
func (g *Registry) persistSoon() {
	g.persistMu.Lock()
	defer g.persistMu.Unlock()
	if g.persistTimer != nil {
		g.persistTimer.Stop()
	}
	g.persistTimer = time.AfterFunc(g.cfg.PersistDebounce, func() {
		g.persistNow(context.Background())
	})
}

// Close stops pending persist timers and destroys every panel without
// touching the persisted layout, so the next start restores it.
func (g *Registry) Close() {
	g.persistMu.Lock()
	if g.persistTimer != nil {
		g.persistTimer.Stop()
		g.persistTimer = nil
	}
	g.persistMu.Unlock()

	g.mu.Lock()
	live := g.snapshotLocked()
	g.resources = make(map[string]*Resource)
	g.order = nil
	g.mu.Unlock()

	for _, res := range live {
		res.Destroy()
	}
}

// snapshotLocked returns the live resources in grid order. Caller holds g.mu.
func (g *Registry) snapshotLocked() []*Resource {
	out := make([]*Resource, 0, len(g.resources))
	for _, id := range g.order {
		if res, ok := g.resources[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

func (g *Registry) removeFromOrderLocked(id string) {
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			return
		}
	}
}

// nextIDLocked generates the next chart-<n> id. Caller holds g.mu.
func (g *Registry) nextIDLocked() string {
	for {
		g.seq++
		id := idPrefix + strconv.Itoa(g.seq)
		if _, taken := g.resources[id]; !taken {
			return id
		}
	}
}

// idSuffix extracts the numeric suffix of a generated id, reporting whether
// the id follows the chart-<n> scheme.
func idSuffix(id string) (int, bool) {
	if !strings.HasPrefix(id, idPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
