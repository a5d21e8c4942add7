package domain

import "time"

// VisibleRange is the time window a surface currently displays.
type VisibleRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LinePoint is one vertex of an overlay line series.
type LinePoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// RenderSurface is one panel's rendering binding. The core never renders
// anything itself; it pushes data arrays to the surface and reads pixel
// dimensions back. Implementations must tolerate calls after release by
// turning them into no-ops.
type RenderSurface interface {
	// ID returns the embedded resource id marker the surface was acquired
	// with. Removal fallback lookups scan by this marker.
	ID() string

	SetCandles(candles []Candle)
	SetSwings(points []LinePoint)
	SetPriceDelta(delta float64)

	Resize(width, height int)
	FitContent()
	VisibleRange() (VisibleRange, bool)
	SetVisibleRange(vr VisibleRange)

	// ContainerSize reports the surface's actual pixel dimensions, when the
	// renderer has reported any.
	ContainerSize() (width, height int, ok bool)

	// ShowFailure displays a persistent failure indicator with the message;
	// ClearFailure removes it.
	ShowFailure(msg string)
	ClearFailure()
}

// SurfaceProvider hands out and reclaims rendering bindings.
type SurfaceProvider interface {
	// Acquire creates a surface bound to the resource id. It fails when a
	// surface with the same id is already attached.
	Acquire(id string, width, height int) (RenderSurface, error)

	// Detach releases a surface binding. Releasing an unknown surface is a
	// no-op returning false.
	Detach(s RenderSurface) bool

	// FindByID scans attached surfaces by their embedded id marker. It is
	// the documented fallback path for removal when the primary reference
	// is gone.
	FindByID(id string) (RenderSurface, bool)
}
