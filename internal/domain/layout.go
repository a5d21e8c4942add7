package domain

import "context"

// GridLayoutEntry is the serializable projection of one panel's externally
// visible configuration. The registry exclusively owns creation and
// serialization of these entries; a resource never writes to the store.
type GridLayoutEntry struct {
	ResourceID  string `json:"resource_id"`
	TimeframeID string `json:"timeframe_id"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Order       int    `json:"order"`
}

// GridLayout is the full persisted shape: ordered entries plus the declared
// column count, stored as one serialized blob under a fixed key.
type GridLayout struct {
	Columns int
	Entries []GridLayoutEntry
}

// LayoutStore is the persistence store for serialized layouts: plain string
// key-value storage surviving process restarts. Every call may fail (quota,
// disabled storage, network); callers log and continue, never propagate.
type LayoutStore interface {
	// Get returns the stored value, or ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
