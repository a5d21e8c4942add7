package chart

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mattvy/chartgrid/internal/domain"
)

// layoutVersion guards against decoding blobs written by incompatible
// builds.
const layoutVersion = 1

// storedLayout is the wire shape of a persisted grid layout.
type storedLayout struct {
	Version int           `json:"version"`
	Columns int           `json:"columns"`
	Panels  []storedPanel `json:"panels"`
}

type storedPanel struct {
	ResourceID  string `json:"resource_id"`
	TimeframeID string `json:"timeframe_id"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Order       int    `json:"order"`
}

// EncodeLayout serializes a grid layout to the blob stored under the layout
// key. Entries keep their given order values.
func EncodeLayout(layout domain.GridLayout) (string, error) {
	stored := storedLayout{
		Version: layoutVersion,
		Columns: layout.Columns,
		Panels:  make([]storedPanel, 0, len(layout.Entries)),
	}
	for _, e := range layout.Entries {
		stored.Panels = append(stored.Panels, storedPanel(e))
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("chart: encode layout: %w", err)
	}
	return string(data), nil
}

// DecodeLayout parses a persisted layout blob. Entries are returned sorted
// by their order field. An empty blob or a blob without panels yields
// domain.ErrEmptyLayout so callers can fall back to defaults.
func DecodeLayout(blob string) (domain.GridLayout, error) {
	if blob == "" {
		return domain.GridLayout{}, domain.ErrEmptyLayout
	}

	var stored storedLayout
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		return domain.GridLayout{}, fmt.Errorf("chart: decode layout: %w", err)
	}
	if stored.Version != layoutVersion {
		return domain.GridLayout{}, fmt.Errorf("chart: decode layout: unsupported version %d", stored.Version)
	}
	if len(stored.Panels) == 0 {
		return domain.GridLayout{}, domain.ErrEmptyLayout
	}

	layout := domain.GridLayout{
		Columns: stored.Columns,
		Entries: make([]domain.GridLayoutEntry, 0, len(stored.Panels)),
	}
	for _, p := range stored.Panels {
		layout.Entries = append(layout.Entries, domain.GridLayoutEntry(p))
	}
	sort.SliceStable(layout.Entries, func(i, j int) bool {
		return layout.Entries[i].Order < layout.Entries[j].Order
	})
	return layout, nil
}
