package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattvy/chartgrid/internal/domain"
)

func TestLayoutCodec_RoundTrip(t *testing.T) {
	layout := domain.GridLayout{
		Columns: 3,
		Entries: []domain.GridLayoutEntry{
			{ResourceID: "chart-1", TimeframeID: "1h", Width: 640, Height: 480, Order: 0},
			{ResourceID: "chart-2", TimeframeID: "1d", Width: 800, Height: 600, Order: 1},
		},
	}

	blob, err := EncodeLayout(layout)
	require.NoError(t, err)

	got, err := DecodeLayout(blob)
	require.NoError(t, err)
	assert.Equal(t, layout, got)
}

func TestDecodeLayout_SortsByOrder(t *testing.T) {
	blob, err := EncodeLayout(domain.GridLayout{
		Columns: 2,
		Entries: []domain.GridLayoutEntry{
			{ResourceID: "chart-9", TimeframeID: "1d", Order: 2},
			{ResourceID: "chart-4", TimeframeID: "1h", Order: 0},
			{ResourceID: "chart-6", TimeframeID: "5m", Order: 1},
		},
	})
	require.NoError(t, err)

	got, err := DecodeLayout(blob)
	require.NoError(t, err)
	require.Len(t, got.Entries, 3)
	assert.Equal(t, "chart-4", got.Entries[0].ResourceID)
	assert.Equal(t, "chart-6", got.Entries[1].ResourceID)
	assert.Equal(t, "chart-9", got.Entries[2].ResourceID)
}

func TestDecodeLayout_EmptySignals(t *testing.T) {
	_, err := DecodeLayout("")
	assert.ErrorIs(t, err, domain.ErrEmptyLayout)

	blob, err := EncodeLayout(domain.GridLayout{Columns: 2})
	require.NoError(t, err)
	_, err = DecodeLayout(blob)
	assert.ErrorIs(t, err, domain.ErrEmptyLayout)
}

func TestDecodeLayout_Corrupt(t *testing.T) {
	_, err := DecodeLayout("{not json")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrEmptyLayout)
}

func TestDecodeLayout_VersionMismatch(t *testing.T) {
	_, err := DecodeLayout(`{"version":99,"columns":2,"panels":[{"resource_id":"chart-1"}]}`)
	assert.Error(t, err)
}
