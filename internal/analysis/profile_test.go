package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattvy/chartgrid/internal/domain"
)

func mkTrade(price, qty float64, side string) domain.Trade {
	return domain.Trade{
		Price:        price,
		Quantity:     qty,
		Side:         side,
		IsBuyerMaker: side == "sell",
		Time:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAggregateProfile_TwoLevels(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(100, 1, "buy"),
		mkTrade(100, 2, "sell"),
		mkTrade(110, 5, "buy"),
	}

	levels := AggregateProfile(trades, 2, 0)

	require.Len(t, levels, 2)
	assert.InDelta(t, 100, levels[0].Price, 1e-9)
	assert.InDelta(t, 3, levels[0].TotalVolume, 1e-9)
	assert.InDelta(t, 1, levels[0].BuyVolume, 1e-9)
	assert.InDelta(t, 2, levels[0].SellVolume, 1e-9)
	assert.InDelta(t, 110, levels[1].Price, 1e-9)
	assert.InDelta(t, 5, levels[1].TotalVolume, 1e-9)

	poc, ok := PointOfControl(levels)
	require.True(t, ok)
	assert.InDelta(t, 110, poc, 1e-9)
}

func TestAggregateProfile_VolumeConservation(t *testing.T) {
	prices := []float64{100, 101.3, 99.7, 105, 103.2, 100.1, 108.8, 97.5}
	var trades []domain.Trade
	var want float64
	for i, p := range prices {
		qty := float64(i%3) + 0.5
		side := "buy"
		if i%2 == 1 {
			side = "sell"
		}
		trades = append(trades, mkTrade(p, qty, side))
		want += qty
	}

	levels := AggregateProfile(trades, 5, 0)

	var got, buys, sells, makers, takers float64
	var count int
	for _, lv := range levels {
		got += lv.TotalVolume
		buys += lv.BuyVolume
		sells += lv.SellVolume
		makers += lv.MakerVolume
		takers += lv.TakerVolume
		count += lv.TradeCount
	}
	assert.InDelta(t, want, got, 1e-9)
	assert.InDelta(t, want, buys+sells, 1e-9)
	assert.InDelta(t, want, makers+takers, 1e-9)
	assert.Equal(t, len(trades), count)
}

func TestAggregateProfile_DropsEmptyBinsAndSorts(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(200, 1, "buy"),
		mkTrade(100, 1, "buy"),
	}

	levels := AggregateProfile(trades, 10, 0)

	require.Len(t, levels, 2)
	assert.Less(t, levels[0].Price, levels[1].Price)
	for _, lv := range levels {
		assert.Greater(t, lv.TotalVolume, 0.0)
	}
}

func TestAggregateProfile_TickSizeOverride(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(100.0, 1, "buy"),
		mkTrade(100.4, 1, "buy"), // rounds down to 100.0 with tick 1
		mkTrade(100.6, 1, "buy"), // rounds up to 101.0
	}

	levels := AggregateProfile(trades, 4, 1.0)

	require.Len(t, levels, 2)
	assert.InDelta(t, 100, levels[0].Price, 1e-9)
	assert.InDelta(t, 2, levels[0].TotalVolume, 1e-9)
	assert.InDelta(t, 101, levels[1].Price, 1e-9)
	assert.InDelta(t, 1, levels[1].TotalVolume, 1e-9)
}

func TestAggregateProfile_SinglePrice(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(42, 1, "buy"),
		mkTrade(42, 2, "sell"),
	}

	levels := AggregateProfile(trades, 10, 0)

	require.Len(t, levels, 1)
	assert.InDelta(t, 42, levels[0].Price, 1e-9)
	assert.InDelta(t, 3, levels[0].TotalVolume, 1e-9)
}

func TestAggregateProfile_Empty(t *testing.T) {
	assert.Nil(t, AggregateProfile(nil, 10, 0))

	_, ok := PointOfControl(nil)
	assert.False(t, ok)
	_, ok = ValueArea(nil, 0.7)
	assert.False(t, ok)
}

func TestPointOfControl_SingleMaximum(t *testing.T) {
	levels := []domain.PriceLevel{
		{Price: 100, TotalVolume: 3},
		{Price: 101, TotalVolume: 9},
		{Price: 102, TotalVolume: 9}, // tie: lower price wins
		{Price: 103, TotalVolume: 1},
	}

	poc, ok := PointOfControl(levels)
	require.True(t, ok)
	assert.InDelta(t, 101, poc, 1e-9)

	var pocVol float64
	for _, lv := range levels {
		if lv.Price == poc {
			pocVol = lv.TotalVolume
		}
	}
	for _, lv := range levels {
		assert.LessOrEqual(t, lv.TotalVolume, pocVol)
	}
}

func TestValueArea_TargetAndTightness(t *testing.T) {
	levels := []domain.PriceLevel{
		{Price: 100, TotalVolume: 1},
		{Price: 101, TotalVolume: 4},
		{Price: 102, TotalVolume: 10},
		{Price: 103, TotalVolume: 6},
		{Price: 104, TotalVolume: 2},
	}
	const fraction = 0.7

	va, ok := ValueArea(levels, fraction)
	require.True(t, ok)

	var total float64
	for _, lv := range levels {
		total += lv.TotalVolume
	}

	within := func(low, high float64) float64 {
		var sum float64
		for _, lv := range levels {
			if lv.Price >= low-1e-9 && lv.Price <= high+1e-9 {
				sum += lv.TotalVolume
			}
		}
		return sum
	}

	acc := within(va.Low, va.High)
	assert.GreaterOrEqual(t, acc, fraction*total)

	// Tightness: removing either boundary bin drops below the target,
	// unless the boundary is the POC itself.
	if va.Low != 102 {
		assert.Less(t, within(va.Low+1, va.High), fraction*total)
	}
	if va.High != 102 {
		assert.Less(t, within(va.Low, va.High-1), fraction*total)
	}
}

func TestValueArea_TieFavorsHigherSide(t *testing.T) {
	levels := []domain.PriceLevel{
		{Price: 100, TotalVolume: 5},
		{Price: 101, TotalVolume: 10},
		{Price: 102, TotalVolume: 5},
	}

	// Target just above the POC share forces exactly one expansion; both
	// neighbors carry 5, so the higher side must be chosen.
	va, ok := ValueArea(levels, 0.55)
	require.True(t, ok)
	assert.InDelta(t, 101, va.Low, 1e-9)
	assert.InDelta(t, 102, va.High, 1e-9)
}

func TestValueArea_ExhaustionStopsExpansion(t *testing.T) {
	levels := []domain.PriceLevel{
		{Price: 100, TotalVolume: 1},
		{Price: 101, TotalVolume: 1},
	}

	va, ok := ValueArea(levels, 1.0)
	require.True(t, ok)
	assert.InDelta(t, 100, va.Low, 1e-9)
	assert.InDelta(t, 101, va.High, 1e-9)
}

func TestBuildProfile_Summary(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(100, 1, "buy"),
		mkTrade(100, 2, "sell"),
		mkTrade(110, 5, "buy"),
	}

	profile := BuildProfile(trades, 2, 0, 0.7)

	assert.InDelta(t, 8, profile.TotalVolume, 1e-9)
	assert.Equal(t, 3, profile.TradeCount)
	assert.InDelta(t, 110, profile.PointOfControl, 1e-9)
	assert.False(t, math.IsNaN(profile.ValueArea.Low))
	assert.LessOrEqual(t, profile.ValueArea.Low, profile.ValueArea.High)
}
