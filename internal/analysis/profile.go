package analysis

import (
	"math"
	"sort"

	"github.com/mattvy/chartgrid/internal/domain"
)

// AggregateProfile bins trade prints into a price-level volume histogram.
//
// The price grid spans [min(price), max(price)] split into levelCount
// equal-width bins, unless tickSize is positive, in which case it fixes the
// bin width directly. Each trade is assigned to the nearest bin center by
// rounding (price-min)/tick half-up; a bin's price is min + index*tick.
// Bins that accumulate no volume are dropped, so the result only reports
// occupied price levels, in ascending price order.
func AggregateProfile(trades []domain.Trade, levelCount int, tickSize float64) []domain.PriceLevel {
	if len(trades) == 0 || levelCount < 1 {
		return nil
	}

	minPrice, maxPrice := trades[0].Price, trades[0].Price
	for _, t := range trades[1:] {
		if t.Price < minPrice {
			minPrice = t.Price
		}
		if t.Price > maxPrice {
			maxPrice = t.Price
		}
	}

	tick := tickSize
	if tick <= 0 {
		tick = (maxPrice - minPrice) / float64(levelCount)
	}

	bins := make(map[int]*domain.PriceLevel)
	for _, t := range trades {
		idx := 0
		if tick > 0 {
			// Round half-up; the original behavior at exact midpoints is
			// ambiguous, so this tie-break is the documented one.
			idx = int(math.Floor((t.Price-minPrice)/tick + 0.5))
		}

		bin, ok := bins[idx]
		if !ok {
			bin = &domain.PriceLevel{Price: minPrice + float64(idx)*tick}
			bins[idx] = bin
		}

		bin.TotalVolume += t.Quantity
		bin.TradeCount++
		switch t.Side {
		case "buy":
			bin.BuyVolume += t.Quantity
		case "sell":
			bin.SellVolume += t.Quantity
		}
		if t.IsBuyerMaker {
			bin.MakerVolume += t.Quantity
		} else {
			bin.TakerVolume += t.Quantity
		}
	}

	levels := make([]domain.PriceLevel, 0, len(bins))
	for _, bin := range bins {
		if bin.TotalVolume > 0 {
			levels = append(levels, *bin)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

// PointOfControl returns the price of the level with the highest total
// volume. The lowest-priced level wins ties. ok is false on empty input.
func PointOfControl(levels []domain.PriceLevel) (price float64, ok bool) {
	if len(levels) == 0 {
		return 0, false
	}
	best := 0
	for i := 1; i < len(levels); i++ {
		if levels[i].TotalVolume > levels[best].TotalVolume {
			best = i
		}
	}
	return levels[best].Price, true
}

// ValueArea computes the contiguous price range around the point of control
// that contains at least targetFraction of the total volume. Starting from
// the POC level, the range expands one level at a time toward whichever
// adjacent side carries the larger next volume; ties favor the higher side.
// Expansion stops once the accumulated volume reaches the target or both
// sides are exhausted. ok is false on empty input.
func ValueArea(levels []domain.PriceLevel, targetFraction float64) (domain.PriceRange, bool) {
	if len(levels) == 0 {
		return domain.PriceRange{}, false
	}

	var total float64
	poc := 0
	for i, lv := range levels {
		total += lv.TotalVolume
		if lv.TotalVolume > levels[poc].TotalVolume {
			poc = i
		}
	}

	target := targetFraction * total
	lo, hi := poc, poc
	acc := levels[poc].TotalVolume

	for acc < target {
		canLower := lo > 0
		canHigher := hi < len(levels)-1
		if !canLower && !canHigher {
			break
		}

		switch {
		case !canLower:
			hi++
			acc += levels[hi].TotalVolume
		case !canHigher:
			lo--
			acc += levels[lo].TotalVolume
		case levels[hi+1].TotalVolume >= levels[lo-1].TotalVolume:
			hi++
			acc += levels[hi].TotalVolume
		default:
			lo--
			acc += levels[lo].TotalVolume
		}
	}

	return domain.PriceRange{Low: levels[lo].Price, High: levels[hi].Price}, true
}

// BuildProfile aggregates trades and attaches the POC and value-area
// statistics in one call.
func BuildProfile(trades []domain.Trade, levelCount int, tickSize, valueAreaFraction float64) domain.VolumeProfile {
	levels := AggregateProfile(trades, levelCount, tickSize)

	var total float64
	var count int
	for _, lv := range levels {
		total += lv.TotalVolume
		count += lv.TradeCount
	}

	profile := domain.VolumeProfile{
		Levels:      levels,
		TotalVolume: total,
		TradeCount:  count,
	}
	if poc, ok := PointOfControl(levels); ok {
		profile.PointOfControl = poc
	}
	if va, ok := ValueArea(levels, valueAreaFraction); ok {
		profile.ValueArea = va
	}
	return profile
}
