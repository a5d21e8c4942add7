// Package analysis holds the pure analytical algorithms the chart panels
// drive: swing-point detection over candle series and volume-profile
// aggregation over raw trade prints. Everything here is deterministic and
// stateless; callers may invoke the functions repeatedly with different
// parameters on the same input.
package analysis

import (
	"time"

	"github.com/mattvy/chartgrid/internal/domain"
)

// DetectSwings classifies the swing highs and lows of a candle series.
//
// A candle at index i is a swing high when its high strictly exceeds the
// high of every candle in [i-comparisonWindow, i+forwardWindow] excluding
// itself; a swing low when its low is less than or equal to every low in the
// same window. Analysis is restricted to the last
// min(analysisWindow, len(candles)) candles; indices without a full window
// on either side are skipped.
//
// Classification runs independently per side: the first high of a run is HH
// and each subsequent high is HH when its price strictly exceeds the
// previous swing high, LH otherwise. Lows mirror this with HL / LL.
//
// Points are emitted in ascending time order. When a candle qualifies as
// both high and low, only the high (the first occurrence at that timestamp)
// is kept. Series shorter than comparisonWindow+forwardWindow+1 yield an
// empty result, never an error.
func DetectSwings(candles []domain.Candle, comparisonWindow, analysisWindow, forwardWindow int) []domain.SwingPoint {
	n := len(candles)
	if comparisonWindow < 1 || forwardWindow < 1 || analysisWindow < 1 {
		return nil
	}
	if n < comparisonWindow+forwardWindow+1 {
		return nil
	}

	start := comparisonWindow
	if first := n - analysisWindow; first > start {
		start = first
	}
	end := n - forwardWindow

	var (
		points   []domain.SwingPoint
		seen     = make(map[int64]bool)
		haveHigh bool
		haveLow  bool
		prevHigh float64
		prevLow  float64
	)

	for i := start; i < end; i++ {
		isHigh, isLow := classifyExtremum(candles, i, comparisonWindow, forwardWindow)

		if isHigh {
			class := domain.HigherHigh
			if haveHigh && candles[i].High <= prevHigh {
				class = domain.LowerHigh
			}
			haveHigh = true
			prevHigh = candles[i].High

			if p, ok := emit(candles[i].OpenTime, seen); ok {
				points = append(points, domain.SwingPoint{
					Price:          candles[i].High,
					Time:           p,
					Classification: class,
					SourceIndex:    i,
					IsHigh:         true,
				})
			}
		}

		if isLow {
			class := domain.HigherLow
			if haveLow && candles[i].Low <= prevLow {
				class = domain.LowerLow
			}
			haveLow = true
			prevLow = candles[i].Low

			if p, ok := emit(candles[i].OpenTime, seen); ok {
				points = append(points, domain.SwingPoint{
					Price:          candles[i].Low,
					Time:           p,
					Classification: class,
					SourceIndex:    i,
					IsHigh:         false,
				})
			}
		}
	}

	return points
}

// classifyExtremum reports whether candle i is a swing high and/or swing low
// within its comparison/forward window.
func classifyExtremum(candles []domain.Candle, i, back, forward int) (isHigh, isLow bool) {
	isHigh, isLow = true, true
	for j := i - back; j <= i+forward; j++ {
		if j == i {
			continue
		}
		if candles[i].High <= candles[j].High {
			isHigh = false
		}
		if candles[i].Low > candles[j].Low {
			isLow = false
		}
		if !isHigh && !isLow {
			return false, false
		}
	}
	return isHigh, isLow
}

// emit suppresses duplicate timestamps, keeping the first occurrence.
func emit(ts time.Time, seen map[int64]bool) (time.Time, bool) {
	key := ts.UnixNano()
	if seen[key] {
		return ts, false
	}
	seen[key] = true
	return ts, true
}

// SwingLine projects swing points into an overlay line series for a
// rendering surface, preserving emission order.
func SwingLine(points []domain.SwingPoint) []domain.LinePoint {
	if len(points) == 0 {
		return nil
	}
	line := make([]domain.LinePoint, 0, len(points))
	for _, p := range points {
		line = append(line, domain.LinePoint{Time: p.Time, Value: p.Price})
	}
	return line
}
