package domain

import "time"

// Candle represents a single OHLC candlestick.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// PriceDelta returns lastClose - firstOpen over the series, the figure each
// panel displays next to its candles. Zero for an empty series.
func PriceDelta(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close - candles[0].Open
}
