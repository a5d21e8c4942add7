package domain

import "time"

// Trade represents a single trade print from the market data source.
type Trade struct {
	ID           string    `json:"id"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	QuoteAmount  float64   `json:"quote_amount"`
	Side         string    `json:"side"` // taker side: "buy" or "sell"
	IsBuyerMaker bool      `json:"is_buyer_maker"`
	Time         time.Time `json:"time"`
}
