package domain

import "context"

// MarketDataSource provides OHLC candles and raw trade prints for the
// configured symbol. Implementations must be safe for concurrent use: panels
// issue their loads independently.
type MarketDataSource interface {
	// Candles returns up to limit most recent candles for the interval,
	// oldest first.
	Candles(ctx context.Context, interval string, limit int) ([]Candle, error)

	// Trades returns up to limit most recent trade prints, oldest first.
	Trades(ctx context.Context, limit int) ([]Trade, error)
}

// TradeHandler consumes one streamed trade print.
type TradeHandler func(ctx context.Context, trade Trade)

// TradeStreamer delivers live trade prints one at a time until the context
// is cancelled.
type TradeStreamer interface {
	StreamTrades(ctx context.Context, handler TradeHandler) error
}
