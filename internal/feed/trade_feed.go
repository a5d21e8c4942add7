// Package feed supervises live market data connections, reconnecting with
// backoff and fanning trades out to the registered consumers.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattvy/chartgrid/internal/domain"
	"github.com/mattvy/chartgrid/internal/platform/binance"
)

const (
	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// TradeFeed supervises the exchange trade stream: it connects, dispatches
// every trade to the registered handlers, and reconnects with exponential
// backoff on disconnect. A successful session resets the backoff.
type TradeFeed struct {
	streamBase string
	symbol     string
	logger     *slog.Logger

	handlerMu sync.RWMutex
	handlers  []domain.TradeHandler

	closeOnce sync.Once
	done      chan struct{}
}

// NewTradeFeed creates a feed for the symbol's aggregated trade stream.
func NewTradeFeed(streamBase, symbol string, logger *slog.Logger) *TradeFeed {
	return &TradeFeed{
		streamBase: streamBase,
		symbol:     symbol,
		logger:     logger.With(slog.String("component", "trade_feed")),
		done:       make(chan struct{}),
	}
}

// OnTrade registers a handler invoked for every streamed trade. Handlers run
// on the read goroutine and must not block.
func (f *TradeFeed) OnTrade(handler domain.TradeHandler) {
	f.handlerMu.Lock()
	defer f.handlerMu.Unlock()
	f.handlers = append(f.handlers, handler)
}

// Run connects and streams until ctx is cancelled or Close is called,
// reconnecting with backoff on disconnect.
func (f *TradeFeed) Run(ctx context.Context) error {
	delay := reconnectDelay

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		client := binance.NewWSClient(f.streamBase, f.symbol)
		started := time.Now()
		f.logger.Info("trade stream connecting", slog.String("symbol", f.symbol))

		err := client.Run(ctx, f.dispatch)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A session that held for a while earns a fresh backoff.
		if time.Since(started) > time.Minute {
			delay = reconnectDelay
		}

		f.logger.Warn("trade stream disconnected, reconnecting",
			slog.String("symbol", f.symbol),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// StreamTrades runs the feed with a single handler, satisfying
// domain.TradeStreamer for callers that do not need fan-out.
func (f *TradeFeed) StreamTrades(ctx context.Context, handler domain.TradeHandler) error {
	f.OnTrade(handler)
	return f.Run(ctx)
}

// Close stops the feed.
func (f *TradeFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *TradeFeed) dispatch(ctx context.Context, trade domain.Trade) {
	f.handlerMu.RLock()
	handlers := f.handlers
	f.handlerMu.RUnlock()

	for _, h := range handlers {
		h(ctx, trade)
	}
}

// Compile-time interface check.
var _ domain.TradeStreamer = (*TradeFeed)(nil)
