package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattvy/chartgrid/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// WSClient streams aggregated trades for one symbol over a single WebSocket
// session. It reads until the connection drops or the context is cancelled;
// reconnect supervision belongs to the caller.
type WSClient struct {
	streamURL string
}

// NewWSClient creates a client for the symbol's aggTrade stream.
//
// baseURL is the stream root, e.g. "wss://stream.binance.com:9443".
func NewWSClient(baseURL, symbol string) *WSClient {
	return &WSClient{
		streamURL: baseURL + "/ws/" + strings.ToLower(symbol) + "@aggTrade",
	}
}

// Run dials the stream and invokes handler for every trade until the
// connection fails or ctx is cancelled. It always returns a non-nil error;
// clean context shutdown returns ctx.Err().
func (w *WSClient) Run(ctx context.Context, handler domain.TradeHandler) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.streamURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when the context ends so the blocked read returns.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			_ = conn.Close()
		case <-stop:
		}
	}()

	go pingLoop(conn, stop)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance/ws: read: %w: %v", domain.ErrWSDisconnect, err)
		}

		var msg aggTradeMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // drop unparseable frames
		}
		if msg.Event != "aggTrade" {
			continue
		}

		trade, err := msg.toDomainTrade()
		if err != nil {
			continue
		}
		handler(ctx, trade)
	}
}

// pingLoop sends periodic ping messages to keep the connection alive.
func pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
