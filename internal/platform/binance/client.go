// Package binance implements the market data source against the Binance
// spot REST API and the aggTrade WebSocket stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mattvy/chartgrid/internal/domain"
)

// restRateKey is the sliding-window budget key shared by all REST calls.
const restRateKey = "binance:rest"

// RESTClient is the REST client for Binance spot market data. A nil limiter
// disables client-side budgeting.
type RESTClient struct {
	baseURL    string
	symbol     string
	httpClient *http.Client
	limiter    domain.RateLimiter
}

// NewRESTClient creates a market data client for one symbol.
//
// baseURL is the API root, e.g. "https://api.binance.com".
func NewRESTClient(baseURL, symbol string, limiter domain.RateLimiter) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		symbol:  strings.ToUpper(symbol),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}
}

// Symbol returns the configured trading pair.
func (c *RESTClient) Symbol() string { return c.symbol }

// Candles returns up to limit most recent candles for the interval, oldest
// first, as the klines endpoint delivers them.
func (c *RESTClient) Candles(ctx context.Context, interval string, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.doGet(ctx, "/api/v3/klines?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("binance: get klines %s/%s: %w", c.symbol, interval, err)
	}

	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("binance: kline row %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// Trades returns up to limit most recent trade prints, oldest first.
func (c *RESTClient) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.doGet(ctx, "/api/v3/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("binance: get trades %s: %w", c.symbol, err)
	}

	var apiTrades []APITrade
	if err := json.Unmarshal(body, &apiTrades); err != nil {
		return nil, fmt.Errorf("binance: decode trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(apiTrades))
	for i := range apiTrades {
		trade, err := apiTrades[i].ToDomainTrade()
		if err != nil {
			return nil, fmt.Errorf("binance: trade %d: %w", i, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// doGet sends an unauthenticated GET request, waiting on the rate budget
// first when a limiter is configured.
func (c *RESTClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, restRateKey); err != nil {
			return nil, fmt.Errorf("rate budget: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
// Binance answers 429 when the request weight budget is exceeded and 418
// when a client keeps hammering past that.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// Compile-time interface check.
var _ domain.MarketDataSource = (*RESTClient)(nil)
