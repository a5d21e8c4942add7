package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattvy/chartgrid/internal/domain"
)

func TestAPITrade_ToDomainTrade(t *testing.T) {
	api := APITrade{
		ID:           28457,
		Price:        "41250.10",
		Qty:          "0.5",
		QuoteQty:     "20625.05",
		Time:         1735689600000,
		IsBuyerMaker: true,
	}

	trade, err := api.ToDomainTrade()
	require.NoError(t, err)

	assert.Equal(t, "28457", trade.ID)
	assert.Equal(t, 41250.10, trade.Price)
	assert.Equal(t, 0.5, trade.Quantity)
	assert.Equal(t, 20625.05, trade.QuoteAmount)
	assert.Equal(t, "sell", trade.Side) // buyer was the maker, so the taker sold
	assert.True(t, trade.IsBuyerMaker)
	assert.Equal(t, time.UnixMilli(1735689600000), trade.Time)
}

func TestAPITrade_ToDomainTradeBadPrice(t *testing.T) {
	api := APITrade{ID: 1, Price: "not-a-number", Qty: "1", QuoteQty: "1"}
	_, err := api.ToDomainTrade()
	require.Error(t, err)
}

func TestAggTradeMessage_ToDomainTrade(t *testing.T) {
	msg := aggTradeMessage{
		Event:        "aggTrade",
		AggID:        991203,
		Price:        "100.5",
		Quantity:     "2",
		TradeTime:    1735689600000,
		IsBuyerMaker: false,
	}

	trade, err := msg.toDomainTrade()
	require.NoError(t, err)

	assert.Equal(t, "991203", trade.ID)
	assert.Equal(t, 100.5, trade.Price)
	assert.Equal(t, 2.0, trade.Quantity)
	assert.Equal(t, 201.0, trade.QuoteAmount)
	assert.Equal(t, "buy", trade.Side)
	assert.False(t, trade.IsBuyerMaker)
}

func TestParseKlineRow(t *testing.T) {
	row := []interface{}{
		float64(1735689600000), "100", "110", "95", "105", "1234.5",
	}

	candle, err := parseKlineRow(row)
	require.NoError(t, err)

	assert.Equal(t, time.UnixMilli(1735689600000), candle.OpenTime)
	assert.Equal(t, domain.Candle{
		OpenTime: candle.OpenTime,
		Open:     100, High: 110, Low: 95, Close: 105, Volume: 1234.5,
	}, candle)
}

func TestParseKlineRow_TooShort(t *testing.T) {
	_, err := parseKlineRow([]interface{}{float64(1), "100"})
	require.Error(t, err)
}
