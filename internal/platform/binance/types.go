package binance

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mattvy/chartgrid/internal/domain"
)

// APITrade is the wire shape of one entry from the /api/v3/trades endpoint.
type APITrade struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	QuoteQty     string `json:"quoteQty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// ToDomainTrade converts an API trade into the domain shape. The side is the
// taker side: when the buyer is the maker, the taker sold.
func (t *APITrade) ToDomainTrade() (domain.Trade, error) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse price %q: %w", t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Qty, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse qty %q: %w", t.Qty, err)
	}
	quote, err := strconv.ParseFloat(t.QuoteQty, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse quoteQty %q: %w", t.QuoteQty, err)
	}

	side := "buy"
	if t.IsBuyerMaker {
		side = "sell"
	}

	return domain.Trade{
		ID:           strconv.FormatInt(t.ID, 10),
		Price:        price,
		Quantity:     qty,
		QuoteAmount:  quote,
		Side:         side,
		IsBuyerMaker: t.IsBuyerMaker,
		Time:         time.UnixMilli(t.Time),
	}, nil
}

// aggTradeMessage is the wire shape of one aggTrade stream event.
type aggTradeMessage struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggID        int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func (m *aggTradeMessage) toDomainTrade() (domain.Trade, error) {
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse price %q: %w", m.Price, err)
	}
	qty, err := strconv.ParseFloat(m.Quantity, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse qty %q: %w", m.Quantity, err)
	}

	side := "buy"
	if m.IsBuyerMaker {
		side = "sell"
	}

	return domain.Trade{
		ID:           strconv.FormatInt(m.AggID, 10),
		Price:        price,
		Quantity:     qty,
		QuoteAmount:  price * qty,
		Side:         side,
		IsBuyerMaker: m.IsBuyerMaker,
		Time:         time.UnixMilli(m.TradeTime),
	}, nil
}

// parseKlineRow converts one /api/v3/klines row into a candle. Rows are
// mixed-type JSON arrays: timestamps arrive as numbers, prices and volume as
// strings.
func parseKlineRow(row []interface{}) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("kline row too short: %d fields", len(row))
	}

	openMs, ok := row[0].(float64)
	if !ok {
		return domain.Candle{}, fmt.Errorf("kline open time: unexpected type %T", row[0])
	}

	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := row[i].(string)
		if !ok {
			return domain.Candle{}, fmt.Errorf("kline field %d: unexpected type %T", i, row[i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d: %w", i, err)
		}
		vals[i-1] = v
	}

	return domain.Candle{
		OpenTime: time.UnixMilli(int64(openMs)),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
