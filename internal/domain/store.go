package domain

import (
	"context"
	"time"
)

// CandleStore archives fetched candles.
type CandleStore interface {
	InsertBatch(ctx context.Context, interval string, candles []Candle) error
	ListRecent(ctx context.Context, interval string, limit int) ([]Candle, error)
}

// TradeStore archives streamed and fetched trade prints.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListRecent(ctx context.Context, limit int) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BlobWriter uploads a blob to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// BlobReader downloads a blob from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// BlobInfo is the metadata of one stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}
