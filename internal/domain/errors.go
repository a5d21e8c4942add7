package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("resource id already exists")
	ErrUnknownTimeframe  = errors.New("unknown timeframe id")
	ErrInvalidDimensions = errors.New("dimensions out of range")
	ErrDestroyed         = errors.New("resource destroyed")
	ErrEmptyLayout       = errors.New("empty layout")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrLockHeld          = errors.New("lock already held")
	ErrRateLimited       = errors.New("rate limited")
)
