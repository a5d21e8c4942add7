package domain

import (
	"context"
	"time"
)

// LockManager provides distributed mutual exclusion for background jobs that
// must not run concurrently across replicas, such as archive sweeps.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function. It returns ErrLockHeld when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter budgets outbound API calls under a sliding window.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted and counts it.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Wait blocks until a request for key is allowed or ctx is cancelled.
	Wait(ctx context.Context, key string) error
}
