package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mattvy/chartgrid/internal/domain"
)

// LayoutStore implements domain.LayoutStore using plain Redis strings. The
// registry serializes the whole grid into one blob, so a single GET/SET per
// operation is all the store needs.
type LayoutStore struct {
	rdb *redis.Client
}

// NewLayoutStore creates a LayoutStore backed by the given Client.
func NewLayoutStore(c *Client) *LayoutStore {
	return &LayoutStore{rdb: c.RDB()}
}

// Get returns the stored blob, or domain.ErrNotFound when the key is absent.
func (ls *LayoutStore) Get(ctx context.Context, key string) (string, error) {
	val, err := ls.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("redis: get layout %s: %w", key, err)
	}
	return val, nil
}

// Set stores the blob without expiry; layouts persist until overwritten or
// removed.
func (ls *LayoutStore) Set(ctx context.Context, key, value string) error {
	if err := ls.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set layout %s: %w", key, err)
	}
	return nil
}

// Remove deletes the stored blob. Removing an absent key is not an error.
func (ls *LayoutStore) Remove(ctx context.Context, key string) error {
	if err := ls.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: remove layout %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LayoutStore = (*LayoutStore)(nil)
