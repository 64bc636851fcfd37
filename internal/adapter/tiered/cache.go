// Package tiered layers a fast local cache over a shared remote one.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/Fanout/internal/port/cache"
)

// Cache reads the local level first and falls back to the remote level,
// copying remote hits into the local level for localTTL. The remote level is
// best effort: its failures are logged and treated as misses.
type Cache struct {
	local    cache.Cache
	remote   cache.Cache
	localTTL time.Duration
}

// New creates a two-level cache.
func New(local, remote cache.Cache, localTTL time.Duration) *Cache {
	return &Cache{local: local, remote: remote, localTTL: localTTL}
}

// Get looks key up in the local level, then the remote level.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := c.local.Get(ctx, key); err != nil || ok {
		return v, ok, err
	}
	v, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		slog.Warn("remote cache get failed", "key", key, "error", err)
		return nil, false, nil
	}
	if ok {
		_ = c.local.Set(ctx, key, v, c.localTTL)
	}
	return v, ok, nil
}

// Set writes both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("remote cache set failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}
