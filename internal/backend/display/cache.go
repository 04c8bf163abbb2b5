package display

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const handlePathPrefix = "/display/"

// Cache holds rendered display payloads under volatile keys. Handles are
// process-local by design: with no address configured an embedded miniredis
// instance backs the cache, so contents vanish on restart and must be
// regenerated from the durable payload. The cache is never a source of
// truth.
type Cache struct {
	client *redis.Client
	mini   *miniredis.Miniredis
}

// NewCache connects to the Redis instance at addr. An empty addr starts an
// embedded miniredis server, which is the default deployment.
func NewCache(addr string) (*Cache, error) {
	var mini *miniredis.Miniredis
	if addr == "" {
		m, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded display cache: %w", err)
		}
		mini = m
		addr = m.Addr()
		slog.Info("started embedded display cache", "addr", addr)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Cache{client: client, mini: mini}, nil
}

// HandleFor returns the ephemeral display handle (the serving path) for an
// image id. The handle is derived, never persisted.
func (c *Cache) HandleFor(id string) string {
	return handlePathPrefix + id
}

func cacheKey(id string) string {
	return "display:" + id
}

// Get returns the cached display payload for an image id, if present.
func (c *Cache) Get(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read display cache for %s: %w", id, err)
	}
	return data, true, nil
}

// Set stores a rendered display payload for an image id.
func (c *Cache) Set(ctx context.Context, id string, payload []byte) error {
	if err := c.client.Set(ctx, cacheKey(id), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to write display cache for %s: %w", id, err)
	}
	return nil
}

// Invalidate drops the cached payload for an image id. Errors are logged,
// not returned: a stale cache entry is regenerated on next access anyway.
func (c *Cache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		slog.Warn("failed to invalidate display cache entry", "image_id", id, "error", err)
	}
}

// Clear drops every cached display payload.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.client.FlushAll(ctx).Err(); err != nil {
		return fmt.Errorf("failed to clear display cache: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	err := c.client.Close()
	if c.mini != nil {
		c.mini.Close()
	}
	return err
}
