package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Source is the authoritative lookup behind the cache.
type Source interface {
	Product(ctx context.Context, id int64) (Product, error)
	Counterparty(ctx context.Context, id int64) (Counterparty, error)
}

// Cache is a Redis read-through cache for catalog lookups. Concurrent
// misses for one key share a single source call.
type Cache struct {
	source Source
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCache wraps source. A nil client disables caching.
func NewCache(source Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{source: source, client: client, ttl: ttl, logger: logger}
}

func productKey(id int64) string      { return fmt.Sprintf("catalog:product:%d", id) }
func counterpartyKey(id int64) string { return fmt.Sprintf("catalog:counterparty:%d", id) }

// Product returns a cached product, loading it on miss.
func (c *Cache) Product(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := c.fetch(ctx, productKey(id), &p, func(ctx context.Context) (any, error) {
		return c.source.Product(ctx, id)
	})
	return p, err
}

// Counterparty returns a cached counterparty, loading it on miss.
func (c *Cache) Counterparty(ctx context.Context, id int64) (Counterparty, error) {
	var cp Counterparty
	err := c.fetch(ctx, counterpartyKey(id), &cp, func(ctx context.Context) (any, error) {
		return c.source.Counterparty(ctx, id)
	})
	return cp, err
}

// InvalidateProduct drops a product after it changes upstream.
func (c *Cache) InvalidateProduct(ctx context.Context, id int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, productKey(id)).Err()
}

// InvalidateCounterparty drops a counterparty after it changes upstream.
func (c *Cache) InvalidateCounterparty(ctx context.Context, id int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, counterpartyKey(id)).Err()
}

func (c *Cache) fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog cache read", slog.String("key", key), slog.Any("error", err))
		}
	}
	ch := c.group.DoChan(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("catalog cache write", slog.String("key", key), slog.Any("error", err))
			}
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}
