// Package cache provides a Redis read-through layer over the product catalog.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/karim1556/ecom-core/internal/domain/product"
)

const productTTL = 5 * time.Minute

var _ product.Repository = (*ProductCache)(nil)

// ProductCache decorates a product.Repository with Redis caching for catalog
// reads. Stock reads and the atomic stock adjustment always hit the backing
// store: caching them would reintroduce the read-then-write race the
// conditional updates exist to close. Cache failures degrade to the backing
// store with a log entry, never to a request failure.
type ProductCache struct {
	inner  product.Repository
	client *redis.Client
}

// NewProductCache wraps the given repository with a Redis cache.
func NewProductCache(inner product.Repository, client *redis.Client) *ProductCache {
	return &ProductCache{inner: inner, client: client}
}

func productKey(id string) string {
	return "product:" + id
}

// GetByID returns a product, serving repeated reads from Redis.
func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if p, ok := c.cached(ctx, id); ok {
		return p, nil
	}

	p, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, *p)
	return p, nil
}

// GetByIDs returns products for the given ids, mixing cache hits with a
// single backing-store query for the misses.
func (c *ProductCache) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	var misses []string
	for _, id := range ids {
		if p, ok := c.cached(ctx, id); ok {
			out = append(out, *p)
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.inner.GetByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, p := range fetched {
		c.store(ctx, p)
		out = append(out, p)
	}
	return out, nil
}

// List always hits the backing store; the full catalog listing is not worth
// keeping coherent against per-product entries.
func (c *ProductCache) List(ctx context.Context) ([]product.Product, error) {
	return c.inner.List(ctx)
}

// GetStock bypasses the cache.
func (c *ProductCache) GetStock(ctx context.Context, id string) (*product.Stock, error) {
	return c.inner.GetStock(ctx, id)
}

// AdjustStock passes through to the backing store's atomic update and
// invalidates the cached product, whose quantity snapshot is now stale.
func (c *ProductCache) AdjustStock(ctx context.Context, id string, qty int, op product.StockOp) (int, error) {
	newQty, err := c.inner.AdjustStock(ctx, id, qty, op)
	if err != nil {
		return 0, err
	}
	if err := c.client.Del(ctx, productKey(id)).Err(); err != nil {
		zctx.From(ctx).Warn("invalidate cached product",
			zap.String("product_id", id), zap.Error(err))
	}
	return newQty, nil
}

func (c *ProductCache) cached(ctx context.Context, id string) (*product.Product, bool) {
	data, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			zctx.From(ctx).Warn("product cache read",
				zap.String("product_id", id), zap.Error(err))
		}
		return nil, false
	}
	var p product.Product
	if err := json.Unmarshal(data, &p); err != nil {
		zctx.From(ctx).Warn("decode cached product",
			zap.String("product_id", id), zap.Error(err))
		return nil, false
	}
	return &p, true
}

func (c *ProductCache) store(ctx context.Context, p product.Product) {
	data, err := json.Marshal(p)
	if err != nil {
		zctx.From(ctx).Warn("encode product for cache",
			zap.String("product_id", p.ID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, productKey(p.ID), data, productTTL).Err(); err != nil {
		zctx.From(ctx).Warn("product cache write",
			zap.String("product_id", p.ID), zap.Error(err))
	}
}

// NewRedisClient creates a Redis client from a URL (redis://host:port/db)
// and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}
