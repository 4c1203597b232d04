package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// CatalogCache shares venue catalogs between processes. Each venue is one
// JSON string at {prefix}:catalog:{venue}, expiring with the registry TTL.
type CatalogCache struct {
	c *Client
}

// NewCatalogCache creates a CatalogCache backed by the given Client.
func NewCatalogCache(c *Client) *CatalogCache {
	return &CatalogCache{c: c}
}

// SetCatalog stores a venue catalog for ttl.
func (cc *CatalogCache) SetCatalog(ctx context.Context, cat domain.Catalog, ttl time.Duration) error {
	data, err := json.Marshal(cat)
	if err != nil {
		return fmt.Errorf("redis: marshal catalog %s: %w", cat.Venue, err)
	}
	if err := cc.c.rdb.Set(ctx, cc.c.key("catalog", cat.Venue), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set catalog %s: %w", cat.Venue, err)
	}
	return nil
}

// GetCatalog returns domain.ErrNotFound on a miss.
func (cc *CatalogCache) GetCatalog(ctx context.Context, venue string) (domain.Catalog, error) {
	data, err := cc.c.rdb.Get(ctx, cc.c.key("catalog", venue)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Catalog{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("redis: get catalog %s: %w", venue, err)
	}
	var cat domain.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return domain.Catalog{}, fmt.Errorf("redis: unmarshal catalog %s: %w", venue, err)
	}
	return cat, nil
}

// Invalidate drops a venue's cached catalog.
func (cc *CatalogCache) Invalidate(ctx context.Context, venue string) error {
	if err := cc.c.rdb.Del(ctx, cc.c.key("catalog", venue)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate catalog %s: %w", venue, err)
	}
	return nil
}

var _ domain.CatalogCache = (*CatalogCache)(nil)
