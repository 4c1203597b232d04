package domain

import (
	"context"
	"time"
)

// CatalogCache is a shared second tier for venue instrument catalogs.
type CatalogCache interface {
	SetCatalog(ctx context.Context, cat Catalog, ttl time.Duration) error
	GetCatalog(ctx context.Context, venue string) (Catalog, error)
	Invalidate(ctx context.Context, venue string) error
}

// PriceCache provides fast access to the latest prices, keyed by pair key.
type PriceCache interface {
	SetPrice(ctx context.Context, key string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, key string) (float64, time.Time, error)
	GetPrices(ctx context.Context, keys []string) (map[string]float64, error)
}

// LockManager provides keyed mutual exclusion. The returned unlock func must
// be called exactly once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// ReportBus fans cycle reports out to other processes.
type ReportBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter provides shared request rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
