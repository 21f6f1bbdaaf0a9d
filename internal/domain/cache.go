package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceCache provides fast access to the latest implied prices per market.
// Prices are stored at the 1e18 fixed-point scale.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID uint64, priceYes, priceNo *big.Int, ts time.Time) error
	GetPrices(ctx context.Context, marketID uint64) (priceYes, priceNo *big.Int, ts time.Time, err error)
	Invalidate(ctx context.Context, marketID uint64) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter applies sliding-window request limits, keyed by caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
