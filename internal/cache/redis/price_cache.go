package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// prices are stored as a hash at key "price:{marketID}" with fields "yes",
// "no" (1e18-scale decimal strings), and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID uint64) string {
	return "price:" + strconv.FormatUint(marketID, 10)
}

// SetPrices stores the latest YES/NO prices and timestamp for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID uint64, priceYes, priceNo *big.Int, ts time.Time) error {
	key := priceKey(marketID)
	fields := map[string]interface{}{
		"yes": priceYes.String(),
		"no":  priceNo.String(),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices for market %d: %w", marketID, err)
	}
	return nil
}

// GetPrices retrieves the latest YES/NO prices and timestamp for a market.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID uint64) (*big.Int, *big.Int, time.Time, error) {
	key := priceKey(marketID)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("redis: get prices for market %d: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, nil, time.Time{}, domain.ErrNotFound
	}

	priceYes, err := parsePriceField(vals, "yes", marketID)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	priceNo, err := parsePriceField(vals, "no", marketID)
	if err != nil {
		return nil, nil, time.Time{}, err
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("redis: parse ts for market %d: %w", marketID, err)
	}

	return priceYes, priceNo, time.Unix(0, tsNano), nil
}

// Invalidate drops the cached prices for a market, forcing the next read to
// fall through to the engine.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID uint64) error {
	if err := pc.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices for market %d: %w", marketID, err)
	}
	return nil
}

func parsePriceField(vals map[string]string, field string, marketID uint64) (*big.Int, error) {
	s, ok := vals[field]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("redis: invalid cached %s price %q for market %d", field, s, marketID)
	}
	return p, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
