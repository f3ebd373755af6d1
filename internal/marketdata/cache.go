package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptobot/internal/domain"
)

// CacheConfig mirrors libs/marketdata.CacheConfig.
type CacheConfig struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// DefaultCacheConfig matches the teacher's marketdata.DefaultConfig cache
// section.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:  true,
		RedisURL: "localhost:6379",
		TTL:      5 * time.Minute,
	}
}

// Cache is a Redis-backed store of historical candle ranges, keyed by
// (symbol, interval, start, end), grounded on libs/marketdata/cache.go's
// GetCandles/SetCandles. Concurrent reads are safe; writes race only on the
// underlying Redis SET, which is itself atomic, satisfying spec.md §5's
// "process-wide read-mostly cache, insertion serialised" requirement.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache dials Redis and verifies connectivity.
func NewCache(cfg CacheConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisURL, DB: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("marketdata: connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func rangeKey(symbol, interval string, startMs, endMs int64) string {
	return fmt.Sprintf("candles:%s:%s:%d:%d", symbol, interval, startMs, endMs)
}

// GetRange retrieves a cached, strictly-ascending candle range for the exact
// (symbol, interval, start, end) key. A cache hit on a sub-range requires a
// prior SetRange call with the same boundaries; the historical feed always
// queries and stores by its own page boundaries so this never straddles two
// cached pages and cannot duplicate data across a cache boundary.
func (c *Cache) GetRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Candle, error) {
	data, err := c.client.Get(ctx, rangeKey(symbol, interval, startMs, endMs)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("marketdata: cache get: %w", err)
	}
	var candles []domain.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("marketdata: cache unmarshal: %w", err)
	}
	return candles, nil
}

// SetRange stores a candle range under its exact boundaries. Daily-interval
// ranges are cached a day at a time since they change far less often.
func (c *Cache) SetRange(ctx context.Context, symbol, interval string, startMs, endMs int64, candles []domain.Candle) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("marketdata: cache marshal: %w", err)
	}
	ttl := c.ttl
	if interval == "1d" || interval == "1D" {
		ttl = 24 * time.Hour
	}
	if err := c.client.Set(ctx, rangeKey(symbol, interval, startMs, endMs), data, ttl).Err(); err != nil {
		return fmt.Errorf("marketdata: cache set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
