package marketdata

import (
	"context"

	"cryptobot/libs/observability"
)

// Mode selects which Feed implementation a runner is wired to.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
)

// Config is the top-level market data configuration a runner is built
// from, grounded on libs/marketdata.Config (provider list + cache +
// symbols), collapsed to one mode since a single strategy runs against
// exactly one feed at a time per spec.md §4.7.
type Config struct {
	Mode       Mode
	Historical HistoricalConfig
	Live       LiveConfig
	Cache      CacheConfig
	MockSeed   uint64
}

// DefaultConfig returns a backtest-mode configuration with caching enabled.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeBacktest,
		Historical: DefaultHistoricalConfig(),
		Live:       DefaultLiveConfig(),
		Cache:      DefaultCacheConfig(),
		MockSeed:   1,
	}
}

// NewFeed constructs the Feed named by cfg.Mode. For ModeBacktest it dials
// Redis for caching when cfg.Cache.Enabled; a cache connection failure is
// logged here and does not prevent backtesting, matching
// libs/marketdata.NewClient's "cache optional" fallback.
func NewFeed(cfg Config) (Feed, error) {
	switch cfg.Mode {
	case ModeBacktest:
		var cache *Cache
		if cfg.Cache.Enabled {
			c, err := NewCache(cfg.Cache)
			if err == nil {
				cache = c
			} else {
				observability.LogEvent(context.Background(), "warn", "marketdata_cache_unavailable", map[string]any{"error": err})
			}
		}
		return NewHistoricalFeed(cfg.Historical, cache), nil
	case ModePaper:
		return NewMockFeed(cfg.MockSeed), nil
	case ModeLive:
		return NewLiveFeed(cfg.Live), nil
	default:
		return nil, ErrInvalidMode
	}
}
