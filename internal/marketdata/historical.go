package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"cryptobot/internal/domain"
	"cryptobot/libs/observability"
)

// MaxPageSize is the largest number of candles fetched per request, matching
// spec.md §6's "limit ≤ 1000" klines constraint.
const MaxPageSize = 1000

// HistoricalConfig configures a klines-backed historical feed.
type HistoricalConfig struct {
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
}

// DefaultHistoricalConfig matches a conservative public klines endpoint
// budget.
func DefaultHistoricalConfig() HistoricalConfig {
	return HistoricalConfig{
		BaseURL:           "https://api.exchange.local",
		RequestsPerMinute: 1200,
		Timeout:           10 * time.Second,
	}
}

// klineResponse is the JSON shape of one paginated klines page.
type klineResponse struct {
	Candles []klineEntry `json:"candles"`
}

type klineEntry struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// HistoricalFeed fetches a paginated candle range from a klines REST
// endpoint, grounded on libs/marketdata/provider_polygon.go's GetCandles
// (resty replacing the provider's bespoke SDK client, per SPEC_FULL.md §4.6),
// serving results through an optional Cache keyed by (symbol, interval,
// start, end) so repeated backtests over the same range skip the network.
type HistoricalFeed struct {
	client  *resty.Client
	cache   *Cache
	limiter *RateLimiter
}

// NewHistoricalFeed builds a feed. cache may be nil to disable caching.
func NewHistoricalFeed(cfg HistoricalConfig, cache *Cache) *HistoricalFeed {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &HistoricalFeed{
		client:  client,
		cache:   cache,
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
	}
}

// Lifecycle returns a channel that is never written to: historical feeds
// have no connection to lose.
func (f *HistoricalFeed) Lifecycle() <-chan LifecycleEvent {
	return make(chan LifecycleEvent)
}

// Close is a no-op: the feed holds no connection of its own, and the cache
// handle it was given is not owned by the feed, so Close leaves it open.
func (f *HistoricalFeed) Close() error { return nil }

// Stream fetches [startMs, endMs) page by page, sorted strictly ascending
// by timestamp, and emits one MarketSnapshot per candle on the returned
// channel, which is closed once the range is exhausted. endMs of 0 means
// "up to now".
func (f *HistoricalFeed) Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error) {
	if endMs != 0 && startMs > endMs {
		return nil, ErrInvalidRange
	}
	if endMs == 0 {
		endMs = time.Now().UnixMilli()
	}

	ctx = observability.WithRunInfo(ctx, observability.RunInfo{Symbol: symbol})

	out := make(chan domain.MarketSnapshot)
	go func() {
		defer close(out)
		cursor := startMs
		for cursor < endMs {
			candles, err := f.fetchPage(ctx, symbol, interval, cursor, endMs)
			if err != nil {
				observability.LogEvent(ctx, "error", "historical_fetch_error", map[string]any{
					"symbol": symbol, "interval": interval, "start_ms": cursor, "end_ms": endMs, "error": err,
				})
				return
			}
			if len(candles) == 0 {
				return
			}
			for _, c := range candles {
				select {
				case <-ctx.Done():
					return
				case out <- domain.NewMarketSnapshot(c, 0, 0):
				}
			}
			cursor = candles[len(candles)-1].TimestampMs + 1
		}
	}()
	return out, nil
}

// fetchPage serves one MaxPageSize-bounded page from cache if present,
// otherwise fetches it over the network and stores it.
func (f *HistoricalFeed) fetchPage(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Candle, error) {
	pageEnd := endMs

	if f.cache != nil {
		if candles, err := f.cache.GetRange(ctx, symbol, interval, startMs, pageEnd); err == nil {
			return candles, nil
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body klineResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":    symbol,
			"interval":  interval,
			"start_ms":  fmt.Sprintf("%d", startMs),
			"end_ms":    fmt.Sprintf("%d", pageEnd),
			"limit":     fmt.Sprintf("%d", MaxPageSize),
		}).
		SetResult(&body).
		Get("/api/v3/klines")
	if err != nil {
		return nil, fmt.Errorf("klines request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("klines request: status %d", resp.StatusCode())
	}

	candles := make([]domain.Candle, 0, len(body.Candles))
	for _, e := range body.Candles {
		candles = append(candles, domain.Candle{
			TimestampMs: e.TimestampMs,
			Symbol:      symbol,
			Interval:    interval,
			Open:        e.Open,
			High:        e.High,
			Low:         e.Low,
			Close:       e.Close,
			Volume:      e.Volume,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].TimestampMs < candles[j].TimestampMs })

	if f.cache != nil {
		if err := f.cache.SetRange(ctx, symbol, interval, startMs, pageEnd, candles); err != nil {
			observability.LogEvent(ctx, "error", "cache_store_error", map[string]any{
				"symbol": symbol, "interval": interval, "error": err,
			})
		}
	}

	return candles, nil
}
