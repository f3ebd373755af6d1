// Package marketdata implements the stream() contract of spec.md §4.6 as
// three Feed implementations (historical, mock/paper, live) sharing a
// Redis-backed cache and a token-bucket outbound rate limiter, grounded on
// libs/marketdata (provider fan-out with fallback and caching, generalized
// here from multi-provider stock quotes to a single crypto exchange feed).
package marketdata

import (
	"context"

	"cryptobot/internal/domain"
)

// ConnectionState describes a live feed's lifecycle, surfaced on the side
// channel returned by Feed.Lifecycle per spec.md §4.6.
type ConnectionState string

const (
	StateConnected    ConnectionState = "CONNECTED"
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateReconnecting ConnectionState = "RECONNECTING"
	StateError        ConnectionState = "ERROR"
)

// LifecycleEvent is one connection-state transition, with the error that
// caused it when State is StateError or StateDisconnected.
type LifecycleEvent struct {
	State ConnectionState
	Err   error
}

// Feed is the shape every market data source implements: a channel of
// MarketSnapshot for one (symbol, interval) pair, plus a side channel of
// connection lifecycle events. Historical feeds close Snapshots after the
// requested range is exhausted and never emit on Lifecycle. Live feeds run
// until ctx is cancelled or Close is called.
type Feed interface {
	// Stream begins emitting snapshots for symbol/interval starting at
	// startMs (0 means "now" for live feeds). endMs is ignored by live
	// feeds and, for historical and mock feeds, bounds the range; 0 means
	// "up to now" for HistoricalFeed and 1000 intervals after startMs for
	// MockFeed.
	Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error)

	// Lifecycle returns the side channel of connection state transitions.
	// Historical and mock feeds return a channel that is never written to.
	Lifecycle() <-chan LifecycleEvent

	// Close releases any resources (sockets, cache clients) held by the feed.
	Close() error
}
