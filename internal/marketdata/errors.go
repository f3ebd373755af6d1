package marketdata

import "errors"

var (
	// ErrRateLimited names an exhausted outbound token bucket. No Feed in
	// this package returns it: RateLimiter.Wait blocks until a token is
	// free or ctx ends, and RateLimiter.Allow reports false.
	ErrRateLimited = errors.New("marketdata: rate limit exceeded")

	// ErrNoData names an empty historical range. HistoricalFeed does not
	// return it: an empty range closes the Stream channel without emitting.
	ErrNoData = errors.New("marketdata: no data available")

	// ErrCacheMiss is returned by Cache.GetRange when the range is not cached.
	ErrCacheMiss = errors.New("marketdata: cache miss")

	// ErrInvalidRange is returned by Stream when startMs is after a non-zero
	// endMs.
	ErrInvalidRange = errors.New("marketdata: invalid range")

	// ErrFeedClosed is returned by Stream when called after Close.
	ErrFeedClosed = errors.New("marketdata: feed closed")

	// ErrInvalidMode is returned by NewFeed for an unrecognized Mode.
	ErrInvalidMode = errors.New("marketdata: invalid feed mode")
)
