package marketdata

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"cryptobot/internal/domain"
)

// basePrices seeds the mock generator's starting price per symbol, grounded
// on mock.py's MockProvider.base_prices.
var basePrices = map[string]float64{
	"BTCUSDT": 43000.0,
	"ETHUSDT": 2600.0,
	"ADAUSDT": 0.38,
	"BNBUSDT": 310.0,
	"XRPUSDT": 0.52,
	"SOLUSDT": 98.0,
	"DOTUSDT": 7.2,
	"LINKUSDT": 14.5,
	"LTCUSDT": 72.0,
	"BCHUSDT": 245.0,
}

// volatility mirrors mock.py's per-symbol volatility table.
var volatility = map[string]float64{
	"BTCUSDT": 0.02,
	"ETHUSDT": 0.025,
	"ADAUSDT": 0.04,
	"BNBUSDT": 0.03,
	"XRPUSDT": 0.035,
	"SOLUSDT": 0.045,
	"DOTUSDT": 0.04,
	"LINKUSDT": 0.038,
	"LTCUSDT": 0.035,
	"BCHUSDT": 0.04,
}

const defaultBasePrice = 100.0
const defaultVolatility = 0.03

// MockFeed is a deterministic, seeded synthetic candle generator for
// paper-mode replay, grounded on
// _examples/original_source/market_data/providers/mock.py
// (MockProvider._generate_candles): per-symbol base price and volatility,
// a Gaussian-ish trend applied across the run, OHLC built from the open and
// the generated close with a randomized high/low range around them.
// Determinism comes from a per-instance math/rand/v2.Rand seeded at
// construction, never a shared global, per spec.md §5's per-engine RNG rule.
type MockFeed struct {
	rng   *rand.Rand
	trend float64
}

// NewMockFeed builds a generator seeded deterministically from seed: the
// same seed always reproduces the same candle sequence.
func NewMockFeed(seed uint64) *MockFeed {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)
	return &MockFeed{
		rng:   rng,
		trend: gauss(rng, 0, 0.3),
	}
}

func (f *MockFeed) Lifecycle() <-chan LifecycleEvent { return make(chan LifecycleEvent) }
func (f *MockFeed) Close() error                     { return nil }

// Stream generates candles spaced intervalMs(interval) apart covering
// [startMs, endMs), emitting one MarketSnapshot per candle and closing the
// channel once the range is exhausted.
func (f *MockFeed) Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error) {
	if endMs != 0 && startMs > endMs {
		return nil, ErrInvalidRange
	}
	if endMs == 0 {
		endMs = startMs + intervalMs(interval)*1000
	}

	out := make(chan domain.MarketSnapshot)
	go func() {
		defer close(out)

		price := basePrices[symbol]
		if price == 0 {
			price = defaultBasePrice
		}
		vol := volatility[symbol]
		if vol == 0 {
			vol = defaultVolatility
		}
		step := intervalMs(interval)

		for ts := startMs; ts < endMs; ts += step {
			candle, next := f.generateCandle(symbol, interval, ts, price, vol)
			price = next
			select {
			case <-ctx.Done():
				return
			case out <- domain.NewMarketSnapshot(candle, 0, 0):
			}
		}
	}()
	return out, nil
}

func (f *MockFeed) generateCandle(symbol, interval string, ts int64, openPrice, vol float64) (domain.Candle, float64) {
	priceChange := gauss(f.rng, f.trend*0.1, vol)
	closeChange := priceChange * openPrice
	closePrice := math.Max(openPrice+closeChange, openPrice*0.95)

	rangeMult := 0.5 + f.rng.Float64()*1.5
	priceRange := math.Abs(closePrice-openPrice) * rangeMult
	highOffset := f.rng.Float64() * priceRange
	lowOffset := f.rng.Float64() * priceRange

	high := math.Max(openPrice, closePrice) + highOffset
	low := math.Min(openPrice, closePrice) - lowOffset
	high = math.Max(high, math.Max(openPrice, closePrice))
	low = math.Min(low, math.Min(openPrice, closePrice))

	baseVolume := 100 + f.rng.Float64()*4900
	volumeMultiplier := 1 + math.Abs(priceChange)*10
	volume := baseVolume * volumeMultiplier

	candle := domain.Candle{
		TimestampMs: ts,
		Symbol:      symbol,
		Interval:    interval,
		Open:        openPrice,
		High:        high,
		Low:         low,
		Close:       closePrice,
		Volume:      volume,
	}
	return candle, closePrice
}

// gauss draws from an approximately normal distribution with the given mean
// and standard deviation using the Box-Muller transform, since
// math/rand/v2.Rand has no built-in Gaussian sampler (Python's random.gauss
// is the direct equivalent mock.py relies on).
func gauss(rng *rand.Rand, mean, stddev float64) float64 {
	u1 := rng.Float64()
	if u1 == 0 {
		u1 = 1e-12
	}
	u2 := rng.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + z*stddev
}

// intervalMs converts a candle interval string to milliseconds.
func intervalMs(interval string) int64 {
	switch interval {
	case "1m":
		return 60_000
	case "5m":
		return 5 * 60_000
	case "15m":
		return 15 * 60_000
	case "30m":
		return 30 * 60_000
	case "1h":
		return 3600_000
	case "4h":
		return 4 * 3600_000
	case "1d", "1D":
		return 24 * 3600_000
	default:
		return 60_000
	}
}
