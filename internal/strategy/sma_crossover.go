package strategy

import (
	"context"
	"math"

	"cryptobot/internal/domain"
)

// SMACrossover is a trend-following strategy based on moving-average
// alignment, grounded on libs/strategies/ma_crossover.go
// (MACrossoverStrategy). The teacher version fires on steady-state
// inequality (SMA20 > SMA50 > SMA200 every tick the alignment holds),
// which would resubmit the same signal every bar; this version detects
// the crossover edge — alignment false on the previous bar, true on the
// current one — per SPEC_FULL.md §4.1.
type SMACrossover struct {
	id            string
	minConfidence float64
	fastPeriod    int
	slowPeriod    int
	trendPeriod   int
	atrPeriod     int
}

// NewSMACrossover constructs the reference 20/50/200 configuration.
func NewSMACrossover() *SMACrossover {
	return &SMACrossover{
		id:            "sma_crossover_v1",
		minConfidence: 0.65,
		fastPeriod:    20,
		slowPeriod:    50,
		trendPeriod:   200,
		atrPeriod:     14,
	}
}

func (s *SMACrossover) ID() string   { return s.id }
func (s *SMACrossover) Name() string { return "SMA Crossover" }

func (s *SMACrossover) Metadata() Metadata {
	return Metadata{
		ID:          s.id,
		Name:        s.Name(),
		Description: "Trend-following strategy triggered on SMA20/50/200 crossover edges",
		Timeframes:  []string{"1h", "4h", "1d"},
	}
}

// GenerateSignals requires enough history to compute the trend SMA on both
// the current and previous bar; returns no signal (not an error) when the
// window is too short, since early in a run this is the normal state.
func (s *SMACrossover) GenerateSignals(ctx context.Context, window Window, position domain.Position) ([]domain.Signal, error) {
	required := s.trendPeriod + 2
	if window.Len() < required {
		return nil, nil
	}

	candles := window.Candles
	prev := candles[:len(candles)-1]

	currFast := sma(candles, s.fastPeriod)
	currSlow := sma(candles, s.slowPeriod)
	currTrend := sma(candles, s.trendPeriod)
	prevFast := sma(prev, s.fastPeriod)
	prevSlow := sma(prev, s.slowPeriod)
	prevTrend := sma(prev, s.trendPeriod)

	currAligned := currFast > currSlow && currSlow > currTrend
	prevAligned := prevFast > prevSlow && prevSlow > prevTrend
	currBearish := currFast < currSlow && currSlow < currTrend
	prevBearish := prevFast < prevSlow && prevSlow < prevTrend

	price := window.Latest().Close
	atrVal := atr(candles, s.atrPeriod)

	switch {
	case currAligned && !prevAligned && price > currFast:
		stopLoss := currSlow - atrVal
		sig := domain.Signal{
			Symbol:      window.Symbol,
			Side:        domain.SideBuy,
			TimestampMs: window.Latest().TimestampMs,
			StrategyID:  s.id,
			OrderType:   domain.OrderMarket,
			TimeInForce: domain.TIFGoodTillCancel,
			Metadata: map[string]any{
				"reason":         "golden cross: SMA20 crossed above SMA50 above SMA200",
				"sma20":          currFast,
				"sma50":          currSlow,
				"sma200":         currTrend,
				"atr":            atrVal,
				"stop_loss_price": stopLoss,
				"confidence":     s.confidence(candles, currFast, currTrend, true),
			},
		}
		return []domain.Signal{sig}, nil

	case currBearish && !prevBearish && price < currFast && position.IsLong():
		sig := domain.Signal{
			Symbol:      window.Symbol,
			Side:        domain.SideSell,
			Quantity:    position.Quantity,
			TimestampMs: window.Latest().TimestampMs,
			StrategyID:  s.id,
			OrderType:   domain.OrderMarket,
			TimeInForce: domain.TIFGoodTillCancel,
			Metadata: map[string]any{
				"reason":     "death cross: SMA20 crossed below SMA50 below SMA200",
				"sma20":      currFast,
				"sma50":      currSlow,
				"sma200":     currTrend,
				"atr":        atrVal,
				"confidence": s.confidence(candles, currFast, currTrend, false),
			},
		}
		return []domain.Signal{sig}, nil
	}

	return nil, nil
}

func (s *SMACrossover) confidence(candles []domain.Candle, fastSMA, trendSMA float64, bullish bool) float64 {
	conf := s.minConfidence

	avgVol := avgVolume(candles, 20)
	if last := candles[len(candles)-1]; last.Volume > avgVol {
		conf += 0.08
	}

	var separation float64
	if bullish {
		separation = (fastSMA - trendSMA) / trendSMA
	} else {
		separation = (trendSMA - fastSMA) / trendSMA
	}
	if separation > 0.05 {
		conf += 0.10
	}

	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// sma averages the Close of the last period candles. Callers must ensure
// len(candles) >= period.
func sma(candles []domain.Candle, period int) float64 {
	start := len(candles) - period
	var sum float64
	for _, c := range candles[start:] {
		sum += c.Close
	}
	return sum / float64(period)
}

func avgVolume(candles []domain.Candle, period int) float64 {
	if len(candles) < period {
		period = len(candles)
	}
	start := len(candles) - period
	var sum float64
	for _, c := range candles[start:] {
		sum += c.Volume
	}
	return sum / float64(period)
}

// atr computes the average true range over the last period candles.
// Returns 0 if there isn't enough history.
func atr(candles []domain.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	start := len(candles) - period
	var sum float64
	for i := start; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		sum += tr
	}
	return sum / float64(period)
}
