package strategy

import (
	"context"

	"cryptobot/internal/domain"
)

// RSIMeanReversion is a mean-reversion strategy triggered by RSI
// oversold/overbought levels, grounded on libs/strategies/rsi_momentum.go
// (RSIMomentumStrategy). Supplemental to the distilled spec: carried over
// from the teacher's reference strategy family per SPEC_FULL.md §4.1, to
// exercise the Registry with more than one strategy. The teacher received
// RSI pre-computed in AnalysisInput; this version computes Wilder's RSI
// directly from the candle window.
type RSIMeanReversion struct {
	id              string
	period          int
	oversoldLevel   float64
	overboughtLevel float64
	minConfidence   float64
}

// NewRSIMeanReversion constructs the reference 14-period configuration.
func NewRSIMeanReversion() *RSIMeanReversion {
	return &RSIMeanReversion{
		id:              "rsi_mean_reversion_v1",
		period:          14,
		oversoldLevel:   30,
		overboughtLevel: 70,
		minConfidence:   0.6,
	}
}

func (s *RSIMeanReversion) ID() string   { return s.id }
func (s *RSIMeanReversion) Name() string { return "RSI Mean Reversion" }

func (s *RSIMeanReversion) Metadata() Metadata {
	return Metadata{
		ID:          s.id,
		Name:        s.Name(),
		Description: "Mean reversion strategy based on RSI oversold/overbought levels",
		Timeframes:  []string{"5m", "15m", "1h", "4h"},
	}
}

func (s *RSIMeanReversion) GenerateSignals(ctx context.Context, window Window, position domain.Position) ([]domain.Signal, error) {
	if window.Len() < s.period+1 {
		return nil, nil
	}

	candles := window.Candles
	rsiVal := rsi(candles, s.period)
	atrVal := atr(candles, 14)
	price := window.Latest().Close

	switch {
	case rsiVal < s.oversoldLevel && !position.IsLong():
		stopLoss := price - 2.0*atrVal
		sig := domain.Signal{
			Symbol:      window.Symbol,
			Side:        domain.SideBuy,
			TimestampMs: window.Latest().TimestampMs,
			StrategyID:  s.id,
			OrderType:   domain.OrderMarket,
			TimeInForce: domain.TIFGoodTillCancel,
			Metadata: map[string]any{
				"reason":          "RSI oversold, bullish reversal expected",
				"rsi":             rsiVal,
				"atr":             atrVal,
				"stop_loss_price": stopLoss,
				"confidence":      s.confidence(candles, rsiVal, true),
			},
		}
		return []domain.Signal{sig}, nil

	case rsiVal > s.overboughtLevel && position.IsLong():
		sig := domain.Signal{
			Symbol:      window.Symbol,
			Side:        domain.SideSell,
			Quantity:    position.Quantity,
			TimestampMs: window.Latest().TimestampMs,
			StrategyID:  s.id,
			OrderType:   domain.OrderMarket,
			TimeInForce: domain.TIFGoodTillCancel,
			Metadata: map[string]any{
				"reason":     "RSI overbought, bearish reversal expected",
				"rsi":        rsiVal,
				"atr":        atrVal,
				"confidence": s.confidence(candles, rsiVal, false),
			},
		}
		return []domain.Signal{sig}, nil
	}

	return nil, nil
}

func (s *RSIMeanReversion) confidence(candles []domain.Candle, rsiVal float64, bullish bool) float64 {
	conf := s.minConfidence

	avgVol := avgVolume(candles, 20)
	if last := candles[len(candles)-1]; last.Volume > avgVol {
		conf += 0.10
	}

	if bullish && rsiVal < 20 {
		conf += 0.15
	}
	if !bullish && rsiVal > 80 {
		conf += 0.15
	}

	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// rsi computes Wilder's relative strength index over the last period
// candles using a simple (not smoothed) average of gains/losses, which is
// sufficient for signal generation and keeps the computation stateless.
func rsi(candles []domain.Candle, period int) float64 {
	start := len(candles) - period - 1
	var gainSum, lossSum float64
	for i := start + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
