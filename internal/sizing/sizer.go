// Package sizing turns a raw strategy signal (direction + stop distance,
// no quantity) into a risk-bounded order size, grounded on
// libs/trading/executor/executor.go's CalculatePositionSize: risk a fixed
// fraction of account equity per trade, then clamp by min/max position size
// and by a maximum position value as a fraction of equity.
package sizing

import "fmt"

// Config mirrors the teacher's RiskParameters, renamed to crypto fractional
// quantities instead of whole shares.
type Config struct {
	MaxRiskPerTrade     float64
	MinPositionSize     float64
	MaxPositionSize     float64
	MaxPositionValuePct float64
}

// DefaultConfig matches the teacher's NewExecutor defaults.
func DefaultConfig() Config {
	return Config{
		MaxRiskPerTrade:     0.01,
		MinPositionSize:     0,
		MaxPositionSize:     0,
		MaxPositionValuePct: 0.2,
	}
}

// Sizer computes position sizes for one strategy's signals.
type Sizer struct {
	cfg Config
}

// New constructs a Sizer, applying the teacher's zero-value defaults.
func New(cfg Config) *Sizer {
	if cfg.MaxRiskPerTrade == 0 {
		cfg.MaxRiskPerTrade = 0.01
	}
	if cfg.MaxPositionValuePct == 0 {
		cfg.MaxPositionValuePct = 0.2
	}
	return &Sizer{cfg: cfg}
}

// CalculateQuantity sizes a position given current equity, the signal's
// entry price, and its stop distance (absolute price units, always > 0).
// Returns an error if stopDistance is zero or the sized quantity would fall
// below MinPositionSize after every clamp.
func (s *Sizer) CalculateQuantity(equity, entryPrice, stopDistance float64) (float64, error) {
	if stopDistance <= 0 {
		return 0, fmt.Errorf("sizing: invalid stop distance %v", stopDistance)
	}
	if entryPrice <= 0 {
		return 0, fmt.Errorf("sizing: invalid entry price %v", entryPrice)
	}

	riskAmount := equity * s.cfg.MaxRiskPerTrade
	qty := riskAmount / stopDistance

	if s.cfg.MinPositionSize > 0 && qty < s.cfg.MinPositionSize {
		qty = s.cfg.MinPositionSize
	}
	if s.cfg.MaxPositionSize > 0 && qty > s.cfg.MaxPositionSize {
		qty = s.cfg.MaxPositionSize
	}

	positionValue := qty * entryPrice
	maxPositionValue := equity * s.cfg.MaxPositionValuePct
	if positionValue > maxPositionValue {
		qty = maxPositionValue / entryPrice
	}

	if s.cfg.MinPositionSize > 0 && qty < s.cfg.MinPositionSize {
		return 0, fmt.Errorf("sizing: calculated quantity %v is below minimum %v", qty, s.cfg.MinPositionSize)
	}
	if qty <= 0 {
		return 0, fmt.Errorf("sizing: calculated quantity is non-positive")
	}
	return qty, nil
}
