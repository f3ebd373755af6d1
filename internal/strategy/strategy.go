// Package strategy defines the pluggable signal-generation interface and
// its reference implementations, grounded on libs/strategies/strategy.go
// (the Strategy interface and AnalysisInput shape) from the teacher repo.
//
// The teacher's Analyze(ctx, AnalysisInput) (Signal, error) is generalized
// here to GenerateSignals(ctx, Window, Position) ([]domain.Signal, error):
// a strategy needs the recent candle history to compute indicators itself
// (the teacher's AnalysisInput arrived pre-computed from an external
// indicator pipeline this spec does not have), and it needs the caller's
// current position so strategies can reason about whether they already
// hold a line rather than re-entering on every tick.
package strategy

import (
	"context"

	"cryptobot/internal/domain"
)

// Window is the recent candle history a strategy analyzes, oldest first.
// Latest() is a convenience accessor for the most recent bar.
type Window struct {
	Symbol  string
	Candles []domain.Candle
}

// Latest returns the most recent candle. Panics if the window is empty —
// callers are expected to check Len() first, mirroring the teacher's
// assumption that AnalysisInput always carries a current price.
func (w Window) Latest() domain.Candle {
	return w.Candles[len(w.Candles)-1]
}

// Len reports how many candles the window holds.
func (w Window) Len() int { return len(w.Candles) }

// Strategy is implemented by every signal generator registered with a
// Registry and run by internal/runner.Runner.
type Strategy interface {
	// ID is the strategy's stable identifier, stamped onto every Signal it
	// produces (Signal.StrategyID) and onto the PortfolioState it settles
	// into.
	ID() string
	// Name is a human-readable label for logs and the control surface.
	Name() string
	// GenerateSignals analyzes window and the caller's current position for
	// window.Symbol and returns zero or more signals. Most strategies
	// return at most one signal per call; returning a slice keeps room for
	// strategies that want to submit an entry and a protective order in
	// the same tick.
	GenerateSignals(ctx context.Context, window Window, position domain.Position) ([]domain.Signal, error)
}

// Metadata describes a strategy for discovery by the control surface,
// grounded on libs/strategies.StrategyMetadata.
type Metadata struct {
	ID          string
	Name        string
	Description string
	Timeframes  []string
}

// WithMetadata is implemented by strategies that can describe themselves
// beyond ID/Name.
type WithMetadata interface {
	Metadata() Metadata
}
