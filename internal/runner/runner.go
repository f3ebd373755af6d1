// Package runner implements the per-strategy event loop of spec.md §4.7:
// one strategy, one feed, one execution engine, one portfolio, driven by a
// goroutine instead of the teacher's asyncio task, grounded on
// _examples/original_source/bot_runner/strategy_runner.py
// (StrategyRunner.run/stop).
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/internal/execution"
	"cryptobot/internal/marketdata"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/risk"
	"cryptobot/internal/sizing"
	"cryptobot/internal/strategy"
	"cryptobot/libs/observability"
)

// Config tunes one runner's window and snapshot behavior.
type Config struct {
	Symbol   string
	Interval string
	// WindowSize bounds how many trailing candles are kept for the
	// strategy's indicator computations.
	WindowSize int
	// SnapshotEvery is how many feed events elapse between cadence
	// snapshots; spec.md §4.7 references ~100 snapshots per run, so callers
	// size this to roughly (expected event count / 100).
	SnapshotEvery int
	// Metrics records signal and kill-switch counts, if non-nil. Shared
	// across every runner so cmd/trader can serve one combined registry.
	Metrics *observability.TradingMetrics
}

// DefaultConfig fills in reasonable defaults for WindowSize/SnapshotEvery
// when a caller leaves them zero.
func DefaultConfig(symbol, interval string) Config {
	return Config{Symbol: symbol, Interval: interval, WindowSize: 300, SnapshotEvery: 50}
}

// Status is a point-in-time summary of a runner's state, returned by
// Runner.Status() for the bot manager's status() aggregation.
type Status struct {
	StrategyID          string
	Symbol              string
	Running             bool
	StoppedReason       string
	LastErr             error
	Portfolio           domain.PortfolioState
	Equity              float64
	RiskViolations      []domain.RiskViolation
	KillSwitchActivated bool
}

// Runner owns one strategy, one feed, one execution engine, and one
// portfolio ledger, per spec.md §4.7.
type Runner struct {
	strategyID string
	strat      strategy.Strategy
	feed       marketdata.Feed
	engine     *execution.Engine
	ledger     *portfolio.Ledger
	sizer      *sizing.Sizer
	cfg        Config

	mu            sync.RWMutex
	candles       []domain.Candle
	running       bool
	stoppedReason string
	lastErr       error
	eventCount    int
}

// New constructs a Runner. cfg.WindowSize/SnapshotEvery default per
// DefaultConfig's values when left zero.
func New(strategyID string, strat strategy.Strategy, feed marketdata.Feed, engine *execution.Engine, ledger *portfolio.Ledger, sizer *sizing.Sizer, cfg Config) *Runner {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 300
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 50
	}
	return &Runner{
		strategyID: strategyID,
		strat:      strat,
		feed:       feed,
		engine:     engine,
		ledger:     ledger,
		sizer:      sizer,
		cfg:        cfg,
	}
}

// Run executes the main loop until ctx is cancelled, the feed closes, or a
// critical risk violation fires the kill-switch, per spec.md §4.7's
// numbered steps. It always returns nil on a clean stop; a non-nil error
// means the feed could not be started at all.
func (r *Runner) Run(ctx context.Context) error {
	ctx = observability.WithRunInfo(ctx, observability.RunInfo{RunID: r.strategyID, Symbol: r.cfg.Symbol})

	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	ch, err := r.feed.Stream(ctx, r.cfg.Symbol, r.cfg.Interval, 0, 0)
	if err != nil {
		r.mu.Lock()
		r.running = false
		r.lastErr = err
		r.mu.Unlock()
		return fmt.Errorf("runner: start feed: %w", err)
	}

	reason := "feed closed"
loop:
	for {
		select {
		case <-ctx.Done():
			reason = "context cancelled"
			break loop
		case snap, ok := <-ch:
			if !ok {
				break loop
			}
			if stop, stopReason := r.handleEvent(ctx, snap); stop {
				reason = stopReason
				break loop
			}
		}
	}

	now := time.Now()
	if lastTs := r.lastCandleTime(); !lastTs.IsZero() {
		now = lastTs
	}
	r.engine.Stop("system shutdown", now)
	if err := r.feed.Close(); err != nil {
		observability.LogEvent(ctx, "error", "feed_close_error", map[string]any{"strategy_id": r.strategyID, "error": err})
	}
	r.ledger.Snapshot(now.UnixMilli())

	r.mu.Lock()
	r.running = false
	r.stoppedReason = reason
	r.mu.Unlock()

	return nil
}

func (r *Runner) lastCandleTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.candles) == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.candles[len(r.candles)-1].TimestampMs)
}

// handleEvent processes one market event per spec.md §4.7's inner loop body.
// It returns (true, reason) when a critical risk violation means the runner
// must stop.
func (r *Runner) handleEvent(ctx context.Context, snap domain.MarketSnapshot) (bool, string) {
	r.mu.Lock()
	r.candles = append(r.candles, snap.Candle)
	if len(r.candles) > r.cfg.WindowSize {
		r.candles = r.candles[len(r.candles)-r.cfg.WindowSize:]
	}
	window := strategy.Window{Symbol: r.cfg.Symbol, Candles: append([]domain.Candle(nil), r.candles...)}
	r.eventCount++
	eventCount := r.eventCount
	r.mu.Unlock()

	position := r.ledger.Position(r.cfg.Symbol)

	signals, err := r.strat.GenerateSignals(ctx, window, position)
	if err != nil {
		observability.LogEvent(ctx, "error", "strategy_error", map[string]any{"strategy_id": r.strategyID, "error": err})
		r.recordErr(err)
	}

	for _, sig := range signals {
		if sig.Quantity <= 0 {
			sized, err := r.sizeSignal(sig, snap.Close)
			if err != nil {
				observability.LogEvent(ctx, "error", "sizing_error", map[string]any{
					"strategy_id": r.strategyID, "symbol": sig.Symbol, "error": err,
				})
				continue
			}
			sig.Quantity = sized
		}

		observability.LogEvent(ctx, "info", "signal_generated", map[string]any{
			"strategy_id": r.strategyID, "side": sig.Side, "symbol": sig.Symbol, "quantity": sig.Quantity,
		})
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.SignalsPublished.Inc("strategy", r.strategyID, "side", string(sig.Side))
		}
		_, err := r.engine.Submit(ctx, sig, time.UnixMilli(snap.TimestampMs))
		if err != nil {
			var rejected *execution.RiskRejectedError
			if errors.As(err, &rejected) {
				observability.LogEvent(ctx, "warn", "signal_rejected", map[string]any{
					"strategy_id": r.strategyID, "violations": rejected.Violations,
				})
				if risk.HasCritical(rejected.Violations) {
					if r.cfg.Metrics != nil {
						r.cfg.Metrics.HaltEvents.Inc("strategy", r.strategyID, "reason", "critical_risk_violation")
					}
					return true, "critical risk violation"
				}
				continue
			}
			observability.LogEvent(ctx, "error", "submit_error", map[string]any{"strategy_id": r.strategyID, "error": err})
			r.recordErr(err)
			continue
		}
	}

	r.engine.OnMarketEvent(ctx, snap)
	r.ledger.UpdateMarkPrice(r.cfg.Symbol, snap.Close)

	if r.engine.IsFlattening() {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.HaltEvents.Inc("strategy", r.strategyID, "reason", "flattening")
		}
		return true, "critical risk violation"
	}

	if eventCount%r.cfg.SnapshotEvery == 0 {
		r.ledger.Snapshot(snap.TimestampMs)
	}

	return false, ""
}

// sizeSignal derives a risk-bounded quantity for an opening signal that
// left Quantity unset, using the stop distance the strategy communicated
// via Metadata["stop_loss_price"] per SPEC_FULL.md §4.1/§4.2's split
// between signal generation and position sizing.
func (r *Runner) sizeSignal(sig domain.Signal, entryPrice float64) (float64, error) {
	raw, ok := sig.Metadata["stop_loss_price"]
	if !ok {
		return 0, fmt.Errorf("signal has no stop_loss_price, cannot size")
	}
	stopLoss, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("stop_loss_price has unexpected type %T", raw)
	}
	stopDistance := entryPrice - stopLoss
	if stopDistance < 0 {
		stopDistance = -stopDistance
	}
	return r.sizer.CalculateQuantity(r.ledger.Equity(), entryPrice, stopDistance)
}

func (r *Runner) recordErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
}

// Status returns a read-only snapshot of the runner's current state. Safe
// to call concurrently with Run.
func (r *Runner) Status() Status {
	r.mu.RLock()
	running := r.running
	reason := r.stoppedReason
	lastErr := r.lastErr
	r.mu.RUnlock()

	now := time.Now().UnixMilli()
	return Status{
		StrategyID:          r.strategyID,
		Symbol:              r.cfg.Symbol,
		Running:             running,
		StoppedReason:       reason,
		LastErr:             lastErr,
		Portfolio:           r.ledger.PeekState(now),
		Equity:              r.ledger.Equity(),
		RiskViolations:      r.engine.RiskEvaluations(now),
		KillSwitchActivated: r.engine.IsFlattening(),
	}
}

// StrategyID returns the owning strategy's identifier.
func (r *Runner) StrategyID() string { return r.strategyID }
