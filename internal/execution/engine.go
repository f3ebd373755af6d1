// Package execution is the order lifecycle orchestrator: it accepts
// signals, runs the pre-trade risk check, submits accepted orders to the
// fill simulator against each new market event, applies resulting fills to
// the portfolio ledger, runs the post-trade risk check, and triggers the
// flatten-all kill-switch when a critical violation fires.
//
// Grounded on _examples/original_source/execution_engine/engines/simulated.py
// (SimulatedExecutionEngine.submit_signal/_process_pending_orders/
// flatten_all_positions) and libs/trading/executor/executor.go for the Go
// idiom — uuid.UUID order IDs, a single Executor-like struct owning
// dependencies via constructor injection.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptobot/internal/domain"
	"cryptobot/internal/fillsim"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/risk"
)

// RiskRejectedError is returned by Submit when the pre-trade risk check
// finds at least one violation. Callers inspect Violations to decide
// whether to log, alert, or retry with a smaller size.
type RiskRejectedError struct {
	Violations []domain.RiskViolation
}

func (e *RiskRejectedError) Error() string {
	return fmt.Sprintf("execution: signal rejected by risk engine (%d violations)", len(e.Violations))
}

// Engine owns the live order book for one strategy runner: pending/active
// orders, the ledger they settle against, the risk engine gating them, and
// the fill simulator that turns market events into fills. Not safe for use
// by more than one goroutine beyond the owning runner plus read-only status
// queries, which is why mu guards only the orders map, the latestMark map
// and the flattening flag rather than whole operations.
type Engine struct {
	strategyID string
	ledger     *portfolio.Ledger
	riskEngine *risk.Engine
	simulator  *fillsim.Simulator

	mu      sync.RWMutex
	orders  map[string]*domain.Order
	latestMark map[string]domain.MarketSnapshot

	flattening bool
}

// New constructs an Engine wiring the three collaborators a strategy
// runner needs: the portfolio ledger it settles into, the risk engine
// gating submissions, and the fill simulator generating executions.
func New(strategyID string, ledger *portfolio.Ledger, riskEngine *risk.Engine, simulator *fillsim.Simulator) *Engine {
	return &Engine{
		strategyID: strategyID,
		ledger:     ledger,
		riskEngine: riskEngine,
		simulator:  simulator,
		orders:     make(map[string]*domain.Order),
		latestMark: make(map[string]domain.MarketSnapshot),
	}
}

// Submit validates and risk-checks sig, creates an Order on acceptance,
// and attempts an immediate fill against the most recent market snapshot
// for sig.Symbol (mirroring the teacher's submit_signal → _process_market_order
// path). Returns RiskRejectedError if the pre-trade check finds violations,
// without creating an order — rejected signals never enter the order book.
// Once the flatten-all kill-switch has fired, every signal is refused with
// an error until Reset.
func (e *Engine) Submit(ctx context.Context, sig domain.Signal, now time.Time) (*domain.Order, error) {
	if e.IsFlattening() {
		return nil, fmt.Errorf("execution: kill-switch active, engine is not accepting new signals")
	}
	if err := sig.Validate(); err != nil {
		return nil, fmt.Errorf("execution: %w", err)
	}

	price := e.referencePrice(sig)
	if price <= 0 {
		return nil, fmt.Errorf("execution: no market data available for %s", sig.Symbol)
	}

	proposed := domain.ProposedFill{Symbol: sig.Symbol, Side: sig.Side, Quantity: sig.Quantity, Price: price}
	state := e.ledger.Snapshot(now.UnixMilli())
	if violations := e.riskEngine.PreTrade(state, proposed); len(violations) > 0 {
		return nil, &RiskRejectedError{Violations: violations}
	}

	orderID := e.newOrderID()
	order := domain.NewOrder(orderID, sig, now)

	e.mu.Lock()
	e.orders[orderID] = order
	e.mu.Unlock()

	if snap, ok := e.latestMark[sig.Symbol]; ok {
		e.fillAgainst(ctx, order, snap)
	}

	return order, nil
}

// newOrderID returns a UUIDv7 so order IDs stay roughly time-ordered in
// logs and the control surface without needing a separate sequence.
// Falls back to v4 if the runtime's entropy source ever makes v7
// generation fail.
func (e *Engine) newOrderID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Cancel transitions an active order to CANCELLED. Returns false if the
// order is unknown or already terminal.
func (e *Engine) Cancel(orderID, reason string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok || !order.IsActive() {
		return false
	}
	order.Cancel(reason, now)
	return true
}

// OnMarketEvent records snap as the latest reference price for its symbol
// and attempts to fill every active order on that symbol against it —
// this is what lets resting LIMIT/STOP orders fill on a later candle,
// mirroring _process_pending_orders.
func (e *Engine) OnMarketEvent(ctx context.Context, snap domain.MarketSnapshot) {
	e.mu.Lock()
	e.latestMark[snap.Symbol] = snap
	active := make([]*domain.Order, 0)
	for _, o := range e.orders {
		if o.Signal.Symbol == snap.Symbol && o.IsActive() {
			active = append(active, o)
		}
	}
	e.mu.Unlock()

	e.ledger.UpdateMarkPrice(snap.Symbol, snap.Close)

	for _, o := range active {
		e.fillAgainst(ctx, o, snap)
	}

	e.checkPostTrade(ctx, snap.TimestampMs)
}

// fillAgainst runs the fill simulator against order, applies any resulting
// fills to the ledger, and runs the post-trade risk check — triggering
// flatten-all on a critical violation, per SPEC_FULL.md §4.4.
func (e *Engine) fillAgainst(ctx context.Context, order *domain.Order, snap domain.MarketSnapshot) {
	fills := e.simulator.ProcessOrder(order, snap)
	for _, f := range fills {
		e.ledger.ApplyFill(f)
	}
	if len(fills) > 0 {
		e.checkPostTrade(ctx, snap.TimestampMs)
	}
}

func (e *Engine) checkPostTrade(ctx context.Context, ts int64) {
	state := e.ledger.Snapshot(ts)
	violations := e.riskEngine.PostTrade(state)
	if risk.HasCritical(violations) {
		e.flattenAll(ctx, "critical risk violation", time.UnixMilli(ts))
	}
}

// flattenAll is the kill-switch path: submit a closing MARKET order for
// every non-flat position, bypassing the pre-trade risk check (the point
// of flatten-all is to reduce risk, not to be blocked by it), then stop
// accepting new signals on this engine. Grounded on
// flatten_all_positions in simulated.py, including its "temporarily
// re-enable to submit the closing order" structure, reworked as an
// explicit flattening flag instead of toggling _is_running.
func (e *Engine) flattenAll(ctx context.Context, reason string, now time.Time) {
	e.mu.Lock()
	if e.flattening {
		e.mu.Unlock()
		return
	}
	e.flattening = true
	e.mu.Unlock()

	state := e.ledger.Snapshot(now.UnixMilli())
	for symbol, pos := range state.Positions {
		if pos.IsFlat() {
			continue
		}
		snap, ok := e.latestMark[symbol]
		if !ok {
			continue
		}
		closingSide := domain.SideSell
		if pos.IsShort() {
			closingSide = domain.SideBuy
		}
		sig := domain.Signal{
			Symbol:      symbol,
			Side:        closingSide,
			Quantity:    absQty(pos.Quantity),
			OrderType:   domain.OrderMarket,
			TimeInForce: domain.TIFGoodTillCancel,
			TimestampMs: now.UnixMilli(),
			StrategyID:  e.strategyID,
		}
		orderID := e.newOrderID()
		order := domain.NewOrder(orderID, sig, now)
		e.mu.Lock()
		e.orders[orderID] = order
		e.mu.Unlock()
		e.simulator.ProcessOrder(order, snap)
		for _, f := range order.Fills {
			e.ledger.ApplyFill(f)
		}
	}
}

// Stop cancels every active order with reason, mirroring
// SimulatedExecutionEngine.stop()'s pending-order cancellation. Runners call
// this on loop exit before disconnecting their feed, per spec.md §4.7.
func (e *Engine) Stop(reason string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range e.orders {
		if o.IsActive() {
			o.Cancel(reason, now)
		}
	}
}

// IsFlattening reports whether the kill-switch has fired on this engine.
func (e *Engine) IsFlattening() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.flattening
}

// RiskEvaluations re-runs the post-trade risk check against the ledger's
// current state without mutating it, for the control surface's
// /api/bots/{id}/risk audit view (spec.md §6) rather than waiting for the
// next market event's checkPostTrade.
func (e *Engine) RiskEvaluations(timestampMs int64) []domain.RiskViolation {
	state := e.ledger.PeekState(timestampMs)
	return e.riskEngine.PostTrade(state)
}

// Reset clears all order book state and un-latches the flatten-all flag.
// It does not reset the ledger or risk engine — callers reset those
// collaborators directly so each can be reset independently.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = make(map[string]*domain.Order)
	e.latestMark = make(map[string]domain.MarketSnapshot)
	e.flattening = false
}

// Order returns a copy of the order for orderID, if known.
func (e *Engine) Order(orderID string) (domain.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

func (e *Engine) referencePrice(sig domain.Signal) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if snap, ok := e.latestMark[sig.Symbol]; ok {
		return snap.Close
	}
	if sig.LimitPrice != nil {
		return *sig.LimitPrice
	}
	return 0
}

func absQty(q float64) float64 {
	if q < 0 {
		return -q
	}
	return q
}
