// Package risk evaluates portfolio and proposed-fill state against an
// ordered set of rules and returns every violation found — never
// short-circuiting on the first breach — so a caller (the execution engine,
// or an operator inspecting /api/bots/{id}/risk) sees the complete picture.
//
// Grounded on libs/risk/policy.go's Enforcer/Violation/Violations design:
// the teacher's CheckSignal/CheckPortfolio pair evaluates every constraint
// unconditionally and accumulates a Violations slice. This package
// generalizes that pattern from the teacher's dollar-denominated equities
// policy to the domain.RiskRule interface so new rules can be registered at
// runtime (AddRule) instead of being hardcoded into one function, per
// SPEC_FULL.md §4.5.
package risk

import (
	"fmt"
	"sync"

	"cryptobot/internal/domain"
)

// Config holds the thresholds for the four canonical rules registered by
// NewEngine.
type Config struct {
	MaxPositionNotional      float64
	MaxDrawdownPct           float64
	MaxPositionConcentration float64
	MaxDailyLossFraction     float64
}

// DefaultConfig mirrors the teacher's DefaultPolicy conservative defaults,
// adapted to the fraction-of-equity terms this engine uses.
func DefaultConfig() Config {
	return Config{
		MaxPositionNotional:      50_000,
		MaxDrawdownPct:           20,
		MaxPositionConcentration: 0.30,
		MaxDailyLossFraction:     0.05,
	}
}

// resettable is implemented by rules that track a rolling baseline (the
// daily loss limit's start-of-day equity) that must be re-anchored when the
// engine is reset.
type resettable interface {
	resetBaseline(equity float64)
}

// Engine holds a mutable, ordered set of domain.RiskRule and evaluates all
// of them on every PreTrade/PostTrade call.
type Engine struct {
	mu    sync.RWMutex
	rules []domain.RiskRule
}

// NewEngine constructs an Engine with the four canonical rules registered:
// max_position_notional, max_drawdown (critical), position_concentration,
// and daily_loss_limit (critical).
func NewEngine(cfg Config) *Engine {
	return &Engine{
		rules: []domain.RiskRule{
			&maxPositionNotionalRule{limit: cfg.MaxPositionNotional},
			&maxDrawdownRule{limitPct: cfg.MaxDrawdownPct},
			&positionConcentrationRule{maxFraction: cfg.MaxPositionConcentration},
			&dailyLossLimitRule{maxLossFraction: cfg.MaxDailyLossFraction},
		},
	}
}

// AddRule registers an additional rule, evaluated alongside the canonical
// set. Strategies or operators can extend risk policy without touching
// this package.
func (e *Engine) AddRule(r domain.RiskRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
}

// PreTrade evaluates every rule against state as it stands before a
// proposed fill is applied, so the execution engine can reject a signal
// before it ever reaches the fill simulator.
func (e *Engine) PreTrade(state domain.PortfolioState, proposed domain.ProposedFill) []domain.RiskViolation {
	return e.evaluate(state, &proposed)
}

// PostTrade evaluates every rule against the portfolio state that resulted
// from an already-applied fill, catching breaches (drawdown, daily loss)
// that only become visible after the fact.
func (e *Engine) PostTrade(state domain.PortfolioState) []domain.RiskViolation {
	return e.evaluate(state, nil)
}

func (e *Engine) evaluate(state domain.PortfolioState, proposed *domain.ProposedFill) []domain.RiskViolation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []domain.RiskViolation
	for _, r := range e.rules {
		violated, observed, threshold, details := r.Evaluate(state, proposed)
		if violated {
			out = append(out, domain.RiskViolation{
				RuleName:  r.Name(),
				Details:   details,
				Observed:  observed,
				Threshold: threshold,
				Critical:  r.Critical(),
			})
		}
	}
	return out
}

// Reset re-anchors any rule with a rolling baseline (currently
// daily_loss_limit) to equityBaseline — called once per trading day, or
// whenever the owning runner's portfolio is reset.
func (e *Engine) Reset(equityBaseline float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		if rr, ok := r.(resettable); ok {
			rr.resetBaseline(equityBaseline)
		}
	}
}

// HasCritical reports whether any violation in the slice is marked
// Critical — the execution engine treats this as the kill-switch signal
// that triggers flatten-all, per SPEC_FULL.md §4.5/§4.4.
func HasCritical(violations []domain.RiskViolation) bool {
	for _, v := range violations {
		if v.Critical {
			return true
		}
	}
	return false
}

// equityProxy marks every open position to its last known price (falling
// back to cost basis for a symbol with no mark yet) so that daily_loss_limit
// and position_concentration see unrealized P&L the same way
// maxDrawdownRule's state.MaxDrawdownPct already does — a pure cost-basis
// proxy is blind to an open position's unrealized loss, since a fill's cash
// delta is offset almost exactly by the cost-basis change it creates.
func equityProxy(state domain.PortfolioState) float64 {
	return state.Equity(state.Marks)
}

// ─── canonical rules ────────────────────────────────────────────────────────

type maxPositionNotionalRule struct{ limit float64 }

func (r *maxPositionNotionalRule) Name() string   { return "max_position_notional" }
func (r *maxPositionNotionalRule) Critical() bool { return false }

func (r *maxPositionNotionalRule) Evaluate(state domain.PortfolioState, proposed *domain.ProposedFill) (bool, float64, float64, string) {
	var observed float64
	if proposed != nil {
		existing := 0.0
		if pos, ok := state.Positions[proposed.Symbol]; ok {
			existing = pos.NotionalValue()
		}
		observed = existing + proposed.Notional()
	} else {
		observed = state.TotalPositionValue()
	}
	if r.limit > 0 && observed > r.limit {
		return true, observed, r.limit, fmt.Sprintf("position notional %.2f exceeds max_position_notional %.2f", observed, r.limit)
	}
	return false, observed, r.limit, ""
}

type maxDrawdownRule struct{ limitPct float64 }

func (r *maxDrawdownRule) Name() string   { return "max_drawdown" }
func (r *maxDrawdownRule) Critical() bool { return true }

func (r *maxDrawdownRule) Evaluate(state domain.PortfolioState, _ *domain.ProposedFill) (bool, float64, float64, string) {
	if r.limitPct > 0 && state.MaxDrawdownPct > r.limitPct {
		return true, state.MaxDrawdownPct, r.limitPct, fmt.Sprintf("drawdown %.2f%% exceeds max_drawdown %.2f%%", state.MaxDrawdownPct, r.limitPct)
	}
	return false, state.MaxDrawdownPct, r.limitPct, ""
}

type positionConcentrationRule struct{ maxFraction float64 }

func (r *positionConcentrationRule) Name() string   { return "position_concentration" }
func (r *positionConcentrationRule) Critical() bool { return false }

func (r *positionConcentrationRule) Evaluate(state domain.PortfolioState, proposed *domain.ProposedFill) (bool, float64, float64, string) {
	equity := equityProxy(state)
	if equity <= 0 {
		return false, 0, r.maxFraction, ""
	}

	var notional float64
	if proposed != nil {
		existing := 0.0
		if pos, ok := state.Positions[proposed.Symbol]; ok {
			existing = pos.NotionalValue()
		}
		notional = existing + proposed.Notional()
	} else {
		for _, pos := range state.Positions {
			if v := pos.NotionalValue(); v > notional {
				notional = v
			}
		}
	}

	frac := notional / equity
	if r.maxFraction > 0 && frac > r.maxFraction {
		return true, frac, r.maxFraction, fmt.Sprintf("position concentration %.2f%% exceeds max_position_concentration %.2f%%", frac*100, r.maxFraction*100)
	}
	return false, frac, r.maxFraction, ""
}

type dailyLossLimitRule struct {
	maxLossFraction float64
	baseline        float64
}

func (r *dailyLossLimitRule) Name() string   { return "daily_loss_limit" }
func (r *dailyLossLimitRule) Critical() bool { return true }

func (r *dailyLossLimitRule) resetBaseline(equity float64) { r.baseline = equity }

func (r *dailyLossLimitRule) Evaluate(state domain.PortfolioState, _ *domain.ProposedFill) (bool, float64, float64, string) {
	if r.baseline <= 0 {
		return false, 0, r.maxLossFraction, ""
	}
	current := equityProxy(state)
	lossFrac := (r.baseline - current) / r.baseline
	if r.maxLossFraction > 0 && lossFrac > r.maxLossFraction {
		return true, lossFrac, r.maxLossFraction, fmt.Sprintf("daily loss %.2f%% exceeds daily_loss_limit %.2f%%", lossFrac*100, r.maxLossFraction*100)
	}
	return false, lossFrac, r.maxLossFraction, ""
}
