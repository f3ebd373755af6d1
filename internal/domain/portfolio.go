package domain

// EquityPoint is one entry in a PortfolioState's snapshot history — a
// lightweight summary, not a full recursive PortfolioState, emitted at the
// runner's snapshot cadence (SPEC_FULL.md §4.7, reference ~100 per run).
type EquityPoint struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	DrawdownPct float64 `json:"drawdown_pct"`
}

// PortfolioState is a point-in-time, strategy-scoped view of cash,
// positions, and derived P&L. It is owned exclusively by internal/portfolio
// and is otherwise a read-only value returned from Ledger.Snapshot.
type PortfolioState struct {
	StrategyID     string              `json:"strategy_id"`
	CashBalance    float64             `json:"cash_balance"`
	Positions      map[string]Position `json:"positions"`
	Marks          map[string]float64  `json:"marks"`
	MaxEquity      float64             `json:"max_equity"`
	MaxDrawdownPct float64             `json:"max_drawdown_pct"`
	Trades         []Fill              `json:"trades"`
	Snapshots      []EquityPoint       `json:"snapshots"`
}

// TotalPositionValue sums |qty| * average_entry_price across all positions.
func (p PortfolioState) TotalPositionValue() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		total += pos.NotionalValue()
	}
	return total
}

// UnrealizedPnL sums unrealized P&L across all positions, marked at the
// given per-symbol prices. A symbol absent from marks falls back to the
// position's average entry price (zero contribution).
func (p PortfolioState) UnrealizedPnL(marks map[string]float64) float64 {
	total := 0.0
	for symbol, pos := range p.Positions {
		mark, ok := marks[symbol]
		if !ok {
			mark = pos.AverageEntryPrice
		}
		total += pos.UnrealizedPnL(mark)
	}
	return total
}

// Equity is cash + total position value + unrealized P&L, per
// SPEC_FULL.md §3.
func (p PortfolioState) Equity(marks map[string]float64) float64 {
	return p.CashBalance + p.TotalPositionValue() + p.UnrealizedPnL(marks)
}
