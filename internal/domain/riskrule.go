package domain

// ProposedFill describes a fill that has not happened yet: the risk engine's
// pre-trade check evaluates rules against one of these before the execution
// engine creates an Order.
type ProposedFill struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// Notional is quantity * price.
func (p ProposedFill) Notional() float64 { return p.Quantity * p.Price }

// RiskViolation is the structured payload a rule returns when it fires:
// {rule_name, observed, threshold}, so the control surface can render it.
type RiskViolation struct {
	RuleName  string  `json:"rule_name"`
	Details   string  `json:"details"`
	Observed  float64 `json:"observed"`
	Threshold float64 `json:"threshold"`
	Critical  bool    `json:"critical"`
}

// RiskRule is a named predicate over (PortfolioState, *ProposedFill). All
// registered rules are evaluated every check (no short-circuit) so callers
// see the complete violation list, per SPEC_FULL.md §4.5.
type RiskRule interface {
	Name() string
	Critical() bool
	Evaluate(state PortfolioState, proposed *ProposedFill) (violated bool, observed, threshold float64, details string)
}
