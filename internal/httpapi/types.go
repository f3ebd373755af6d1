package httpapi

import "context"

// BotRecord is the persisted configuration of one bot, matching spec.md
// §6's `{strategy, parameters, metadata}` shape, flattened for storage.
type BotRecord struct {
	ID             string         `json:"id"`
	StrategyID     string         `json:"strategy"`
	Symbol         string         `json:"symbol"`
	Mode           string         `json:"mode"`
	InitialBalance float64        `json:"initial_balance"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	CreatedAtMs    int64          `json:"created_at_ms"`
}

// BotStore persists BotRecords so configured bots survive a process
// restart, grounded on internal/app.TradeStore's pattern of a narrow
// interface the HTTP layer depends on instead of a concrete database type.
// internal/config.PostgresStore implements this against Postgres.
type BotStore interface {
	SaveBot(ctx context.Context, rec BotRecord) error
	ListBots(ctx context.Context) ([]BotRecord, error)
	DeleteBot(ctx context.Context, id string) error
}

// CreateBotRequest is the body of POST /api/bots per spec.md §6.
type CreateBotRequest struct {
	ID             string         `json:"id"`
	Strategy       string         `json:"strategy"`
	Symbol         string         `json:"symbol"`
	Mode           string         `json:"mode"`
	InitialBalance float64        `json:"initial_balance"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}

// BotSummary is one entry of GET /api/bots.
type BotSummary struct {
	ID     string `json:"id"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

// StatusResponse is the body of GET /api/bots/{id}/status.
type StatusResponse struct {
	PnL       float64        `json:"pnl"`
	Positions []positionView `json:"positions"`
	Balance   float64        `json:"balance"`
	Equity    float64        `json:"equity"`
}

type positionView struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AverageEntry float64 `json:"average_entry_price"`
	RealizedPnL  float64 `json:"realized_pnl"`
}

// RiskResponse is the body of GET /api/bots/{id}/risk.
type RiskResponse struct {
	Evaluations       []riskViolationView `json:"evaluations"`
	KillSwitchActive  bool                `json:"kill_switch_activated"`
}

type riskViolationView struct {
	RuleName  string  `json:"rule_name"`
	Details   string  `json:"details"`
	Observed  float64 `json:"observed"`
	Threshold float64 `json:"threshold"`
	Critical  bool    `json:"critical"`
}

// GlobalMetrics is the body of GET /api/metrics/global.
type GlobalMetrics struct {
	BotsRunning int     `json:"bots_running"`
	TotalEquity float64 `json:"total_equity"`
	TotalPnL    float64 `json:"total_pnl"`
	TotalTrades int     `json:"total_trades"`
}
