package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"cryptobot/internal/botmanager"
	"cryptobot/internal/domain"
	"cryptobot/internal/execution"
	"cryptobot/internal/fillsim"
	"cryptobot/internal/marketdata"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/risk"
	"cryptobot/internal/runner"
	"cryptobot/internal/sizing"
	"cryptobot/internal/strategy"
)

// idleFeed never emits and only closes on context cancellation, enough for
// a bot that just needs to exist and report "running" for these tests.
type idleFeed struct{}

func (idleFeed) Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error) {
	out := make(chan domain.MarketSnapshot)
	go func() {
		defer close(out)
		<-ctx.Done()
	}()
	return out, nil
}
func (idleFeed) Lifecycle() <-chan marketdata.LifecycleEvent { return make(chan marketdata.LifecycleEvent) }
func (idleFeed) Close() error                                { return nil }

type noopStrategy struct{ id string }

func (s *noopStrategy) ID() string   { return s.id }
func (s *noopStrategy) Name() string { return s.id }
func (s *noopStrategy) GenerateSignals(ctx context.Context, window strategy.Window, position domain.Position) ([]domain.Signal, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *botmanager.Manager) {
	t.Helper()
	manager := botmanager.New()
	factory := func(req CreateBotRequest) error {
		ledger := portfolio.New(req.ID, req.InitialBalance, portfolio.DefaultConfig())
		riskEngine := risk.NewEngine(risk.DefaultConfig())
		riskEngine.Reset(req.InitialBalance)
		sim := fillsim.New(fillsim.Config{TakerFee: 0.001, MakerFee: 0.001}, 1)
		engine := execution.New(req.ID, ledger, riskEngine, sim)
		sizer := sizing.New(sizing.DefaultConfig())
		r := runner.New(req.ID, &noopStrategy{id: req.Strategy}, idleFeed{}, engine, ledger, sizer, runner.Config{Symbol: req.Symbol, Interval: "1m"})
		return manager.Add(req.ID, r)
	}
	return NewServer(manager, factory, nil), manager
}

func TestHandleBotsCollection_CreateThenList(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(CreateBotRequest{ID: "bot1", Strategy: "sma_crossover_v1", Symbol: "BTCUSDT", Mode: "paper", InitialBalance: 10000})
	req := httptest.NewRequest("POST", "/api/bots", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	listReq := httptest.NewRequest("GET", "/api/bots", nil)
	listRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(listRec, listReq)
	if listRec.Code != 200 {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}
	var out struct {
		Bots []BotSummary `json:"bots"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(out.Bots) != 1 || out.Bots[0].ID != "bot1" {
		t.Fatalf("expected one bot 'bot1', got %+v", out.Bots)
	}
}

func TestHandleBotsCollection_CreateRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(CreateBotRequest{Strategy: "sma_crossover_v1"})
	req := httptest.NewRequest("POST", "/api/bots", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("expected 400 for missing id/symbol, got %d", rec.Code)
	}
}

func TestBotLifecycle_StartStatusKill(t *testing.T) {
	s, manager := newTestServer(t)
	body, _ := json.Marshal(CreateBotRequest{ID: "bot2", Strategy: "sma_crossover_v1", Symbol: "BTCUSDT", Mode: "paper", InitialBalance: 10000})
	createReq := httptest.NewRequest("POST", "/api/bots", bytes.NewReader(body))
	createRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(createRec, createReq)
	if createRec.Code != 201 {
		t.Fatalf("expected 201, got %d", createRec.Code)
	}

	startReq := httptest.NewRequest("POST", "/api/bots/bot2/start", nil)
	startRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(startRec, startReq)
	if startRec.Code != 200 {
		t.Fatalf("expected 200 on start, got %d: %s", startRec.Code, startRec.Body.String())
	}

	statusReq := httptest.NewRequest("GET", "/api/bots/bot2/status", nil)
	statusRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(statusRec, statusReq)
	if statusRec.Code != 200 {
		t.Fatalf("expected 200 on status, got %d", statusRec.Code)
	}
	var status StatusResponse
	if err := json.Unmarshal(statusRec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Balance != 10000 {
		t.Fatalf("expected starting balance 10000, got %v", status.Balance)
	}

	killReq := httptest.NewRequest("POST", "/api/bots/bot2/kill", nil)
	killRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(killRec, killReq)
	if killRec.Code != 200 {
		t.Fatalf("expected 200 on kill, got %d", killRec.Code)
	}

	label := s.statusLabel("bot2")
	if label != "killed" {
		t.Fatalf("expected status label 'killed' after kill, got %q", label)
	}

	manager.StopAll()
}

func TestBotResource_UnknownIDReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/bots/does-not-exist/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 404 {
		t.Fatalf("expected 404 for unknown bot, got %d", rec.Code)
	}
}

func TestGlobalMetrics_AggregatesAcrossBots(t *testing.T) {
	s, manager := newTestServer(t)
	for _, id := range []string{"m1", "m2"} {
		body, _ := json.Marshal(CreateBotRequest{ID: id, Strategy: "sma_crossover_v1", Symbol: "BTCUSDT", Mode: "paper", InitialBalance: 5000})
		req := httptest.NewRequest("POST", "/api/bots", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != 201 {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		startReq := httptest.NewRequest("POST", "/api/bots/"+id+"/start", nil)
		startRec := httptest.NewRecorder()
		s.Handler().ServeHTTP(startRec, startReq)
		if startRec.Code != 200 {
			t.Fatalf("expected 200 on start, got %d", startRec.Code)
		}
	}

	metricsReq := httptest.NewRequest("GET", "/api/metrics/global", nil)
	metricsRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(metricsRec, metricsReq)
	if metricsRec.Code != 200 {
		t.Fatalf("expected 200, got %d", metricsRec.Code)
	}
	var metrics GlobalMetrics
	if err := json.Unmarshal(metricsRec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("failed to decode metrics: %v", err)
	}
	if metrics.BotsRunning != 2 {
		t.Fatalf("expected 2 bots running, got %d", metrics.BotsRunning)
	}
	if metrics.TotalEquity != 10000 {
		t.Fatalf("expected total equity 10000, got %v", metrics.TotalEquity)
	}

	manager.StopAll()
}
