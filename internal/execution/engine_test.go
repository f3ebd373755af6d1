package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/internal/fillsim"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/risk"
)

func newTestEngine(t *testing.T, riskCfg risk.Config) (*Engine, *portfolio.Ledger) {
	t.Helper()
	ledger := portfolio.New("test-strategy", 100000, portfolio.DefaultConfig())
	riskEngine := risk.NewEngine(riskCfg)
	riskEngine.Reset(100000)
	sim := fillsim.New(fillsim.Config{TakerFee: 0.001, MakerFee: 0.001}, 1)
	return New("test-strategy", ledger, riskEngine, sim), ledger
}

func snap(symbol string, ts int64, price float64) domain.MarketSnapshot {
	return domain.NewMarketSnapshot(domain.Candle{Symbol: symbol, TimestampMs: ts, Close: price, Open: price, High: price, Low: price, Volume: 1}, 0, 0)
}

func TestEngine_Submit_MarketOrderFillsImmediately(t *testing.T) {
	e, ledger := newTestEngine(t, risk.DefaultConfig())
	ctx := context.Background()
	e.OnMarketEvent(ctx, snap("BTCUSDT", 1000, 50000))

	sig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 0.1, OrderType: domain.OrderMarket, TimeInForce: domain.TIFGoodTillCancel}
	order, err := e.Submit(ctx, sig, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Fatalf("expected market order to fill immediately, got %s", order.Status)
	}

	pos := ledger.Position("BTCUSDT")
	if pos.Quantity != 0.1 {
		t.Fatalf("expected ledger position quantity 0.1, got %v", pos.Quantity)
	}
}

func TestEngine_Submit_RejectsOnRiskViolation(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxPositionNotional = 100
	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()
	e.OnMarketEvent(ctx, snap("BTCUSDT", 1000, 50000))

	sig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 1, OrderType: domain.OrderMarket, TimeInForce: domain.TIFGoodTillCancel}
	_, err := e.Submit(ctx, sig, time.UnixMilli(1000))
	if err == nil {
		t.Fatal("expected risk rejection")
	}
	var rejected *RiskRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RiskRejectedError, got %T: %v", err, err)
	}
}

func TestEngine_Submit_NoMarketDataRejectsSignal(t *testing.T) {
	e, _ := newTestEngine(t, risk.DefaultConfig())
	sig := domain.Signal{Symbol: "ETHUSDT", Side: domain.SideBuy, Quantity: 1, OrderType: domain.OrderMarket, TimeInForce: domain.TIFGoodTillCancel}
	_, err := e.Submit(context.Background(), sig, time.UnixMilli(1000))
	if err == nil {
		t.Fatal("expected an error when no market data is available for the symbol")
	}
}

func TestEngine_OnMarketEvent_FillsRestingLimitOrder(t *testing.T) {
	e, ledger := newTestEngine(t, risk.DefaultConfig())
	ctx := context.Background()
	e.OnMarketEvent(ctx, snap("BTCUSDT", 1000, 50000))

	limit := 49000.0
	sig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 0.1, OrderType: domain.OrderLimit, TimeInForce: domain.TIFGoodTillCancel, LimitPrice: &limit}
	order, err := e.Submit(ctx, sig, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusNew {
		t.Fatalf("expected limit order to rest unfilled, got %s", order.Status)
	}

	e.OnMarketEvent(ctx, snap("BTCUSDT", 2000, 48000))

	got, ok := e.Order(order.OrderID)
	if !ok {
		t.Fatal("expected order to be tracked")
	}
	if got.Status != domain.OrderStatusFilled {
		t.Fatalf("expected resting limit order to fill once price drops to it, got %s", got.Status)
	}
	if ledger.Position("BTCUSDT").Quantity != 0.1 {
		t.Fatalf("expected ledger updated from resting fill, got %v", ledger.Position("BTCUSDT").Quantity)
	}
}

func TestEngine_Cancel_ActiveOrderSucceeds(t *testing.T) {
	e, _ := newTestEngine(t, risk.DefaultConfig())
	ctx := context.Background()
	e.OnMarketEvent(ctx, snap("BTCUSDT", 1000, 50000))

	limit := 1.0
	sig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 0.1, OrderType: domain.OrderLimit, TimeInForce: domain.TIFGoodTillCancel, LimitPrice: &limit}
	order, err := e.Submit(ctx, sig, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !e.Cancel(order.OrderID, "test cancel", time.UnixMilli(1500)) {
		t.Fatal("expected cancel to succeed on an active order")
	}
	got, _ := e.Order(order.OrderID)
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got.Status)
	}
}

func TestEngine_FlattenAll_TriggeredByCriticalViolation(t *testing.T) {
	cfg := risk.Config{MaxDrawdownPct: 1, MaxDailyLossFraction: 1} // effectively disabled except drawdown
	e, ledger := newTestEngine(t, cfg)
	ctx := context.Background()

	e.OnMarketEvent(ctx, snap("BTCUSDT", 1000, 50000))
	sig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 1, OrderType: domain.OrderMarket, TimeInForce: domain.TIFGoodTillCancel}
	if _, err := e.Submit(ctx, sig, time.UnixMilli(1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Price craters, producing drawdown beyond the 1% critical threshold.
	e.OnMarketEvent(ctx, snap("BTCUSDT", 2000, 10000))

	if !e.IsFlattening() {
		t.Fatal("expected flatten-all to trigger on critical drawdown violation")
	}
	if !ledger.Position("BTCUSDT").IsFlat() {
		t.Fatalf("expected position flattened, got %+v", ledger.Position("BTCUSDT"))
	}
}

func TestEngine_Stop_CancelsActiveOrdersOnly(t *testing.T) {
	e, _ := newTestEngine(t, risk.DefaultConfig())
	ctx := context.Background()
	e.OnMarketEvent(ctx, snap("BTCUSDT", 1000, 50000))

	marketSig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 0.1, OrderType: domain.OrderMarket, TimeInForce: domain.TIFGoodTillCancel}
	filled, err := e.Submit(ctx, marketSig, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	limit := 1.0
	restingSig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 0.1, OrderType: domain.OrderLimit, TimeInForce: domain.TIFGoodTillCancel, LimitPrice: &limit}
	resting, err := e.Submit(ctx, restingSig, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.Stop("system shutdown", time.UnixMilli(1500))

	gotFilled, _ := e.Order(filled.OrderID)
	if gotFilled.Status != domain.OrderStatusFilled {
		t.Fatalf("expected already-filled order to stay FILLED, got %s", gotFilled.Status)
	}
	gotResting, _ := e.Order(resting.OrderID)
	if gotResting.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected resting order cancelled on Stop, got %s", gotResting.Status)
	}
}

func TestEngine_RiskEvaluations_ReflectsCurrentDrawdownWithoutMutatingHistory(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxDrawdownPct = 1
	e, ledger := newTestEngine(t, cfg)
	ctx := context.Background()
	e.OnMarketEvent(ctx, snap("BTCUSDT", 1000, 50000))
	sig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 1, OrderType: domain.OrderMarket, TimeInForce: domain.TIFGoodTillCancel}
	if _, err := e.Submit(ctx, sig, time.UnixMilli(1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.OnMarketEvent(ctx, snap("BTCUSDT", 2000, 10000))

	before := len(ledger.PeekState(3000).Snapshots)
	violations := e.RiskEvaluations(3000)
	after := len(ledger.PeekState(3000).Snapshots)

	if before != after {
		t.Fatalf("expected RiskEvaluations not to grow snapshot history, got %d -> %d", before, after)
	}
	if !risk.HasCritical(violations) {
		t.Fatal("expected a critical drawdown violation to be reported")
	}
}

func TestEngine_Reset_ClearsOrderBook(t *testing.T) {
	e, _ := newTestEngine(t, risk.DefaultConfig())
	ctx := context.Background()
	e.OnMarketEvent(ctx, snap("BTCUSDT", 1000, 50000))
	sig := domain.Signal{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 0.1, OrderType: domain.OrderMarket, TimeInForce: domain.TIFGoodTillCancel}
	order, _ := e.Submit(ctx, sig, time.UnixMilli(1000))

	e.Reset()
	if _, ok := e.Order(order.OrderID); ok {
		t.Fatal("expected order book cleared after Reset")
	}
	if e.IsFlattening() {
		t.Fatal("expected flattening flag cleared after Reset")
	}
}
