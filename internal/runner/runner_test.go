package runner

import (
	"context"
	"testing"

	"cryptobot/internal/domain"
	"cryptobot/internal/execution"
	"cryptobot/internal/fillsim"
	"cryptobot/internal/marketdata"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/risk"
	"cryptobot/internal/sizing"
	"cryptobot/internal/strategy"
)

// fakeFeed emits a fixed sequence of snapshots then closes, satisfying
// marketdata.Feed without any network or RNG dependency.
type fakeFeed struct {
	snaps    []domain.MarketSnapshot
	closed   bool
	lifecycle chan marketdata.LifecycleEvent
}

func newFakeFeed(snaps []domain.MarketSnapshot) *fakeFeed {
	return &fakeFeed{snaps: snaps, lifecycle: make(chan marketdata.LifecycleEvent, 1)}
}

func (f *fakeFeed) Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error) {
	out := make(chan domain.MarketSnapshot)
	go func() {
		defer close(out)
		for _, s := range f.snaps {
			select {
			case <-ctx.Done():
				return
			case out <- s:
			}
		}
	}()
	return out, nil
}

func (f *fakeFeed) Lifecycle() <-chan marketdata.LifecycleEvent { return f.lifecycle }
func (f *fakeFeed) Close() error                                { f.closed = true; return nil }

// trendStrategy always emits one BUY signal with an unset quantity and a
// stop_loss_price metadata key, exercising the runner's sizing path.
type trendStrategy struct {
	id       string
	submitted int
}

func (s *trendStrategy) ID() string   { return s.id }
func (s *trendStrategy) Name() string { return "trend test strategy" }

func (s *trendStrategy) GenerateSignals(ctx context.Context, window strategy.Window, position domain.Position) ([]domain.Signal, error) {
	if !position.IsFlat() {
		return nil, nil
	}
	s.submitted++
	last := window.Latest()
	stop := last.Close * 0.98
	return []domain.Signal{{
		Symbol:      window.Symbol,
		Side:        domain.SideBuy,
		OrderType:   domain.OrderMarket,
		TimeInForce: domain.TIFGoodTillCancel,
		StrategyID:  s.id,
		Metadata:    map[string]any{"stop_loss_price": stop},
	}}, nil
}

func candleSnap(symbol string, ts int64, price float64) domain.MarketSnapshot {
	return domain.NewMarketSnapshot(domain.Candle{
		Symbol: symbol, Interval: "1m", TimestampMs: ts,
		Open: price, High: price * 1.001, Low: price * 0.999, Close: price, Volume: 10,
	}, 0, 0)
}

func newTestRunner(t *testing.T, strat strategy.Strategy, snaps []domain.MarketSnapshot) (*Runner, *portfolio.Ledger) {
	t.Helper()
	ledger := portfolio.New(strat.ID(), 100000, portfolio.DefaultConfig())
	riskEngine := risk.NewEngine(risk.DefaultConfig())
	riskEngine.Reset(100000)
	sim := fillsim.New(fillsim.Config{TakerFee: 0.001, MakerFee: 0.001}, 1)
	engine := execution.New(strat.ID(), ledger, riskEngine, sim)
	sizer := sizing.New(sizing.DefaultConfig())
	feed := newFakeFeed(snaps)
	cfg := Config{Symbol: "BTCUSDT", Interval: "1m", WindowSize: 50, SnapshotEvery: 2}
	return New(strat.ID(), strat, feed, engine, ledger, sizer, cfg), ledger
}

func TestRunner_Run_SubmitsSizedSignalAndStopsCleanly(t *testing.T) {
	strat := &trendStrategy{id: "trend_v1"}
	snaps := []domain.MarketSnapshot{
		candleSnap("BTCUSDT", 1000, 50000),
		candleSnap("BTCUSDT", 2000, 50100),
		candleSnap("BTCUSDT", 3000, 50200),
	}
	r, ledger := newTestRunner(t, strat, snaps)

	ctx := context.Background()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strat.submitted != 1 {
		t.Fatalf("expected strategy to submit exactly one opening signal once flat, got %d", strat.submitted)
	}

	pos := ledger.Position("BTCUSDT")
	if pos.IsFlat() {
		t.Fatal("expected an open position after the sized BUY signal filled")
	}

	status := r.Status()
	if status.Running {
		t.Fatal("expected runner to report not running after Run returns")
	}
	if status.StoppedReason != "feed closed" {
		t.Fatalf("expected stop reason 'feed closed', got %q", status.StoppedReason)
	}
	if status.KillSwitchActivated {
		t.Fatal("expected kill switch not activated on a clean run")
	}
}

func TestRunner_Run_StopsOnContextCancel(t *testing.T) {
	strat := &trendStrategy{id: "trend_v2"}
	snaps := make([]domain.MarketSnapshot, 0, 10)
	for i := int64(0); i < 10; i++ {
		snaps = append(snaps, candleSnap("BTCUSDT", 1000+i*1000, 50000))
	}
	r, _ := newTestRunner(t, strat, snaps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := r.Status()
	if status.StoppedReason != "context cancelled" && status.StoppedReason != "feed closed" {
		t.Fatalf("unexpected stop reason %q", status.StoppedReason)
	}
}

func TestRunner_Run_FeedStartErrorIsReturned(t *testing.T) {
	strat := &trendStrategy{id: "trend_v3"}
	ledger := portfolio.New(strat.ID(), 100000, portfolio.DefaultConfig())
	riskEngine := risk.NewEngine(risk.DefaultConfig())
	riskEngine.Reset(100000)
	sim := fillsim.New(fillsim.Config{TakerFee: 0.001, MakerFee: 0.001}, 1)
	engine := execution.New(strat.ID(), ledger, riskEngine, sim)
	sizer := sizing.New(sizing.DefaultConfig())

	r := New(strat.ID(), strat, &erroringFeed{}, engine, ledger, sizer, Config{Symbol: "BTCUSDT", Interval: "1m"})
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected an error when the feed fails to start")
	}
	if r.Status().Running {
		t.Fatal("expected runner not to report running after a failed start")
	}
}

type erroringFeed struct{}

func (f *erroringFeed) Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error) {
	return nil, errFeedStartFailure
}
func (f *erroringFeed) Lifecycle() <-chan marketdata.LifecycleEvent { return make(chan marketdata.LifecycleEvent) }
func (f *erroringFeed) Close() error                                { return nil }

var errFeedStartFailure = context.DeadlineExceeded
