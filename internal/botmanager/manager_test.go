package botmanager

import (
	"context"
	"testing"
	"time"

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

// blockingFeed streams nothing and only closes its channel when its context
// is cancelled, simulating a live runner that must be stopped explicitly.
type blockingFeed struct {
	closeCalled chan struct{}
}

func newBlockingFeed() *blockingFeed {
	return &blockingFeed{closeCalled: make(chan struct{}, 1)}
}

func (f *blockingFeed) Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error) {
	out := make(chan domain.MarketSnapshot)
	go func() {
		defer close(out)
		<-ctx.Done()
	}()
	return out, nil
}

func (f *blockingFeed) Lifecycle() <-chan marketdata.LifecycleEvent {
	return make(chan marketdata.LifecycleEvent)
}

func (f *blockingFeed) Close() error {
	select {
	case f.closeCalled <- struct{}{}:
	default:
	}
	return nil
}

type noopStrategy struct{ id string }

func (s *noopStrategy) ID() string   { return s.id }
func (s *noopStrategy) Name() string { return s.id }
func (s *noopStrategy) GenerateSignals(ctx context.Context, window strategy.Window, position domain.Position) ([]domain.Signal, error) {
	return nil, nil
}

type panicStrategy struct{ id string }

func (s *panicStrategy) ID() string   { return s.id }
func (s *panicStrategy) Name() string { return s.id }
func (s *panicStrategy) GenerateSignals(ctx context.Context, window strategy.Window, position domain.Position) ([]domain.Signal, error) {
	panic("boom")
}

func newRunnerWithFeed(id string, strat strategy.Strategy, feed marketdata.Feed) *runner.Runner {
	ledger := portfolio.New(id, 100000, portfolio.DefaultConfig())
	riskEngine := risk.NewEngine(risk.DefaultConfig())
	riskEngine.Reset(100000)
	sim := fillsim.New(fillsim.Config{TakerFee: 0.001, MakerFee: 0.001}, 1)
	engine := execution.New(id, ledger, riskEngine, sim)
	sizer := sizing.New(sizing.DefaultConfig())
	cfg := runner.Config{Symbol: "BTCUSDT", Interval: "1m", WindowSize: 10, SnapshotEvery: 5}
	return runner.New(id, strat, feed, engine, ledger, sizer, cfg)
}

func TestManager_RunAllAndStopAll_StopsEveryBot(t *testing.T) {
	m := New()
	m.StopGrace = 2 * time.Second

	feedA := newBlockingFeed()
	feedB := newBlockingFeed()
	if err := m.Add("a", newRunnerWithFeed("a", &noopStrategy{id: "a"}, feedA)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Add("b", newRunnerWithFeed("b", &noopStrategy{id: "b"}, feedB)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.RunAll(context.Background())
	time.Sleep(20 * time.Millisecond)

	statuses := m.StatusAll()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Started || s.Done {
			t.Fatalf("expected bot %q to be started and not yet done, got %+v", s.ID, s)
		}
	}

	m.StopAll()

	select {
	case <-feedA.closeCalled:
	case <-time.After(time.Second):
		t.Fatal("expected feed A to be closed on stop")
	}
	select {
	case <-feedB.closeCalled:
	case <-time.After(time.Second):
		t.Fatal("expected feed B to be closed on stop")
	}

	for _, s := range m.StatusAll() {
		if !s.Done {
			t.Fatalf("expected bot %q done after StopAll, got %+v", s.ID, s)
		}
	}
}

func TestManager_Add_RejectsDuplicateID(t *testing.T) {
	m := New()
	r := newRunnerWithFeed("dup", &noopStrategy{id: "dup"}, newBlockingFeed())
	if err := m.Add("dup", r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Add("dup", r); err == nil {
		t.Fatal("expected duplicate bot id to be rejected")
	}
}

func TestManager_OneBotPanicking_DoesNotAffectSiblings(t *testing.T) {
	m := New()
	m.StopGrace = 2 * time.Second

	good := newBlockingFeed()
	if err := m.Add("good", newRunnerWithFeed("good", &noopStrategy{id: "good"}, good)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Add("bad", newRunnerWithFeed("bad", &panicStrategy{id: "bad"}, newMockSnapFeed())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.RunAll(context.Background())

	deadline := time.Now().Add(time.Second)
	var badStatus Status
	for time.Now().Before(deadline) {
		s, err := m.Status("bad")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Done {
			badStatus = s
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !badStatus.Done {
		t.Fatal("expected panicking bot to finish (via recover) within the deadline")
	}
	if badStatus.Err == nil {
		t.Fatal("expected panicking bot's status to carry an error")
	}

	goodStatus, err := m.Status("good")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if goodStatus.Done {
		t.Fatal("expected sibling bot to still be running after the other panicked")
	}

	m.StopAll()
}

// mockSnapFeed emits a single snapshot then closes, enough to drive one
// GenerateSignals call before the caller stops the manager.
type mockSnapFeed struct{}

func newMockSnapFeed() *mockSnapFeed { return &mockSnapFeed{} }

func (f *mockSnapFeed) Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error) {
	out := make(chan domain.MarketSnapshot, 1)
	out <- domain.NewMarketSnapshot(domain.Candle{
		Symbol: symbol, Interval: interval, TimestampMs: 1000,
		Open: 100, High: 101, Low: 99, Close: 100, Volume: 1,
	}, 0, 0)
	close(out)
	return out, nil
}

func (f *mockSnapFeed) Lifecycle() <-chan marketdata.LifecycleEvent {
	return make(chan marketdata.LifecycleEvent)
}
func (f *mockSnapFeed) Close() error { return nil }
