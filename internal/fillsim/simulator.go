// Package fillsim simulates realistic order fills against a market
// snapshot: slippage, partial fills, execution latency, and order-type
// specific fill logic for MARKET/LIMIT/STOP_MARKET/STOP_LIMIT orders.
//
// Grounded on _examples/original_source/backtest/execution/fill_simulator.py
// (FillSimulator.process_order and its per-order-type helpers), reworked
// from Python's module-global random module to a per-instance
// math/rand/v2.Rand so that two simulators seeded identically produce
// identical fill sequences — required by SPEC_FULL.md §8's determinism
// property, which a shared global RNG would violate under concurrent
// strategy runners.
package fillsim

import (
	"fmt"
	"math/rand/v2"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/libs/observability"
)

// Config mirrors the teacher's BacktestConfig fee/slippage/latency knobs,
// generalized from equities to the crypto taker/maker fee split of
// SPEC_FULL.md §4.3.
type Config struct {
	MakerFee               float64
	TakerFee               float64
	MarketOrderSlippage    float64
	PartialFillProbability float64
	ExecutionLatencyMs     int64
}

// DefaultConfig matches typical spot-exchange fee tiers.
func DefaultConfig() Config {
	return Config{
		MakerFee:               0.001,
		TakerFee:               0.001,
		MarketOrderSlippage:    0.0005,
		PartialFillProbability: 0.1,
		ExecutionLatencyMs:     50,
	}
}

// Simulator processes orders against market snapshots. Each Simulator owns
// its own *rand.Rand so callers can seed it for reproducible backtests;
// it is not safe for concurrent use by more than one strategy runner.
type Simulator struct {
	cfg     Config
	rng     *rand.Rand
	nextID  int
	metrics *observability.TradingMetrics
}

// New constructs a Simulator seeded from seed. Passing the same seed and
// replaying the same sequence of market snapshots against the same orders
// reproduces an identical fill history.
func New(cfg Config, seed uint64) *Simulator {
	return &Simulator{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// SetMetrics attaches a shared TradingMetrics instance so every market fill
// records its drawn slippage in cryptobot_slippage_bps. Optional; a nil
// metrics pointer (the default) simply skips recording.
func (s *Simulator) SetMetrics(m *observability.TradingMetrics) {
	s.metrics = m
}

// ProcessOrder dispatches by order type and returns the fills generated,
// mutating order in place (filled/remaining quantity, average fill price,
// fees, status) per SPEC_FULL.md §4.3. Fills are stamped
// snap.TimestampMs+ExecutionLatencyMs (epoch milliseconds).
func (s *Simulator) ProcessOrder(order *domain.Order, snap domain.MarketSnapshot) []domain.Fill {
	execTs := snap.TimestampMs + s.cfg.ExecutionLatencyMs

	var fills []domain.Fill
	switch order.Signal.OrderType {
	case domain.OrderMarket:
		fills = s.processMarket(order, snap, execTs)
	case domain.OrderLimit:
		fills = s.processLimit(order, snap, execTs)
	case domain.OrderStopMarket, domain.OrderStopLimit:
		fills = s.processStop(order, snap, execTs)
	}

	s.updateOrderStatus(order, fills)
	return fills
}

func (s *Simulator) processMarket(order *domain.Order, snap domain.MarketSnapshot, execTs int64) []domain.Fill {
	slippage := s.drawSlippage()
	if s.metrics != nil {
		s.metrics.SlippageBps.Observe(slippage * 10000)
	}

	var execPrice float64
	if order.Signal.Side == domain.SideBuy {
		execPrice = snap.Ask * (1 + slippage)
	} else {
		execPrice = snap.Bid * (1 - slippage)
	}

	qty := s.fillQuantity(order, s.cfg.PartialFillProbability, 0.5, 0.9)
	if qty <= 0 {
		return nil
	}
	return []domain.Fill{s.makeFill(order, qty, execPrice, s.cfg.TakerFee, false, execTs)}
}

func (s *Simulator) processLimit(order *domain.Order, snap domain.MarketSnapshot, execTs int64) []domain.Fill {
	limit := order.Signal.LimitPrice
	if limit == nil {
		return nil
	}

	var canFill bool
	execPrice := *limit
	if order.Signal.Side == domain.SideBuy {
		if snap.Ask <= *limit {
			canFill = true
			execPrice = minF(*limit, snap.Ask)
		}
	} else {
		if snap.Bid >= *limit {
			canFill = true
			execPrice = maxF(*limit, snap.Bid)
		}
	}
	if !canFill {
		return nil
	}

	qty := s.fillQuantity(order, s.cfg.PartialFillProbability*0.5, 0.6, 0.95)
	if qty <= 0 {
		return nil
	}
	return []domain.Fill{s.makeFill(order, qty, execPrice, s.cfg.MakerFee, true, execTs)}
}

func (s *Simulator) processStop(order *domain.Order, snap domain.MarketSnapshot, execTs int64) []domain.Fill {
	stop := order.Signal.StopPrice
	if stop == nil {
		return nil
	}

	var triggered bool
	if order.Signal.Side == domain.SideBuy {
		triggered = snap.Close >= *stop
	} else {
		triggered = snap.Close <= *stop
	}
	if !triggered {
		return nil
	}

	switch order.Signal.OrderType {
	case domain.OrderStopMarket:
		order.Signal.OrderType = domain.OrderMarket
		return s.processMarket(order, snap, execTs)
	case domain.OrderStopLimit:
		order.Signal.OrderType = domain.OrderLimit
		return s.processLimit(order, snap, execTs)
	}
	return nil
}

// drawSlippage samples a per-fill slippage factor uniformly within ±25% of
// the configured MarketOrderSlippage, per SPEC_FULL.md §4.3 ("slippage is
// drawn from a distribution centred on the configured market-slippage basis
// points, uniform ±25% around the mean").
func (s *Simulator) drawSlippage() float64 {
	return s.cfg.MarketOrderSlippage * (0.75 + 0.5*s.rng.Float64())
}

// fillQuantity decides full vs. partial fill against order.RemainingQuantity,
// per the teacher's random.random() < probability gate, excluded for FOK
// orders since a partial fill would immediately be undone anyway.
func (s *Simulator) fillQuantity(order *domain.Order, probability, lo, hi float64) float64 {
	remaining := order.RemainingQuantity
	if remaining <= 0 {
		return 0
	}
	if order.Signal.TimeInForce != domain.TIFFillOrKill && s.rng.Float64() < probability {
		ratio := lo + s.rng.Float64()*(hi-lo)
		return remaining * ratio
	}
	return remaining
}

func (s *Simulator) makeFill(order *domain.Order, qty, price, feeRate float64, isMaker bool, execTs int64) domain.Fill {
	s.nextID++
	fee := qty * price * feeRate
	return domain.Fill{
		FillID:      fmt.Sprintf("fill_%s_%d", order.OrderID, s.nextID),
		OrderID:     order.OrderID,
		Symbol:      order.Signal.Symbol,
		Side:        order.Signal.Side,
		Quantity:    qty,
		Price:       price,
		TimestampMs: execTs,
		Fee:         fee,
		IsMaker:     isMaker,
	}
}

// updateOrderStatus applies the fills to order (via Order.AddFill) and then
// enforces TIF semantics: IOC forces remaining to zero after any partial
// fill; FOK undoes every fill generated by this call if the order did not
// fill in full, per SPEC_FULL.md §4.3 / fill_simulator.py's
// _update_order_status.
func (s *Simulator) updateOrderStatus(order *domain.Order, fills []domain.Fill) {
	for _, f := range fills {
		order.AddFill(f, millisToTime(f.TimestampMs))
	}

	switch order.Signal.TimeInForce {
	case domain.TIFImmediateOrCancel:
		if order.Status == domain.OrderStatusPartiallyFilled {
			order.RemainingQuantity = 0
		}
	case domain.TIFFillOrKill:
		if order.FilledQuantity < order.Signal.Quantity {
			order.UndoFillsFromThisCall(len(fills))
			order.Status = domain.OrderStatusCancelled
		}
	}
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
