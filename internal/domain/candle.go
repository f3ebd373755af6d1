// Package domain holds the canonical, value-like trading records shared by
// every component of the bot framework: market data, signals, orders, fills,
// positions and portfolio state. Types here are produced and mutated only by
// the owning components named in SPEC_FULL.md §3; everything else treats
// them as immutable value types.
package domain

import "fmt"

// Candle is an aggregated OHLCV bar for one (Symbol, Interval) pair.
type Candle struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Symbol      string  `json:"symbol"`
	Interval    string  `json:"interval"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`

	QuoteVolume        *float64 `json:"quote_volume,omitempty"`
	TradeCount         *int64   `json:"trade_count,omitempty"`
	TakerBuyVolume      *float64 `json:"taker_buy_volume,omitempty"`
	TakerBuyQuoteVolume *float64 `json:"taker_buy_quote_volume,omitempty"`
}

// Validate enforces the OHLC ordering and positivity invariants of
// SPEC_FULL.md §3: low <= min(open, close) <= max(open, close) <= high,
// prices > 0, volume >= 0.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("domain: candle %s@%d has non-positive price", c.Symbol, c.TimestampMs)
	}
	if c.Volume < 0 {
		return fmt.Errorf("domain: candle %s@%d has negative volume", c.Symbol, c.TimestampMs)
	}
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	if c.Low > lo || hi > c.High {
		return fmt.Errorf("domain: candle %s@%d violates low<=min(o,c)<=max(o,c)<=high", c.Symbol, c.TimestampMs)
	}
	return nil
}

// MarketSnapshot extends a Candle with the best bid/ask seen at that bar.
// When the feed does not supply bid/ask, SynthesizeQuote fills them in
// symmetrically around Close using an implementation-wide spread fraction,
// because the fill simulator (internal/fillsim) always reads Bid/Ask.
type MarketSnapshot struct {
	Candle
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Spread float64 `json:"spread"`
}

// DefaultSpreadFraction is the reference synthesis spread: 0.1% of close,
// split evenly between bid and ask.
const DefaultSpreadFraction = 0.001

// SynthesizeQuote fills in Bid/Ask/Spread from Close when the feed did not
// supply real quote data. It is a no-op if Bid and Ask are already set.
func (m *MarketSnapshot) SynthesizeQuote() {
	if m.Bid > 0 && m.Ask > 0 {
		return
	}
	half := m.Close * DefaultSpreadFraction / 2
	m.Bid = m.Close - half
	m.Ask = m.Close + half
	m.Spread = m.Ask - m.Bid
}

// NewMarketSnapshot builds a snapshot from a candle, synthesizing bid/ask if
// the candle alone does not carry them.
func NewMarketSnapshot(c Candle, bid, ask float64) MarketSnapshot {
	snap := MarketSnapshot{Candle: c, Bid: bid, Ask: ask}
	snap.SynthesizeQuote()
	return snap
}
