package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptobot/internal/domain"
	"cryptobot/libs/observability"
	"cryptobot/libs/resilience"
)

// LiveConfig configures a reconnecting WebSocket feed.
type LiveConfig struct {
	BaseURL           string        // e.g. wss://stream.exchange.local/ws
	RequestsPerMinute int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	HeartbeatInterval time.Duration
}

// DefaultLiveConfig matches the reference exchange stream budget.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		BaseURL:           "wss://stream.exchange.local/ws",
		RequestsPerMinute: 600,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		HeartbeatInterval: 15 * time.Second,
	}
}

// tickMessage is the wire shape of one inbound trade/kline tick.
type tickMessage struct {
	Symbol      string  `json:"symbol"`
	Interval    string  `json:"interval"`
	TimestampMs int64   `json:"timestamp_ms"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
}

// LiveFeed is a gorilla/websocket subscription that reconnects with
// exponential backoff wrapped in a libs/resilience.CircuitBreaker, restores
// every prior subscription before redelivering events, and emits lifecycle
// events on a side channel, per SPEC_FULL.md §4.6's "resubscribe-before-
// deliver" resolution of spec.md §9. Grounded on
// web3guy0-polybot/internal/binance/client.go's dial-read-reconnect loop,
// none of whose exchange-specific framing is reused — only its structure.
type LiveFeed struct {
	cfg LiveConfig
	cb  *resilience.CircuitBreaker

	mu      sync.Mutex
	subs    map[string][]chan domain.MarketSnapshot // "symbol|interval" -> subscriber channels
	running bool
	conn    *websocket.Conn
	closed  bool

	lifecycle chan LifecycleEvent
}

// NewLiveFeed builds a feed. Dialing happens lazily on the first Stream
// call.
func NewLiveFeed(cfg LiveConfig) *LiveFeed {
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	cbCfg := resilience.DefaultConfig("marketdata-live-feed")
	return &LiveFeed{
		cfg:       cfg,
		cb:        resilience.NewCircuitBreaker(cbCfg),
		subs:      make(map[string][]chan domain.MarketSnapshot),
		lifecycle: make(chan LifecycleEvent, 16),
	}
}

func (f *LiveFeed) Lifecycle() <-chan LifecycleEvent { return f.lifecycle }

// Close stops the feed's background connection loop and releases the
// socket, if any.
func (f *LiveFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}

// Stream registers a subscription and returns a channel fed by the shared
// background connection. Multiple Stream calls against the same LiveFeed
// share one socket; each (symbol, interval) key can have several
// subscribers, each with its own buffered output channel.
func (f *LiveFeed) Stream(ctx context.Context, symbol, interval string, startMs, endMs int64) (<-chan domain.MarketSnapshot, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}

	key := symbol + "|" + interval
	out := make(chan domain.MarketSnapshot, 256)
	f.subs[key] = append(f.subs[key], out)
	needsConnection := !f.running
	if needsConnection {
		f.running = true
	}
	f.mu.Unlock()

	if needsConnection {
		go f.run(ctx)
	}

	go func() {
		<-ctx.Done()
		f.removeSubscriber(key, out)
	}()

	return out, nil
}

// removeSubscriber detaches a cancelled Stream call's output channel.
func (f *LiveFeed) removeSubscriber(key string, out chan domain.MarketSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chans := f.subs[key]
	for i, c := range chans {
		if c == out {
			f.subs[key] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
}

// run owns the connection lifecycle: dial, resubscribe, read loop,
// reconnect with exponential backoff on failure, until ctx is cancelled or
// Close is called.
func (f *LiveFeed) run(ctx context.Context) {
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	backoff := f.cfg.InitialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return
		}
		f.mu.Unlock()

		conn, err := f.dial(ctx)
		if err != nil {
			f.emitLifecycle(ctx, StateError, err)
			f.emitLifecycle(ctx, StateReconnecting, nil)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, f.cfg.MaxBackoff)
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		backoff = f.cfg.InitialBackoff
		f.emitLifecycle(ctx, StateConnected, nil)

		if err := f.resubscribeAll(conn); err != nil {
			f.emitLifecycle(ctx, StateError, err)
			conn.Close()
			f.emitLifecycle(ctx, StateReconnecting, nil)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, f.cfg.MaxBackoff)
			continue
		}

		readErr := f.readLoop(ctx, conn)
		conn.Close()

		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return
		}

		f.emitLifecycle(ctx, StateDisconnected, readErr)
		f.emitLifecycle(ctx, StateReconnecting, nil)
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, f.cfg.MaxBackoff)
	}
}

func (f *LiveFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("marketdata: invalid live feed URL: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	result, err := f.cb.ExecuteWithContext(ctx, func() (any, error) {
		conn, _, err := dialer.DialContext(ctx, u.String(), nil)
		return conn, err
	})
	if err != nil {
		return nil, err
	}
	return result.(*websocket.Conn), nil
}

// resubscribeAll restores every subscription registered before this
// connection attempt, so a reconnect never silently drops a symbol the
// caller is still waiting on, per spec.md §4.6's reconnect contract.
func (f *LiveFeed) resubscribeAll(conn *websocket.Conn) error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.subs))
	for k := range f.subs {
		keys = append(keys, k)
	}
	f.mu.Unlock()

	for _, key := range keys {
		msg := map[string]any{"op": "subscribe", "channel": key}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("resubscribe %s: %w", key, err)
		}
	}
	return nil
}

func (f *LiveFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var tick tickMessage
		if err := json.Unmarshal(raw, &tick); err != nil {
			observability.LogEvent(ctx, "error", "live_feed_malformed_message", map[string]any{"error": err})
			continue
		}

		candle := domain.Candle{
			TimestampMs: tick.TimestampMs,
			Symbol:      tick.Symbol,
			Interval:    tick.Interval,
			Open:        tick.Open,
			High:        tick.High,
			Low:         tick.Low,
			Close:       tick.Close,
			Volume:      tick.Volume,
		}
		snap := domain.NewMarketSnapshot(candle, tick.Bid, tick.Ask)
		f.deliver(snap)
	}
}

// deliver fans a tick out to every subscriber channel registered for its
// (symbol, interval) key. A subscriber whose buffer is full has its oldest
// slot dropped rather than blocking the read loop, per spec.md §5's
// bounded-queue backpressure rule for push feeds.
func (f *LiveFeed) deliver(snap domain.MarketSnapshot) {
	key := snap.Symbol + "|" + snap.Interval
	f.mu.Lock()
	chans := append([]chan domain.MarketSnapshot(nil), f.subs[key]...)
	f.mu.Unlock()

	for _, c := range chans {
		select {
		case c <- snap:
		default:
			select {
			case <-c:
			default:
			}
			select {
			case c <- snap:
			default:
			}
		}
	}
}

func (f *LiveFeed) emitLifecycle(ctx context.Context, state ConnectionState, err error) {
	select {
	case f.lifecycle <- LifecycleEvent{State: state, Err: err}:
	default:
		observability.LogEvent(ctx, "warn", "lifecycle_channel_full", map[string]any{"state": state})
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := time.Duration(math.Min(float64(current)*2, float64(max)))
	if next <= 0 {
		next = max
	}
	return next
}
