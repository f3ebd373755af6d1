// Package httpapi is the control surface of spec.md §6: a thin net/http
// server exposing bot lifecycle, status, trades, risk, and global metrics
// endpoints over the bot manager, grounded on internal/infra/http's
// mux-per-Server, handler-per-resource pattern (CORS, rate limiting, and
// bearer-token JWT auth wired the same way server.go wires them there).
package httpapi

import (
	"context"
	"net/http"
	"sync"

	"cryptobot/internal/botmanager"
	"cryptobot/libs/auth"
	"cryptobot/libs/middleware"
	"cryptobot/libs/observability"
)

// BotFactory builds a ready-to-run bot (wired runner, registered with the
// manager) from a creation request. Injected by cmd/trader so this package
// stays ignorant of how strategies, feeds, and ledgers are constructed.
type BotFactory func(req CreateBotRequest) error

// Server is the HTTP control surface. Not safe to register routes on
// concurrently with serving; build it fully, then call Handler once.
type Server struct {
	mux         *http.ServeMux
	manager     *botmanager.Manager
	store       BotStore
	factory     BotFactory
	jwtManager  *auth.JWTManager
	rateLimiter *middleware.RateLimiter
	corsConfig  middleware.CORSConfig
	registry    *observability.Registry
	metrics     *observability.TradingMetrics

	mu      sync.Mutex
	records map[string]BotRecord
	killed  map[string]bool
}

// NewServer wires a Server against an already-constructed bot manager, a
// BotFactory for handling POST /api/bots, and an optional BotStore for
// persisting created bot records (nil disables persistence; bots still run,
// but are lost on restart). When store is non-nil, every record it already
// holds is rebuilt through factory and indexed before NewServer returns;
// a record the factory refuses is logged and skipped. JWT auth is disabled
// with a warning if auth.NewJWTManagerFromEnv finds no JWT_SECRET,
// mirroring the teacher's development-mode fallback.
func NewServer(manager *botmanager.Manager, factory BotFactory, store BotStore) *Server {
	jwtManager, err := auth.NewJWTManagerFromEnv()
	if err != nil {
		observability.LogEvent(context.Background(), "warn", "jwt_auth_disabled", map[string]any{"error": err})
	}

	registry := observability.NewRegistry()

	s := &Server{
		mux:         http.NewServeMux(),
		manager:     manager,
		store:       store,
		factory:     factory,
		jwtManager:  jwtManager,
		rateLimiter: middleware.NewRateLimiterFromEnv(),
		corsConfig:  middleware.CORSConfigFromEnv(),
		registry:    registry,
		metrics:     observability.NewTradingMetrics(registry),
		records:     make(map[string]BotRecord),
		killed:      make(map[string]bool),
	}
	s.registerRoutes()
	if store != nil {
		recs, err := store.ListBots(context.Background())
		if err != nil {
			observability.LogEvent(context.Background(), "warn", "bot_restore_failed", map[string]any{"error": err})
		}
		for _, rec := range recs {
			req := CreateBotRequest{ID: rec.ID, Strategy: rec.StrategyID, Symbol: rec.Symbol, Mode: rec.Mode, InitialBalance: rec.InitialBalance, Parameters: rec.Parameters}
			if err := factory(req); err != nil {
				observability.LogEvent(context.Background(), "warn", "bot_restore_failed", map[string]any{"bot_id": rec.ID, "error": err})
				continue
			}
			s.recordBot(rec)
		}
	}
	return s
}

// Metrics returns the Server's TradingMetrics instance so cmd/trader can wire
// the same counters/gauges into every bot's runner.Config, keeping signal and
// kill-switch counts on the same registry the /metrics endpoint serves.
func (s *Server) Metrics() *observability.TradingMetrics { return s.metrics }

// SetMetrics replaces the Server's registry/metrics pair with one shared
// across every bot's runner.Config and fillsim.Simulator, so /metrics
// reports signal, kill-switch, and slippage counters alongside the
// equity/position gauges this package owns. Call before Handler serves any
// request; the default registry created by NewServer is discarded.
func (s *Server) SetMetrics(registry *observability.Registry, metrics *observability.TradingMetrics) {
	s.registry = registry
	s.metrics = metrics
}

// Handler returns the fully wrapped HTTP handler: CORS outermost, then rate
// limiting, then flow-ID correlation, then routing. Route-level auth is applied
// per-handler via protect. FlowID attaches the correlation id every
// downstream observability.LogEvent call picks up automatically.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = middleware.FlowID(h)
	h = s.rateLimiter.Middleware(h)
	h = middleware.CORS(s.corsConfig)(h)
	return h
}

// protect wraps a handler with JWT bearer-token auth. If JWT is not
// configured, requests are allowed through unauthenticated (development
// mode), matching the teacher's protect().
func (s *Server) protect(handler http.HandlerFunc) http.HandlerFunc {
	if s.jwtManager == nil {
		return handler
	}
	return s.jwtManager.MiddlewareFunc(handler)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/metrics", s.handlePrometheusMetrics)

	s.mux.HandleFunc("/api/bots", s.handleBotsCollection)
	s.mux.HandleFunc("/api/bots/", s.handleBotResource)
	s.mux.HandleFunc("/api/metrics/global", s.handleGlobalMetrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handlePrometheusMetrics serves every registered counter/gauge/histogram in
// Prometheus text exposition format, for scraping by an external collector.
func (s *Server) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.registry.WriteText(w)
}

// recordBot indexes rec for GET /api/bots, independent of whether
// persistence to s.store succeeds.
func (s *Server) recordBot(rec BotRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *Server) botRecord(id string) (BotRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *Server) markKilled(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killed[id] = true
}

func (s *Server) isKilled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed[id]
}
