package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptobot/internal/botmanager"
	"cryptobot/internal/config"
	"cryptobot/internal/execution"
	"cryptobot/internal/fillsim"
	"cryptobot/internal/httpapi"
	"cryptobot/internal/marketdata"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/risk"
	"cryptobot/internal/runner"
	"cryptobot/internal/sizing"
	"cryptobot/internal/strategy"
	"cryptobot/libs/observability"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

func main() {
	configFlag := flag.String("config", "", "path to a JSON overrides file (optional, env vars take precedence)")
	flag.Parse()

	ctx := observability.WithRunInfo(context.Background(), observability.RunInfo{TaskID: "trader-main"})

	cfg := config.Load()
	if *configFlag != "" {
		overrides, err := config.LoadFileOverrides(*configFlag)
		if err != nil {
			log.Fatalf("failed to load config file %s: %v", *configFlag, err)
		}
		cfg = overrides.Apply(cfg)
	}

	observability.LogEvent(ctx, "info", "trader_starting", map[string]any{"version": version, "build_time": buildTime})
	observability.LogEvent(ctx, "info", "http_addr_configured", map[string]any{"addr": cfg.HTTPAddr})

	registry := strategy.NewRegistry()
	if err := registry.Register(strategy.NewSMACrossover()); err != nil {
		log.Fatalf("register sma_crossover strategy: %v", err)
	}
	if err := registry.Register(strategy.NewRSIMeanReversion()); err != nil {
		log.Fatalf("register rsi_meanreversion strategy: %v", err)
	}
	observability.LogEvent(ctx, "info", "strategies_registered", map[string]any{"count": len(registry.List()), "strategies": registry.List()})

	manager := botmanager.New()

	var store httpapi.BotStore
	if cfg.PostgresDSN != "" {
		openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgStore, err := config.Open(openCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			observability.LogEvent(ctx, "warn", "bot_persistence_disabled", map[string]any{"error": err})
		} else {
			defer pgStore.Close()
			store = pgStore
		}
	} else {
		observability.LogEvent(ctx, "warn", "postgres_dsn_unset", map[string]any{"detail": "bot configs will not survive a restart"})
	}

	metricsRegistry := observability.NewRegistry()
	tradingMetrics := observability.NewTradingMetrics(metricsRegistry)

	factory := newBotFactory(manager, registry, cfg, tradingMetrics)
	server := httpapi.NewServer(manager, factory, store)
	server.SetMetrics(metricsRegistry, tradingMetrics)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		observability.LogEvent(ctx, "info", "http_listening", map[string]any{"addr": cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	observability.LogEvent(ctx, "info", "shutdown_signal_received", map[string]any{"detail": "stopping every bot"})
	manager.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		observability.LogEvent(ctx, "error", "server_shutdown_error", map[string]any{"error": err})
	}

	observability.LogEvent(ctx, "info", "trader_stopped", nil)
}

// newBotFactory closes over the manager, strategy registry, and process
// config to satisfy httpapi.BotFactory without leaking construction details
// into the HTTP layer, per spec.md §6's "ignorant of strategy wiring" split.
func newBotFactory(manager *botmanager.Manager, registry *strategy.Registry, cfg config.AppConfig, metrics *observability.TradingMetrics) httpapi.BotFactory {
	return func(req httpapi.CreateBotRequest) error {
		strat, err := registry.Get(req.Strategy)
		if err != nil {
			return fmt.Errorf("unknown strategy %q: %w", req.Strategy, err)
		}

		feedMode := marketdata.ModeBacktest
		switch req.Mode {
		case "paper":
			feedMode = marketdata.ModePaper
		case "live":
			feedMode = marketdata.ModeLive
		}
		feedCfg := marketdata.DefaultConfig()
		feedCfg.Mode = feedMode
		if cfg.MarketDataBaseURL != "" {
			feedCfg.Live.BaseURL = cfg.MarketDataBaseURL
		}
		feed, err := marketdata.NewFeed(feedCfg)
		if err != nil {
			return fmt.Errorf("build market data feed: %w", err)
		}

		ledger := portfolio.New(req.ID, req.InitialBalance, portfolio.DefaultConfig())
		riskEngine := risk.NewEngine(risk.DefaultConfig())
		riskEngine.Reset(req.InitialBalance)
		sim := fillsim.New(fillsim.DefaultConfig(), 1)
		sim.SetMetrics(metrics)
		engine := execution.New(req.ID, ledger, riskEngine, sim)
		sizer := sizing.New(sizing.DefaultConfig())

		interval := cfg.DefaultInterval
		if iv, ok := req.Parameters["interval"].(string); ok && iv != "" {
			interval = iv
		}

		runnerCfg := runner.DefaultConfig(req.Symbol, interval)
		runnerCfg.Metrics = metrics
		r := runner.New(req.ID, strat, feed, engine, ledger, sizer, runnerCfg)
		return manager.Add(req.ID, r)
	}
}
