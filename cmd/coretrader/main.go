// Command coretrader is the trading core's process entrypoint: it loads
// configuration, wires every component (PositionEngine, RiskGate,
// CircuitBreaker, TradeExecutor, StopLossSupervisor, Reconciler, Scheduler)
// against either the live Bitunix adapter or the paper-trading simulator,
// serves Prometheus metrics, and runs until a shutdown signal arrives.
// Grounded on the teacher's cmd/bitrader/main.go: same
// cfg.Load/metrics-HTTP-server/context+WaitGroup/signal.Notify shutdown
// shape, retargeted from the WebSocket feature pipeline onto the trading
// cycle.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bitunix-bot/coretrader/internal/alert"
	"github.com/bitunix-bot/coretrader/internal/cfg"
	"github.com/bitunix-bot/coretrader/internal/exchange"
	"github.com/bitunix-bot/coretrader/internal/exchange/bitunix"
	"github.com/bitunix-bot/coretrader/internal/metrics"
	"github.com/bitunix-bot/coretrader/internal/money"
	"github.com/bitunix-bot/coretrader/internal/paper"
	"github.com/bitunix-bot/coretrader/internal/position"
	"github.com/bitunix-bot/coretrader/internal/reconcile"
	"github.com/bitunix-bot/coretrader/internal/risk"
	"github.com/bitunix-bot/coretrader/internal/riskbreaker"
	"github.com/bitunix-bot/coretrader/internal/scheduler"
	"github.com/bitunix-bot/coretrader/internal/store"
	"github.com/bitunix-bot/coretrader/internal/stoploss"
	"github.com/bitunix-bot/coretrader/internal/tradeexec"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	dataPath := c.DataPath
	if dataPath == "" {
		dataPath = "."
	}
	db, err := store.Open(dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("store initialization failed")
	}
	defer db.Close()

	adapter := newAdapter(c, m)
	defer adapter.Close()

	fxRate := money.NewRate(c.FXRateUSDCHF)
	engine := position.New(db, db, fxRate)

	alerts := alert.NewFanout()
	alerts.Register(alert.LogSink{})

	gate := risk.New(risk.Limits{
		MaxPositionSize:      decimal.NewFromFloat(c.MaxPositionSize),
		MaxPositionExposure:  decimal.NewFromFloat(c.MaxPositionExposure),
		MaxTotalExposure:     decimal.NewFromFloat(c.MaxTotalExposure),
		MaxPriceDistance:     decimal.NewFromFloat(c.MaxPriceDistance),
		MaxConsecutiveLosses: c.MaxConsecutiveLosses,
		MinLeverage:          c.MinLeverage,
		MaxLeverage:          int64(c.Leverage),
		PerSymbolLeverage:    c.PerSymbolLeverage,
	}, engine, nil, decimal.NewFromFloat(c.StartingBalanceCHF))

	executor := tradeexec.New(adapter, engine, gate, c.MaxOrderRetries, c.OrderStatusInterval)

	breaker, err := riskbreaker.New(
		decimal.NewFromFloat(c.StartingBalanceCHF),
		decimal.NewFromFloat(c.MaxDailyLossCHF),
		decimal.NewFromFloat(c.MaxDailyLossPct),
		c.CircuitResetUTC,
		executor,
		alerts,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("circuit breaker initialization failed")
	}
	gate.SetBreakerSource(breaker)

	supervisor := stoploss.New(stoploss.Config{
		ExchangePct:    decimal.NewFromFloat(c.StopLossExchangePct),
		MonitorPct:     decimal.NewFromFloat(c.StopLossMonitorPct),
		MonitorPeriod:  c.StopLossMonitorPeriod,
		EmergencyPct:   decimal.NewFromFloat(c.StopLossEmergencyPct),
		EmergencyCheck: c.StopLossEmergencyCheck,
	}, engine, executor, adapter)

	reconciler := reconcile.New(engine, db, adapter, decimal.NewFromFloat(c.ReconcileThreshold))

	sched := scheduler.New(scheduler.Config{
		Executor:   executor,
		Positions:  engine,
		Gate:       gate,
		Breaker:    breaker,
		Supervisor: supervisor,
		Adapter:    adapter,
		Signals:    holdSignalSource{},
		Market:     adapterMarketData{adapter: adapter},
		Metrics:    mw,
		Alerts:     alerts,
		Symbols:    c.Symbols,
		FXRate:     fxRate,
		Limits: scheduler.Limits{
			MinConfidence:    decimal.NewFromFloat(0.6),
			MinStopLossPct:   decimal.NewFromFloat(0.01),
			MaxStopLossPct:   decimal.NewFromFloat(0.10),
			MaxOpenPositions: 6,
			DefaultLeverage:  int64(c.Leverage),
		},
		Interval:   c.CycleInterval,
		Align:      c.CycleAlignInterval,
		MaxRetries: c.CycleMaxRetries,
		RetryDelay: c.CycleRetryDelay,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", c.MetricsPort),
			Handler: mux,
		}
		go func() {
			<-ctx.Done()
			server.Shutdown(context.Background())
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.RunPeriodic(ctx, c.ReconcileInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		breaker.RunDailyResetScheduler(ctx)
	}()

	sched.Start()
	log.Info().Strs("symbols", c.Symbols).Bool("paper", c.PaperTrading).Msg("trading core started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context cancelled")
	}

	log.Info().Msg("shutting down gracefully...")
	sched.Stop(true)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}

// newAdapter selects the live Bitunix adapter or the paper-trading simulator
// depending on configuration, matching spec.md §4.8's "same interface,
// swappable backend" requirement.
func newAdapter(c cfg.Settings, m *metrics.Metrics) exchange.Adapter {
	if c.PaperTrading || c.DryRun {
		log.Info().Msg("using paper-trading simulator")
		return paper.New(decimal.NewFromFloat(c.StartingBalanceCHF), paper.Config{
			FeeRate:      decimal.NewFromFloat(c.PaperFeeRate),
			SlippagePct:  decimal.NewFromFloat(c.PaperSlippagePct),
			MinLatencyMS: c.PaperMinLatencyMS,
			MaxLatencyMS: c.PaperMaxLatencyMS,
		})
	}

	log.Info().Str("base_url", c.BaseURL).Msg("using live Bitunix adapter")
	client := bitunix.NewRESTWithOrderTrackingAndMetrics(
		c.Key, c.Secret, c.BaseURL, c.RESTTimeout,
		c.OrderExecutionTimeout, c.OrderStatusInterval, c.MaxOrderRetries,
		orderTrackerMetrics{m},
	)
	return bitunix.NewAdapter(client)
}

// orderTrackerMetrics adapts *metrics.Metrics to bitunix.MetricsInterface,
// the narrow method set internal/exchange/bitunix/order_tracker.go expects.
type orderTrackerMetrics struct {
	m *metrics.Metrics
}

func (o orderTrackerMetrics) OrderTimeoutsInc() { o.m.OrderTimeouts.Inc() }
func (o orderTrackerMetrics) OrderRetriesInc()  { o.m.OrderRetries.Inc() }
func (o orderTrackerMetrics) OrderExecutionDurationObserve(v float64) {
	o.m.OrderExecutionDuration.Observe(v)
}

// holdSignalSource is the default SignalSource: it always reports Hold for
// every symbol. The strategy/LLM layer that produces real Buy/Sell/Close
// signals is out of scope (spec.md Non-goals); this stub lets the Scheduler
// run standalone and is the seam a real deployment replaces by supplying its
// own scheduler.SignalSource to scheduler.Config.
type holdSignalSource struct{}

func (holdSignalSource) GetSignals(ctx context.Context, symbols []string) ([]scheduler.Signal, error) {
	signals := make([]scheduler.Signal, 0, len(symbols))
	for _, sym := range symbols {
		signals = append(signals, scheduler.Signal{Symbol: sym, Decision: scheduler.DecisionHold})
	}
	return signals, nil
}

// adapterMarketData implements scheduler.MarketDataProvider by reading the
// exchange adapter's own mark price, so the Scheduler can size orders
// without a separate market-data feed (also out of scope per spec.md).
type adapterMarketData struct {
	adapter exchange.Adapter
}

func (a adapterMarketData) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pos, err := a.adapter.GetPosition(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return pos.MarkPrice, nil
}
