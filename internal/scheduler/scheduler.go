// Package scheduler implements the Scheduler: the cycle body the ClockDriver
// drives once per tick. Each cycle refreshes the account balance and daily
// P&L, feeds the circuit breaker, pulls fresh signals, and for each one
// applies the checks a Signal's shape carries that risk.Gate structurally
// cannot (confidence, open-position count, stop-loss-pct range — risk.Gate's
// TradeRequest has no such fields), sizes the order from the signal's
// size_pct, and dispatches into the TradeExecutor/PositionEngine/
// StopLossSupervisor pipeline.
//
// Grounded on the teacher's cmd/bitrader/main.go top-level wiring (context +
// sync.WaitGroup + signal.Notify shutdown, one goroutine per background
// task) generalized from its WebSocket-message-driven loop to a
// ClockDriver-driven one, and on
// original_source/workspace/features/trading_loop/scheduler.py's on_cycle
// callback contract for the per-tick algorithm (§4.4 of spec.md).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bitunix-bot/coretrader/internal/alert"
	"github.com/bitunix-bot/coretrader/internal/clock"
	"github.com/bitunix-bot/coretrader/internal/errs"
	"github.com/bitunix-bot/coretrader/internal/exchange"
	"github.com/bitunix-bot/coretrader/internal/metrics"
	"github.com/bitunix-bot/coretrader/internal/money"
	"github.com/bitunix-bot/coretrader/internal/position"
	"github.com/bitunix-bot/coretrader/internal/riskbreaker"
	"github.com/bitunix-bot/coretrader/internal/risk"
	"github.com/bitunix-bot/coretrader/internal/stoploss"
	"github.com/bitunix-bot/coretrader/internal/tradeexec"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Decision is a Signal's instruction.
type Decision string

const (
	DecisionBuy  Decision = "buy"
	DecisionSell Decision = "sell"
	DecisionHold Decision = "hold"
	DecisionClose Decision = "close"
)

// Signal is a strategy's trade instruction for one symbol, the RiskGate's
// ultimate input before TradeExecutor sizing. Produced by an external
// SignalSource (a strategy engine, LLM, or rules system) — out of scope for
// this repo per spec.md's explicit Non-goals; internal/scheduler only
// consumes it.
type Signal struct {
	Symbol        string
	Decision      Decision
	Confidence    decimal.Decimal
	SizePct       decimal.Decimal
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	Leverage      int64
	Reasoning     string
}

// SignalSource supplies fresh signals once per cycle. Implemented externally
// (strategy/LLM layer); this repo ships no concrete implementation.
type SignalSource interface {
	GetSignals(ctx context.Context, symbols []string) ([]Signal, error)
}

// MarketDataProvider supplies the reference price a signal sizes against.
// Implemented externally (market-data ingestion layer); this repo ships no
// concrete implementation.
type MarketDataProvider interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Limits holds the scheduler-level pre-checks that operate on fields
// risk.TradeRequest has no room for.
type Limits struct {
	MinConfidence    decimal.Decimal
	MinStopLossPct   decimal.Decimal
	MaxStopLossPct   decimal.Decimal
	MaxOpenPositions int
	DefaultLeverage  int64
}

// Scheduler is the Scheduler (§4.9): it owns a ClockDriver and wires
// RiskGate, TradeExecutor, PositionEngine, and StopLossSupervisor into one
// cycle body.
type Scheduler struct {
	clock      *clock.Driver
	executor   *tradeexec.Executor
	positions  *position.Engine
	gate       *risk.Gate
	breaker    *riskbreaker.Breaker
	supervisor *stoploss.Supervisor
	adapter    exchange.Adapter
	signals    SignalSource
	market     MarketDataProvider
	metrics    metrics.Sink
	alerts     *alert.Fanout

	symbols []string
	fxRate  money.Rate
	limits  Limits
}

// Config bundles the collaborators and limits a Scheduler wires together.
type Config struct {
	Executor   *tradeexec.Executor
	Positions  *position.Engine
	Gate       *risk.Gate
	Breaker    *riskbreaker.Breaker
	Supervisor *stoploss.Supervisor
	Adapter    exchange.Adapter
	Signals    SignalSource
	Market     MarketDataProvider
	Metrics    metrics.Sink
	Alerts     *alert.Fanout
	Symbols    []string
	FXRate     money.Rate
	Limits     Limits

	Interval   time.Duration
	Align      bool
	MaxRetries int
	RetryDelay time.Duration
}

// New constructs a Scheduler and its ClockDriver, wired to call RunCycle once
// per tick.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		executor:   cfg.Executor,
		positions:  cfg.Positions,
		gate:       cfg.Gate,
		breaker:    cfg.Breaker,
		supervisor: cfg.Supervisor,
		adapter:    cfg.Adapter,
		signals:    cfg.Signals,
		market:     cfg.Market,
		metrics:    cfg.Metrics,
		alerts:     cfg.Alerts,
		symbols:    cfg.Symbols,
		fxRate:     cfg.FXRate,
		limits:     cfg.Limits,
	}
	s.clock = clock.New(cfg.Interval, cfg.Align, cfg.MaxRetries, cfg.RetryDelay, s.RunCycle)
	return s
}

// Start begins the trading cycle, delegating to the ClockDriver.
func (s *Scheduler) Start() { s.clock.Start() }

// Stop halts the trading cycle, delegating to the ClockDriver.
func (s *Scheduler) Stop(graceful bool) { s.clock.Stop(graceful) }

// Status returns the underlying ClockDriver's status.
func (s *Scheduler) Status() clock.Status { return s.clock.Status() }

// RunCycle is the ClockDriver's CycleFunc: one full trading tick.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	balanceCHF, err := s.adapter.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	s.gate.SetBalance(balanceCHF)

	dailyPnL, err := s.positions.DailyPnL(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("compute daily pnl: %w", err)
	}
	breakerStatus := s.breaker.CheckDailyLoss(ctx, dailyPnL)
	if s.metrics != nil {
		s.metrics.CircuitBreakerState().Set(breakerStateValue(breakerStatus.State))
		s.metrics.PnLTotal().Set(toFloat(dailyPnL))
	}

	if exposure, err := s.positions.TotalExposureCHF(ctx); err == nil && s.metrics != nil {
		s.metrics.ExposureTotal().Set(toFloat(exposure))
	}

	signals, err := s.signals.GetSignals(ctx, s.symbols)
	if err != nil {
		return fmt.Errorf("fetch signals: %w", err)
	}

	for _, sig := range signals {
		if err := s.processSignal(ctx, sig, balanceCHF); err != nil {
			log.Warn().Err(err).Str("symbol", sig.Symbol).Str("decision", string(sig.Decision)).
				Msg("signal processing failed, continuing to next symbol")
		}
	}
	return nil
}

// processSignal applies the scheduler-level pre-checks and dispatches on
// decision, matching spec.md §4.4's algorithm.
func (s *Scheduler) processSignal(ctx context.Context, sig Signal, balanceCHF decimal.Decimal) error {
	switch sig.Decision {
	case DecisionHold, "":
		return nil
	case DecisionClose:
		return s.closeSignal(ctx, sig)
	case DecisionBuy, DecisionSell:
		return s.openSignal(ctx, sig, balanceCHF)
	default:
		return errs.Validation(fmt.Sprintf("unknown signal decision %q", sig.Decision))
	}
}

func (s *Scheduler) closeSignal(ctx context.Context, sig Signal) error {
	open, err := s.positions.ListOpen(ctx, sig.Symbol)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		log.Info().Str("symbol", sig.Symbol).Msg("close signal ignored, no open position")
		return nil
	}

	pos, err := s.executor.ClosePosition(ctx, open[0].ID, position.CloseReasonManual)
	if err != nil {
		return err
	}
	s.supervisor.UnregisterPosition(ctx, pos)
	s.gate.RecordTradeOutcome(sig.Symbol, pos.RealizedPnLCHF.GreaterThanOrEqual(decimal.Zero), true)
	if s.metrics != nil {
		s.metrics.OrdersTotal().Inc()
	}
	return nil
}

func (s *Scheduler) openSignal(ctx context.Context, sig Signal, balanceCHF decimal.Decimal) error {
	if sig.Confidence.LessThan(s.limits.MinConfidence) {
		s.rejectSignal(sig, fmt.Sprintf("confidence %s below minimum %s", sig.Confidence, s.limits.MinConfidence))
		return nil
	}

	open, err := s.positions.ListOpen(ctx, "")
	if err != nil {
		return err
	}
	if s.limits.MaxOpenPositions > 0 && len(open) >= s.limits.MaxOpenPositions {
		s.rejectSignal(sig, fmt.Sprintf("open position count %d at or above maximum %d", len(open), s.limits.MaxOpenPositions))
		return nil
	}

	if !sig.StopLossPct.IsZero() {
		if sig.StopLossPct.LessThan(s.limits.MinStopLossPct) || sig.StopLossPct.GreaterThan(s.limits.MaxStopLossPct) {
			s.rejectSignal(sig, fmt.Sprintf("stop_loss_pct %s outside [%s, %s]", sig.StopLossPct, s.limits.MinStopLossPct, s.limits.MaxStopLossPct))
			return nil
		}
	}

	price, err := s.market.GetPrice(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("fetch price for %s: %w", sig.Symbol, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return errs.Validation(fmt.Sprintf("invalid reference price for %s", sig.Symbol))
	}

	capitalUSD := balanceCHF.Div(s.fxRate.Decimal)
	notional := capitalUSD.Mul(sig.SizePct)
	quantity := money.Round8(notional.Div(price))
	if quantity.LessThanOrEqual(decimal.Zero) {
		return errs.Validation(fmt.Sprintf("computed non-positive quantity for %s", sig.Symbol))
	}

	side := position.SideLong
	if sig.Decision == DecisionSell {
		side = position.SideShort
	}

	leverage := sig.Leverage
	if leverage <= 0 {
		leverage = s.limits.DefaultLeverage
	}

	var stopLossPrice decimal.Decimal
	if !sig.StopLossPct.IsZero() {
		stopLossPrice = stopPriceFor(side, price, sig.StopLossPct)
	}
	var takeProfitPrice decimal.Decimal
	if !sig.TakeProfitPct.IsZero() {
		takeProfitPrice = takeProfitPriceFor(side, price, sig.TakeProfitPct)
	}

	pos, validation, err := s.executor.ExecuteSignal(ctx, tradeexec.Signal{
		Symbol:          sig.Symbol,
		Side:            side,
		Price:           price,
		Quantity:        quantity,
		Leverage:        leverage,
		StopLossPrice:   stopLossPrice,
		TakeProfitPrice: takeProfitPrice,
	})
	if err != nil {
		if errs.IsKind(err, errs.KindRiskRejected) {
			s.rejectSignal(sig, fmt.Sprintf("risk gate: %v", validation.RejectionReasons))
			return nil
		}
		return err
	}

	s.supervisor.RegisterPosition(ctx, pos)
	if s.metrics != nil {
		s.metrics.OrdersTotal().Inc()
	}
	log.Info().Str("symbol", sig.Symbol).Str("side", string(side)).Str("quantity", quantity.String()).
		Str("reasoning", sig.Reasoning).Msg("opened position from signal")
	return nil
}

func (s *Scheduler) rejectSignal(sig Signal, reason string) {
	if s.metrics != nil {
		s.metrics.RiskRejections().Inc()
	}
	log.Warn().Str("symbol", sig.Symbol).Str("decision", string(sig.Decision)).Str("reason", reason).
		Msg("signal rejected before reaching the risk gate")
}

func stopPriceFor(side position.Side, price, pct decimal.Decimal) decimal.Decimal {
	if side == position.SideLong {
		return money.Round8(price.Mul(decimal.NewFromInt(1).Sub(pct)))
	}
	return money.Round8(price.Mul(decimal.NewFromInt(1).Add(pct)))
}

func takeProfitPriceFor(side position.Side, price, pct decimal.Decimal) decimal.Decimal {
	if side == position.SideLong {
		return money.Round8(price.Mul(decimal.NewFromInt(1).Add(pct)))
	}
	return money.Round8(price.Mul(decimal.NewFromInt(1).Sub(pct)))
}

func breakerStateValue(state riskbreaker.State) float64 {
	switch state {
	case riskbreaker.StateActive:
		return 0
	case riskbreaker.StateTripped:
		return 1
	case riskbreaker.StateManualResetRequired:
		return 2
	default:
		return 0
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
