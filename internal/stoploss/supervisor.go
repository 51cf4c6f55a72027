// Package stoploss implements the StopLossSupervisor: three independent,
// concurrently running protection layers over every open position. Layer 1
// places a server-side stop order on the exchange at position-open time, so
// protection survives even if this process is down. Layer 2 is a local
// monitor that polls mark prices on a slower interval and force-closes a
// position if it has drifted past a softer threshold, catching cases where
// the exchange-side order was rejected or never filled. Layer 3 is a
// faster emergency sweep with a wider threshold that force-closes regardless of the other
// two layers' state, the last line of defense against a runaway loss.
//
// Grounded on
// other_examples/2bc2fda3_littleSan-crypto-trading-bot__internal-executors-stoploss_manager.go.go's
// StopLossManager: its split between exchange-side STOP_MARKET orders and a
// local MonitorPositions polling loop is the direct model for Layers 1/2;
// Layer 3 generalizes the same polling shape to a tighter period and a wider
// trigger distance.
package stoploss

import (
	"context"
	"sync"
	"time"

	"github.com/bitunix-bot/coretrader/internal/exchange"
	"github.com/bitunix-bot/coretrader/internal/position"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Closer closes a position; implemented by internal/tradeexec.Executor.
type Closer interface {
	ClosePosition(ctx context.Context, id uuid.UUID, reason position.CloseReason) (position.Position, error)
}

// PositionSource lists open positions; implemented by internal/position.Engine.
type PositionSource interface {
	ListOpen(ctx context.Context, symbol string) ([]position.Position, error)
}

// Config holds the three layers' thresholds and polling periods, sourced
// from cfg.Settings.
type Config struct {
	ExchangePct    decimal.Decimal // Layer 1: exchange-side stop distance from entry
	MonitorPct     decimal.Decimal // Layer 2: local monitor trigger distance from entry
	MonitorPeriod  time.Duration
	EmergencyPct   decimal.Decimal // Layer 3: emergency trigger distance from entry
	EmergencyCheck time.Duration
}

// Supervisor is the StopLossSupervisor.
type Supervisor struct {
	cfg       Config
	positions PositionSource
	closer    Closer
	adapter   exchange.Adapter

	mu             sync.Mutex
	exchangeOrders map[uuid.UUID]string // position ID -> exchange stop order ID

	wg sync.WaitGroup
}

// New constructs a Supervisor.
func New(cfg Config, positions PositionSource, closer Closer, adapter exchange.Adapter) *Supervisor {
	return &Supervisor{
		cfg:            cfg,
		positions:      positions,
		closer:         closer,
		adapter:        adapter,
		exchangeOrders: make(map[uuid.UUID]string),
	}
}

// RegisterPosition places the Layer 1 exchange-side stop order for a newly
// opened position. Failure is logged, not fatal: Layers 2 and 3 still
// protect the position locally.
func (s *Supervisor) RegisterPosition(ctx context.Context, p position.Position) {
	stopPrice := stopPriceFor(p, s.cfg.ExchangePct)

	result, err := s.adapter.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:     p.Symbol,
		Side:       oppositeSide(p.Side),
		TradeSide:  exchange.TradeSideClose,
		Quantity:   p.Quantity,
		OrderType:  exchange.OrderTypeStop,
		StopPrice:  stopPrice,
		ReduceOnly: true,
	})
	if err != nil {
		log.Warn().Err(err).Str("symbol", p.Symbol).Msg("failed to place exchange-side stop-loss order, relying on local monitor layers")
		return
	}

	s.mu.Lock()
	s.exchangeOrders[p.ID] = result.ExchangeOrderID
	s.mu.Unlock()
}

// UnregisterPosition cancels the Layer 1 order and forgets the position,
// called when a position closes through any path.
func (s *Supervisor) UnregisterPosition(ctx context.Context, p position.Position) {
	s.mu.Lock()
	orderID, ok := s.exchangeOrders[p.ID]
	delete(s.exchangeOrders, p.ID)
	s.mu.Unlock()

	if ok && orderID != "" {
		if err := s.adapter.CancelOrder(ctx, p.Symbol, orderID); err != nil {
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("failed to cancel exchange-side stop-loss order on close")
		}
	}
}

// Run starts Layers 2 and 3 as independent goroutines. Blocks until ctx is
// canceled, then waits for both to stop.
func (s *Supervisor) Run(ctx context.Context) {
	s.wg.Add(2)
	go s.runLayer(ctx, "monitor", s.cfg.MonitorPeriod, s.cfg.MonitorPct)
	go s.runLayer(ctx, "emergency", s.cfg.EmergencyCheck, s.cfg.EmergencyPct)
	s.wg.Wait()
}

func (s *Supervisor) runLayer(ctx context.Context, name string, period time.Duration, thresholdPct decimal.Decimal) {
	defer s.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, name, thresholdPct)
		}
	}
}

func (s *Supervisor) sweep(ctx context.Context, layerName string, thresholdPct decimal.Decimal) {
	open, err := s.positions.ListOpen(ctx, "")
	if err != nil {
		log.Error().Err(err).Str("layer", layerName).Msg("stop-loss sweep failed to list open positions")
		return
	}

	for _, p := range open {
		livePrice := s.livePriceFor(ctx, p)
		if livePrice.IsZero() {
			continue
		}
		if !triggered(p, livePrice, thresholdPct) {
			continue
		}
		log.Warn().
			Str("layer", layerName).
			Str("symbol", p.Symbol).
			Str("entry_price", p.EntryPrice.String()).
			Str("mark_price", livePrice.String()).
			Msg("stop-loss layer triggered, force-closing position")

		reason := position.CloseReasonStopLoss
		if layerName == "emergency" {
			reason = position.CloseReasonLiquidation
		}
		if _, err := s.closer.ClosePosition(ctx, p.ID, reason); err != nil {
			log.Error().Err(err).Str("layer", layerName).Str("symbol", p.Symbol).Msg("stop-loss force-close failed")
		}
	}
}

// livePriceFor fetches p's current mark price straight from the exchange
// adapter, per spec.md §4.5 step 2's "fetch current price". The only other
// refresh of a stored position's MarkPrice is the reconciler's, once per
// reconciliation interval and only for positions that agree with the
// exchange, so trusting p.MarkPrice here would leave Layers 2/3 evaluating a
// price up to a full reconciliation interval old. Falls back to the stored mark price if the live fetch
// fails, so a transient adapter error doesn't blind the sweep entirely.
func (s *Supervisor) livePriceFor(ctx context.Context, p position.Position) decimal.Decimal {
	live, err := s.adapter.GetPosition(ctx, p.Symbol)
	if err != nil || live.MarkPrice.IsZero() {
		if err != nil {
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("stop-loss sweep failed to fetch live price, falling back to stored mark price")
		}
		return p.MarkPrice
	}
	return live.MarkPrice
}

// triggered reports whether a move from entryPrice to livePrice has crossed
// thresholdPct (a positive fraction, e.g. 0.02 for 2%) against p's side.
func triggered(p position.Position, livePrice decimal.Decimal, thresholdPct decimal.Decimal) bool {
	if p.EntryPrice.IsZero() || thresholdPct.IsZero() {
		return false
	}
	move := livePrice.Sub(p.EntryPrice).Div(p.EntryPrice)
	if p.IsLong() {
		return move.LessThanOrEqual(thresholdPct.Neg())
	}
	return move.GreaterThanOrEqual(thresholdPct)
}

// stopPriceFor computes the absolute stop price for a position at pct
// distance from entry, in the adverse direction.
func stopPriceFor(p position.Position, pct decimal.Decimal) decimal.Decimal {
	if p.IsLong() {
		return p.EntryPrice.Mul(decimal.NewFromInt(1).Sub(pct))
	}
	return p.EntryPrice.Mul(decimal.NewFromInt(1).Add(pct))
}

func oppositeSide(s position.Side) exchange.Side {
	if s == position.SideLong {
		return exchange.SideSell
	}
	return exchange.SideBuy
}
