// Package paper implements the PaperBackend: a deterministic-enough
// simulated exchange.Adapter used for dry-run and paper-trading mode. It
// tracks a single simulated account (balance, margin used, one position per
// symbol) and fills market orders against the caller-supplied reference
// price with configurable latency, slippage, and taker fees.
//
// Grounded on
// other_examples/4bbcbecc_tuxi-crypto-algo-trader__internal-executor-simulator_executor.go.go's
// SimulatorExecutor: its balance/equity/marginUsed bookkeeping, fee-on-fill
// deduction, and calculateLiquidationPrice/calculateClosedPnL shape are
// carried over directly, converted from float64 to decimal.Decimal at every
// monetary boundary except the simulated latency/slippage magnitude itself
// (see internal/money's package doc for why that one exception stands).
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/bitunix-bot/coretrader/internal/errs"
	"github.com/bitunix-bot/coretrader/internal/exchange"
	"github.com/bitunix-bot/coretrader/internal/money"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config configures the simulated fill model.
type Config struct {
	FeeRate        decimal.Decimal // taker fee, fraction of notional, e.g. 0.0005
	SlippagePct    decimal.Decimal // max adverse slippage fraction applied to fills
	MinLatencyMS   int
	MaxLatencyMS   int
}

type simPosition struct {
	symbol   string
	side     exchange.Side
	quantity decimal.Decimal
	avgPrice decimal.Decimal
	leverage int64
	margin   decimal.Decimal
}

// Backend is the PaperBackend.
type Backend struct {
	mu sync.Mutex

	cfg     Config
	balance decimal.Decimal
	equity  decimal.Decimal

	positions map[string]*simPosition
	leverage  map[string]int64
	rng       *rand.Rand
}

// New constructs a Backend with the given starting balance.
func New(startingBalance decimal.Decimal, cfg Config) *Backend {
	return &Backend{
		cfg:       cfg,
		balance:   startingBalance,
		equity:    startingBalance,
		positions: make(map[string]*simPosition),
		leverage:  make(map[string]int64),
		rng:       rand.New(rand.NewSource(1)),
	}
}

// simulatedLatency blocks for a random duration between MinLatencyMS and
// MaxLatencyMS, modeling network/exchange-processing delay. The magnitude
// itself is the one sanctioned float64 use in this codebase (see
// internal/money's doc comment).
func (b *Backend) simulatedLatency() {
	if b.cfg.MaxLatencyMS <= 0 {
		return
	}
	spread := b.cfg.MaxLatencyMS - b.cfg.MinLatencyMS
	ms := b.cfg.MinLatencyMS
	if spread > 0 {
		ms += b.rng.Intn(spread)
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// fillPrice applies adverse slippage to the reference price: a buy fills
// higher, a sell fills lower, by a random fraction of SlippagePct.
func (b *Backend) fillPrice(reference decimal.Decimal, side exchange.Side) decimal.Decimal {
	if b.cfg.SlippagePct.IsZero() || reference.IsZero() {
		return reference
	}
	slip := b.cfg.SlippagePct.Mul(decimal.NewFromFloat(b.rng.Float64()))
	if side == exchange.SideBuy {
		return money.Round8(reference.Mul(decimal.NewFromInt(1).Add(slip)))
	}
	return money.Round8(reference.Mul(decimal.NewFromInt(1).Sub(slip)))
}

// PlaceOrder simulates an order fill. Opening orders require sufficient
// available margin; closing orders release margin and realize P&L.
func (b *Backend) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if err := exchange.ValidateSymbol(req.Symbol); err != nil {
		return exchange.OrderResult{}, err
	}

	b.simulatedLatency()

	b.mu.Lock()
	defer b.mu.Unlock()

	fill := b.fillPrice(req.Price, req.Side)
	if fill.IsZero() {
		return exchange.OrderResult{}, errs.Validation("paper backend: order has no reference price to fill against")
	}

	if req.TradeSide == exchange.TradeSideOpen {
		return b.openLocked(req, fill)
	}
	return b.closeLocked(req, fill)
}

func (b *Backend) openLocked(req exchange.OrderRequest, fill decimal.Decimal) (exchange.OrderResult, error) {
	leverage := b.leverage[req.Symbol]
	if leverage <= 0 {
		leverage = 1
	}
	notional := money.PositionValue(req.Quantity, fill)
	requiredMargin := notional.Div(decimal.NewFromInt(maxInt64(leverage, 1)))
	fee := notional.Mul(b.cfg.FeeRate)

	if b.balance.LessThan(requiredMargin.Add(fee)) {
		return exchange.OrderResult{}, errs.Validation(fmt.Sprintf("paper backend: insufficient balance, need %s have %s", requiredMargin.Add(fee), b.balance))
	}

	b.balance = money.Round8(b.balance.Sub(requiredMargin).Sub(fee))
	if pos, ok := b.positions[req.Symbol]; ok && pos.side == req.Side {
		// Adding to an open position: weighted-average entry, margins summed.
		newQty := pos.quantity.Add(req.Quantity)
		pos.avgPrice = money.Round8(pos.avgPrice.Mul(pos.quantity).Add(fill.Mul(req.Quantity)).Div(newQty))
		pos.quantity = newQty
		pos.margin = pos.margin.Add(requiredMargin)
	} else {
		b.positions[req.Symbol] = &simPosition{
			symbol: req.Symbol, side: req.Side, quantity: req.Quantity,
			avgPrice: fill, leverage: leverage, margin: requiredMargin,
		}
	}
	b.recomputeEquity(req.Symbol, fill)

	log.Info().Str("symbol", req.Symbol).Str("side", string(req.Side)).
		Str("fill_price", fill.String()).Str("fee", fee.String()).
		Msg("paper backend filled opening order")

	return exchange.OrderResult{ExchangeOrderID: simOrderID(), FilledPrice: fill, FilledQuantity: req.Quantity}, nil
}

func (b *Backend) closeLocked(req exchange.OrderRequest, fill decimal.Decimal) (exchange.OrderResult, error) {
	pos, ok := b.positions[req.Symbol]
	if !ok {
		return exchange.OrderResult{}, errs.NotFound(fmt.Sprintf("paper backend: no open position for %s", req.Symbol))
	}

	pnl := money.PnL(pos.side == exchange.SideBuy, pos.avgPrice, fill, pos.quantity, pos.leverage)
	notional := money.PositionValue(pos.quantity, fill)
	fee := notional.Mul(b.cfg.FeeRate)

	b.balance = money.Round8(b.balance.Add(pos.margin).Add(pnl).Sub(fee))
	delete(b.positions, req.Symbol)
	b.equity = b.balance

	log.Info().Str("symbol", req.Symbol).Str("fill_price", fill.String()).
		Str("realized_pnl", pnl.String()).Str("new_balance", b.balance.String()).
		Msg("paper backend filled closing order")

	return exchange.OrderResult{ExchangeOrderID: simOrderID(), FilledPrice: fill, FilledQuantity: pos.quantity}, nil
}

func (b *Backend) recomputeEquity(symbol string, markPrice decimal.Decimal) {
	pos, ok := b.positions[symbol]
	if !ok {
		b.equity = b.balance
		return
	}
	pnl := money.PnL(pos.side == exchange.SideBuy, pos.avgPrice, markPrice, pos.quantity, pos.leverage)
	b.equity = money.Round8(b.balance.Add(pos.margin).Add(pnl))
}

// UpdateMarkPrice feeds a new reference price for a symbol's open position,
// used to keep equity/liquidation checks current between PlaceOrder calls
// since market data ingestion is external to this system.
func (b *Backend) UpdateMarkPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.positions[symbol]; ok {
		b.recomputeEquity(symbol, price)
	}
}

// LiquidationPrice computes the simplified liquidation price for symbol's
// open position: entry adjusted by 1/leverage in the adverse direction,
// ignoring maintenance margin and insurance-fund mechanics.
func (b *Backend) LiquidationPrice(symbol string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[symbol]
	if !ok || pos.leverage <= 0 {
		return decimal.Zero
	}
	marginRatio := decimal.NewFromInt(1).Div(decimal.NewFromInt(pos.leverage))
	if pos.side == exchange.SideBuy {
		return money.Round8(pos.avgPrice.Mul(decimal.NewFromInt(1).Sub(marginRatio)))
	}
	return money.Round8(pos.avgPrice.Mul(decimal.NewFromInt(1).Add(marginRatio)))
}

func (b *Backend) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	// Paper orders fill synchronously in PlaceOrder; nothing pending to cancel.
	return nil
}

func (b *Backend) GetPosition(ctx context.Context, symbol string) (exchange.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[symbol]
	if !ok {
		return exchange.Position{Symbol: symbol}, nil
	}
	return exchange.Position{
		Symbol: symbol, Side: pos.side, Quantity: pos.quantity,
		EntryPrice: pos.avgPrice, MarkPrice: pos.avgPrice, Leverage: pos.leverage,
	}, nil
}

func (b *Backend) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.equity, nil
}

func (b *Backend) SetLeverage(ctx context.Context, symbol string, leverage int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leverage[symbol] = leverage
	if pos, ok := b.positions[symbol]; ok {
		pos.leverage = leverage
	}
	return nil
}

func (b *Backend) Close() error { return nil }

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

var orderSeq int64

func simOrderID() string {
	orderSeq++
	return fmt.Sprintf("paper-%d", orderSeq)
}
