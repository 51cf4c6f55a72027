// Package exchange defines the ExchangeAdapter boundary: the seam between
// TradeExecutor/StopLossSupervisor/Reconciler and whatever actually fills
// orders, whether the live Bitunix REST client (internal/exchange/bitunix)
// or the deterministic simulator (internal/paper). Every concrete adapter
// implements Adapter; callers depend only on this interface. Grounded on the
// teacher's internal/exchange/bitunix.Client method set, generalized into an
// interface so TradeExecutor and StopLossSupervisor can be exercised against
// a fake in tests without touching the network.
package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitunix-bot/coretrader/internal/errs"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeSide distinguishes an opening order from one that closes/reduces an
// existing position, matching Bitunix's OPEN/CLOSE order field.
type TradeSide string

const (
	TradeSideOpen  TradeSide = "OPEN"
	TradeSideClose TradeSide = "CLOSE"
)

// OrderType is the order execution style.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeStop   OrderType = "STOP_LOSS"
)

// OrderRequest is an exchange-agnostic order instruction. Price is the
// caller's reference/last-known price for the symbol; live adapters ignore
// it (a real exchange fills market orders at its own price), but
// internal/paper uses it as the basis for simulated slippage.
type OrderRequest struct {
	Symbol        string
	Side          Side
	TradeSide     TradeSide
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	OrderType     OrderType
	StopPrice     decimal.Decimal
	ClientOrderID string
	ReduceOnly    bool
}

// OrderResult is the exchange's acknowledgement of a submitted order.
type OrderResult struct {
	ExchangeOrderID string
	FilledPrice     decimal.Decimal
	FilledQuantity  decimal.Decimal
}

// Position is the exchange's view of an open position for a symbol. A
// zero Quantity means no open position.
type Position struct {
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Leverage      int64
}

// ValidateSymbol rejects any symbol not in the BASE/QUOTE:SETTLE perpetual
// form (e.g. "BTC/USDT:USDT"), per spec.md §4.4/§6.2: a symbol lacking the
// settlement-currency suffix must never reach an adapter call.
func ValidateSymbol(symbol string) error {
	if !strings.Contains(symbol, ":") {
		return errs.Validation(fmt.Sprintf("INVALID_SYMBOL: %q is not in BASE/QUOTE:SETTLE form", symbol))
	}
	return nil
}

// Adapter is the ExchangeAdapter: the minimal surface TradeExecutor,
// StopLossSupervisor and Reconciler need from a trading venue.
type Adapter interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetPosition(ctx context.Context, symbol string) (Position, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	SetLeverage(ctx context.Context, symbol string, leverage int64) error
	Close() error
}
