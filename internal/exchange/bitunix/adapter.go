package bitunix

import (
	"context"
	"fmt"

	"github.com/bitunix-bot/coretrader/internal/exchange"

	"github.com/shopspring/decimal"
)

// Adapter wraps Client to implement exchange.Adapter, translating between
// the exchange-agnostic domain types and the Bitunix wire format.
type Adapter struct {
	client *Client
}

// NewAdapter wraps an existing REST client as an exchange.Adapter.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if err := exchange.ValidateSymbol(req.Symbol); err != nil {
		return exchange.OrderResult{}, err
	}

	orderID, err := a.client.placeOrder(OrderReq{
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		TradeSide:     string(req.TradeSide),
		Qty:           req.Quantity.String(),
		OrderType:     string(req.OrderType),
		StopPrice:     stopPriceString(req),
		ClientOrderID: req.ClientOrderID,
		ReduceOnly:    req.ReduceOnly,
	})
	if err != nil {
		return exchange.OrderResult{}, err
	}
	return exchange.OrderResult{ExchangeOrderID: orderID}, nil
}

func stopPriceString(req exchange.OrderRequest) string {
	if req.StopPrice.IsZero() {
		return ""
	}
	return req.StopPrice.String()
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return a.client.CancelOrder(ctx, symbol, exchangeOrderID)
}

func (a *Adapter) GetPosition(ctx context.Context, symbol string) (exchange.Position, error) {
	info, err := a.client.GetPosition(ctx, symbol)
	if err != nil {
		return exchange.Position{}, err
	}
	qty, err := decimal.NewFromString(zeroIfEmpty(info.Qty))
	if err != nil {
		return exchange.Position{}, fmt.Errorf("parse position qty: %w", err)
	}
	entry, _ := decimal.NewFromString(zeroIfEmpty(info.EntryPrice))
	mark, _ := decimal.NewFromString(zeroIfEmpty(info.MarkPrice))
	pnl, _ := decimal.NewFromString(zeroIfEmpty(info.UnrealizedPnL))

	side := exchange.SideBuy
	if info.Side == string(exchange.SideSell) {
		side = exchange.SideSell
	}

	return exchange.Position{
		Symbol:        info.Symbol,
		Side:          side,
		Quantity:      qty,
		EntryPrice:    entry,
		MarkPrice:     mark,
		UnrealizedPnL: pnl,
		Leverage:      int64(info.Leverage),
	}, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func (a *Adapter) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	raw, err := a.client.GetBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(zeroIfEmpty(raw))
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int64) error {
	return a.client.ChangeLeverage(symbol, int(leverage))
}

func (a *Adapter) Close() error {
	return a.client.Close()
}
