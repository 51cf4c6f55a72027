package paper

import (
	"context"
	"testing"

	"github.com/bitunix-bot/coretrader/internal/exchange"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSlippageConfig() Config {
	return Config{FeeRate: decimal.NewFromFloat(0.0005), SlippagePct: decimal.Zero}
}

func TestPlaceOrderOpenAndCloseRealizesPnL(t *testing.T) {
	backend := New(decimal.NewFromInt(1000), noSlippageConfig())
	ctx := context.Background()

	require.NoError(t, backend.SetLeverage(ctx, "BTC/USDT:USDT", 10))

	_, err := backend.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideBuy, TradeSide: exchange.TradeSideOpen,
		Quantity: decimal.NewFromFloat(1), Price: decimal.NewFromInt(100), OrderType: exchange.OrderTypeMarket,
	})
	require.NoError(t, err)

	pos, err := backend.GetPosition(ctx, "BTC/USDT:USDT")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromFloat(1)))

	result, err := backend.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideSell, TradeSide: exchange.TradeSideClose,
		Quantity: decimal.NewFromFloat(1), Price: decimal.NewFromInt(110), OrderType: exchange.OrderTypeMarket, ReduceOnly: true,
	})
	require.NoError(t, err)
	assert.True(t, result.FilledPrice.Equal(decimal.NewFromInt(110)))

	afterClose, err := backend.GetPosition(ctx, "BTC/USDT:USDT")
	require.NoError(t, err)
	assert.True(t, afterClose.Quantity.IsZero())

	balance, err := backend.GetBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.GreaterThan(decimal.NewFromInt(1000)), "balance should have grown from the winning trade, got %s", balance)
}

func TestFlatRoundTripLeavesBalanceDownByFeesOnly(t *testing.T) {
	backend := New(decimal.NewFromInt(1000), noSlippageConfig())
	ctx := context.Background()

	require.NoError(t, backend.SetLeverage(ctx, "BTC/USDT:USDT", 10))

	_, err := backend.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideBuy, TradeSide: exchange.TradeSideOpen,
		Quantity: decimal.NewFromFloat(1), Price: decimal.NewFromInt(100), OrderType: exchange.OrderTypeMarket,
	})
	require.NoError(t, err)
	openFee := decimal.NewFromFloat(100).Mul(decimal.NewFromFloat(0.0005))

	_, err = backend.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideSell, TradeSide: exchange.TradeSideClose,
		Quantity: decimal.NewFromFloat(1), Price: decimal.NewFromInt(100), OrderType: exchange.OrderTypeMarket, ReduceOnly: true,
	})
	require.NoError(t, err)
	closeFee := decimal.NewFromFloat(100).Mul(decimal.NewFromFloat(0.0005))

	balance, err := backend.GetBalance(ctx)
	require.NoError(t, err)
	expected := decimal.NewFromInt(1000).Sub(openFee).Sub(closeFee)
	assert.True(t, balance.Equal(expected), "expected balance %s after fees-only round trip, got %s", expected, balance)
}

func TestPlaceOrderRejectsInsufficientMargin(t *testing.T) {
	backend := New(decimal.NewFromInt(10), noSlippageConfig())
	ctx := context.Background()

	_, err := backend.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideBuy, TradeSide: exchange.TradeSideOpen,
		Quantity: decimal.NewFromFloat(10), Price: decimal.NewFromInt(1000), OrderType: exchange.OrderTypeMarket,
	})
	assert.Error(t, err)
}

func TestPlaceOrderRejectsOrderWithNoReferencePrice(t *testing.T) {
	backend := New(decimal.NewFromInt(1000), noSlippageConfig())
	_, err := backend.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideBuy, TradeSide: exchange.TradeSideOpen,
		Quantity: decimal.NewFromFloat(1), OrderType: exchange.OrderTypeMarket,
	})
	assert.Error(t, err)
}

func TestCloseWithoutOpenPositionFails(t *testing.T) {
	backend := New(decimal.NewFromInt(1000), noSlippageConfig())
	_, err := backend.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideSell, TradeSide: exchange.TradeSideClose,
		Quantity: decimal.NewFromFloat(1), Price: decimal.NewFromInt(100), OrderType: exchange.OrderTypeMarket,
	})
	assert.Error(t, err)
}

func TestLiquidationPriceForLongIsBelowEntry(t *testing.T) {
	backend := New(decimal.NewFromInt(1000), noSlippageConfig())
	ctx := context.Background()
	require.NoError(t, backend.SetLeverage(ctx, "BTC/USDT:USDT", 10))
	_, err := backend.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideBuy, TradeSide: exchange.TradeSideOpen,
		Quantity: decimal.NewFromFloat(1), Price: decimal.NewFromInt(100), OrderType: exchange.OrderTypeMarket,
	})
	require.NoError(t, err)

	liq := backend.LiquidationPrice("BTC/USDT:USDT")
	assert.True(t, liq.LessThan(decimal.NewFromInt(100)))
	assert.True(t, liq.Equal(decimal.NewFromInt(90)))
}

func TestSlippagePushesFillAgainstTheTaker(t *testing.T) {
	backend := New(decimal.NewFromInt(10000), Config{FeeRate: decimal.Zero, SlippagePct: decimal.NewFromFloat(0.01)})
	ctx := context.Background()
	require.NoError(t, backend.SetLeverage(ctx, "BTC/USDT:USDT", 1))

	result, err := backend.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTC/USDT:USDT", Side: exchange.SideBuy, TradeSide: exchange.TradeSideOpen,
		Quantity: decimal.NewFromFloat(1), Price: decimal.NewFromInt(100), OrderType: exchange.OrderTypeMarket,
	})
	require.NoError(t, err)
	assert.True(t, result.FilledPrice.GreaterThanOrEqual(decimal.NewFromInt(100)))
}
