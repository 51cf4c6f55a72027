package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type fakeExposure struct {
	total decimal.Decimal
	err   error
}

func (f fakeExposure) TotalExposureCHF(ctx context.Context) (decimal.Decimal, error) {
	return f.total, f.err
}

type fakeBreaker struct {
	allowed bool
}

func (f fakeBreaker) IsTradingAllowed() bool { return f.allowed }

func defaultLimits() Limits {
	return Limits{
		MaxPositionSize:      decimal.NewFromFloat(0.5),
		MaxPositionExposure:  decimal.NewFromFloat(0.5),
		MaxTotalExposure:     decimal.NewFromFloat(0.8),
		MaxPriceDistance:     decimal.NewFromFloat(0.02),
		MaxConsecutiveLosses: 3,
		PositionCooldown:     time.Minute,
		MaxLeverage:          20,
	}
}

func TestValidateApprovesWellFormedTrade(t *testing.T) {
	gate := New(defaultLimits(), fakeExposure{total: decimal.Zero}, fakeBreaker{allowed: true}, decimal.NewFromInt(1000))
	req := TradeRequest{
		Symbol: "BTC/USDT:USDT", Side: "long",
		Price: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(100),
		Quantity: decimal.NewFromFloat(1), Leverage: 5,
	}
	v := gate.Validate(context.Background(), req)
	assert.True(t, v.Approved, "%+v", v.RejectionReasons)
}

func TestValidateRejectsWhenCircuitBreakerHalted(t *testing.T) {
	gate := New(defaultLimits(), fakeExposure{total: decimal.Zero}, fakeBreaker{allowed: false}, decimal.NewFromInt(1000))
	req := TradeRequest{Symbol: "BTC/USDT:USDT", Side: "long", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromFloat(1), Leverage: 5}
	v := gate.Validate(context.Background(), req)
	assert.False(t, v.Approved)
	assert.Contains(t, v.RejectionReasons[0], "circuit_breaker_active")
}

func TestValidateRejectsExcessiveLeverage(t *testing.T) {
	gate := New(defaultLimits(), fakeExposure{total: decimal.Zero}, fakeBreaker{allowed: true}, decimal.NewFromInt(1000))
	req := TradeRequest{Symbol: "BTC/USDT:USDT", Side: "long", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromFloat(1), Leverage: 50}
	v := gate.Validate(context.Background(), req)
	assert.False(t, v.Approved)
}

func TestValidateAppliesPerSymbolLeverageBand(t *testing.T) {
	limits := defaultLimits()
	limits.MaxLeverage = 40
	limits.PerSymbolLeverage = map[string]int64{"ADA/USDT:USDT": 20, "BTC/USDT:USDT": 40}

	gate := New(limits, fakeExposure{total: decimal.Zero}, fakeBreaker{allowed: true}, decimal.NewFromInt(1000))
	req := TradeRequest{
		Symbol: "ADA/USDT:USDT", Side: "long",
		Price: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(100),
		Quantity: decimal.NewFromFloat(1), Leverage: 25,
	}
	v := gate.Validate(context.Background(), req)
	assert.False(t, v.Approved, "25x should exceed ADA's 20x band")

	req.Symbol = "BTC/USDT:USDT"
	v = gate.Validate(context.Background(), req)
	assert.True(t, v.Approved, "25x is within BTC's 40x band")
}

func TestValidateEnforcesMinimumLeverage(t *testing.T) {
	limits := defaultLimits()
	limits.MinLeverage = 5

	gate := New(limits, fakeExposure{total: decimal.Zero}, fakeBreaker{allowed: true}, decimal.NewFromInt(1000))
	req := TradeRequest{
		Symbol: "BTC/USDT:USDT", Side: "long",
		Price: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(100),
		Quantity: decimal.NewFromFloat(1), Leverage: 3,
	}
	v := gate.Validate(context.Background(), req)
	assert.False(t, v.Approved, "leverage below the 5x minimum must be rejected")
}

func TestValidateRejectsStalePriceDistance(t *testing.T) {
	gate := New(defaultLimits(), fakeExposure{total: decimal.Zero}, fakeBreaker{allowed: true}, decimal.NewFromInt(1000))
	req := TradeRequest{
		Symbol: "BTC/USDT:USDT", Side: "long",
		Price: decimal.NewFromInt(110), CurrentPrice: decimal.NewFromInt(100),
		Quantity: decimal.NewFromFloat(1), Leverage: 5,
	}
	v := gate.Validate(context.Background(), req)
	assert.False(t, v.Approved)
}

func TestValidateShrinksOversizedPosition(t *testing.T) {
	limits := defaultLimits()
	limits.MaxPositionExposure = decimal.NewFromFloat(0.1)
	gate := New(limits, fakeExposure{total: decimal.Zero}, fakeBreaker{allowed: true}, decimal.NewFromInt(1000))
	req := TradeRequest{
		Symbol: "BTC/USDT:USDT", Side: "long",
		Price: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(100),
		Quantity: decimal.NewFromFloat(5), Leverage: 5,
	}
	v := gate.Validate(context.Background(), req)
	assert.True(t, v.AdjustedQuantity.LessThan(req.Quantity))
}

func TestValidateRejectsWhenTotalExposureExceeded(t *testing.T) {
	gate := New(defaultLimits(), fakeExposure{total: decimal.NewFromInt(900)}, fakeBreaker{allowed: true}, decimal.NewFromInt(1000))
	req := TradeRequest{
		Symbol: "BTC/USDT:USDT", Side: "long",
		Price: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(100),
		Quantity: decimal.NewFromFloat(1), Leverage: 5,
	}
	v := gate.Validate(context.Background(), req)
	assert.False(t, v.Approved)
}

func TestValidateWarnsOnConsecutiveLossesButStillApproves(t *testing.T) {
	gate := New(defaultLimits(), fakeExposure{total: decimal.Zero}, fakeBreaker{allowed: true}, decimal.NewFromInt(1000))
	gate.RecordTradeOutcome("BTC/USDT:USDT", false, true)
	gate.RecordTradeOutcome("BTC/USDT:USDT", false, true)
	gate.RecordTradeOutcome("BTC/USDT:USDT", false, true)

	req := TradeRequest{
		Symbol: "BTC/USDT:USDT", Side: "long",
		Price: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(100),
		Quantity: decimal.NewFromFloat(1), Leverage: 5,
	}
	v := gate.Validate(context.Background(), req)
	assert.True(t, v.Approved)
	found := false
	for _, c := range v.Checks {
		if c.Name == "consecutive_losses_within_limit" {
			found = true
			assert.False(t, c.Passed)
			assert.Equal(t, SeverityWarning, c.Severity)
		}
	}
	assert.True(t, found)
}
