package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPnLLong(t *testing.T) {
	entry := decimal.NewFromFloat(50000)
	exit := decimal.NewFromFloat(51000)
	qty := decimal.NewFromFloat(0.1)

	got := PnLLong(entry, exit, qty, 10)
	assert.True(t, got.Equal(decimal.NewFromInt(1000)), "got %s", got)
}

func TestPnLShort(t *testing.T) {
	entry := decimal.NewFromFloat(50000)
	exit := decimal.NewFromFloat(49000)
	qty := decimal.NewFromFloat(0.1)

	got := PnLShort(entry, exit, qty, 10)
	assert.True(t, got.Equal(decimal.NewFromInt(1000)), "got %s", got)
}

func TestPnLDispatch(t *testing.T) {
	entry := decimal.NewFromFloat(100)
	exit := decimal.NewFromFloat(110)
	qty := decimal.NewFromFloat(1)

	long := PnL(true, entry, exit, qty, 1)
	short := PnL(false, entry, exit, qty, 1)

	assert.True(t, long.GreaterThan(decimal.Zero))
	assert.True(t, short.LessThan(decimal.Zero))
}

func TestRound8BankersRounding(t *testing.T) {
	d := decimal.RequireFromString("0.000000015")
	got := Round8(d)
	assert.True(t, got.Equal(decimal.RequireFromString("0.00000002")), "got %s", got)
}

func TestRateConvert(t *testing.T) {
	rate := NewRate(1.10)
	usd := decimal.NewFromInt(100)
	chf := rate.Convert(usd)
	assert.True(t, chf.Equal(decimal.NewFromFloat(110)), "got %s", chf)
}

func TestPositionValue(t *testing.T) {
	qty := decimal.NewFromFloat(2)
	price := decimal.NewFromFloat(30000)
	assert.True(t, PositionValue(qty, price).Equal(decimal.NewFromInt(60000)))
}
