// Package money provides the fixed-precision decimal arithmetic used for all
// monetary and quantity values in the trading core. float64 is never used for
// balances, prices, quantities, or P&L; the one sanctioned exception is
// slippage/latency magnitude in the paper backend (see internal/paper).
package money

import (
	"github.com/shopspring/decimal"
)

// QuantityScale is the number of fractional digits retained for order
// quantities and prices before persistence.
const QuantityScale = 8

// Zero is the canonical zero value, exported so callers never need to spell
// decimal.NewFromInt(0) themselves.
var Zero = decimal.Zero

// Round8 rounds d to QuantityScale fractional digits using banker's rounding
// (round-half-to-even), matching the boundary the Python original applies at
// persistence time via Decimal.quantize.
func Round8(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(QuantityScale)
}

// Rate is a fixed currency conversion rate, e.g. CHF-per-USD. The system does
// not integrate a live FX feed (see DESIGN.md Open Question decisions); the
// rate is sourced once from configuration at startup.
type Rate struct {
	decimal.Decimal
}

// NewRate builds a Rate from a float config value (config files express the
// rate as a plain YAML/env float; everywhere else in the system it is a
// decimal.Decimal).
func NewRate(f float64) Rate {
	return Rate{decimal.NewFromFloat(f)}
}

// Convert applies the rate to amount, e.g. a USD P&L to CHF with a CHF-per-USD rate.
func (r Rate) Convert(amount decimal.Decimal) decimal.Decimal {
	return Round8(amount.Mul(r.Decimal))
}

// PositionValue computes quantity * price, the notional value of a position
// leg, rounded to QuantityScale.
func PositionValue(quantity, price decimal.Decimal) decimal.Decimal {
	return Round8(quantity.Mul(price))
}

// PnLLong computes unrealized/realized P&L for a long position:
// (exitPrice - entryPrice) * quantity * leverage.
func PnLLong(entryPrice, exitPrice, quantity decimal.Decimal, leverage int64) decimal.Decimal {
	diff := exitPrice.Sub(entryPrice)
	return Round8(diff.Mul(quantity).Mul(decimal.NewFromInt(leverage)))
}

// PnLShort computes unrealized/realized P&L for a short position:
// (entryPrice - exitPrice) * quantity * leverage.
func PnLShort(entryPrice, exitPrice, quantity decimal.Decimal, leverage int64) decimal.Decimal {
	diff := entryPrice.Sub(exitPrice)
	return Round8(diff.Mul(quantity).Mul(decimal.NewFromInt(leverage)))
}

// PnL dispatches to PnLLong or PnLShort based on side. long is true for a
// long/buy position, false for short/sell.
func PnL(long bool, entryPrice, exitPrice, quantity decimal.Decimal, leverage int64) decimal.Decimal {
	if long {
		return PnLLong(entryPrice, exitPrice, quantity, leverage)
	}
	return PnLShort(entryPrice, exitPrice, quantity, leverage)
}
