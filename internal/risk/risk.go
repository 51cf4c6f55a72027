// Package risk implements the RiskGate: the centralized pre-trade approval
// check matrix. Every signal the TradeExecutor considers passes through here
// first; RiskGate never panics or returns a Go error for a rejected trade,
// it returns a RiskValidation the caller inspects. Grounded directly on
// other_examples/07ff2077_web3guy0-polybot__risk-gate.go.go (RiskGate,
// TradeRequest, TradeApproval shape, env-configured limits).
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Severity classifies a failed check: Fatal rejects the trade outright,
// Warning is recorded but does not block approval on its own.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityWarning Severity = "warning"
)

// CheckResult is the outcome of a single risk check.
type CheckResult struct {
	Name     string
	Passed   bool
	Severity Severity
	Detail   string
}

// TradeRequest is what a caller asks the RiskGate to approve.
type TradeRequest struct {
	Symbol        string
	Side          string // "long" or "short"
	Price         decimal.Decimal
	CurrentPrice  decimal.Decimal // last known mark price, for slippage/distance checks
	Quantity      decimal.Decimal
	Leverage      int64
}

// Validation is the RiskGate's response: every check result plus the overall
// verdict and, when approved, a possibly size-adjusted quantity.
type Validation struct {
	Approved         bool
	Checks           []CheckResult
	RejectionReasons []string
	AdjustedQuantity decimal.Decimal
}

// ExposureSource supplies the current portfolio state the gate needs to
// evaluate exposure limits; implemented by internal/position.Engine.
type ExposureSource interface {
	TotalExposureCHF(ctx context.Context) (decimal.Decimal, error)
}

// BreakerSource reports whether system-wide trading is currently allowed;
// implemented by internal/riskbreaker.Breaker.
type BreakerSource interface {
	IsTradingAllowed() bool
}

// Limits is the RiskGate's configuration, sourced from cfg.Settings.
type Limits struct {
	MaxPositionSize      decimal.Decimal // fraction of balance, e.g. 0.01
	MaxPositionExposure  decimal.Decimal // fraction of balance per symbol
	MaxTotalExposure     decimal.Decimal // fraction of balance across symbols
	MaxPriceDistance     decimal.Decimal // max allowed fractional distance from current price
	MaxConsecutiveLosses int
	PositionCooldown     time.Duration
	MinLeverage          int64
	MaxLeverage          int64            // fallback band for symbols absent from PerSymbolLeverage
	PerSymbolLeverage    map[string]int64 // e.g. BTC/ETH 40x, SOL/BNB 25x, ADA/DOGE 20x
}

// maxLeverageFor returns the per-symbol leverage ceiling, falling back to
// the gate-wide MaxLeverage when the symbol has no override.
func (l Limits) maxLeverageFor(symbol string) int64 {
	if max, ok := l.PerSymbolLeverage[symbol]; ok {
		return max
	}
	return l.MaxLeverage
}

// Gate is the RiskGate.
type Gate struct {
	mu sync.RWMutex

	limits   Limits
	exposure ExposureSource
	breaker  BreakerSource
	balance  decimal.Decimal

	consecutiveLosses int
	assetLastExit     map[string]time.Time
}

// New constructs a RiskGate.
func New(limits Limits, exposure ExposureSource, breaker BreakerSource, startingBalance decimal.Decimal) *Gate {
	return &Gate{
		limits:        limits,
		exposure:      exposure,
		breaker:       breaker,
		balance:       startingBalance,
		assetLastExit: make(map[string]time.Time),
	}
}

// SetBreakerSource wires the BreakerSource after construction, for callers
// that must build the RiskGate before the CircuitBreaker exists (the
// CircuitBreaker itself depends on a PositionCloser that depends on the
// RiskGate).
func (g *Gate) SetBreakerSource(breaker BreakerSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.breaker = breaker
}

// SetBalance updates the account balance the gate sizes positions against.
func (g *Gate) SetBalance(balance decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balance = balance
}

// RecordTradeOutcome updates the consecutive-loss counter and, on exit,
// starts the per-symbol cooldown.
func (g *Gate) RecordTradeOutcome(symbol string, won bool, exited bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if won {
		g.consecutiveLosses = 0
	} else {
		g.consecutiveLosses++
	}
	if exited {
		g.assetLastExit[symbol] = time.Now().UTC()
	}
}

// Validate runs the full ordered check matrix and returns the verdict. It
// never returns a Go error; a rejected trade is expressed in the returned
// Validation.
func (g *Gate) Validate(ctx context.Context, req TradeRequest) Validation {
	g.mu.RLock()
	balance := g.balance
	limits := g.limits
	consecutiveLosses := g.consecutiveLosses
	lastExit, hasExited := g.assetLastExit[req.Symbol]
	g.mu.RUnlock()

	var checks []CheckResult
	fatal := func(name string, passed bool, detail string) {
		checks = append(checks, CheckResult{Name: name, Passed: passed, Severity: SeverityFatal, Detail: detail})
	}
	warn := func(name string, passed bool, detail string) {
		checks = append(checks, CheckResult{Name: name, Passed: passed, Severity: SeverityWarning, Detail: detail})
	}

	// 1. System circuit breaker must allow trading.
	allowed := g.breaker == nil || g.breaker.IsTradingAllowed()
	fatal("circuit_breaker_active", allowed, "daily-loss circuit breaker has halted trading")

	// 2. Symbol/side/leverage sanity.
	validInputs := req.Symbol != "" && (req.Side == "long" || req.Side == "short") &&
		req.Quantity.GreaterThan(decimal.Zero) && req.Price.GreaterThan(decimal.Zero)
	fatal("valid_trade_request", validInputs, "symbol, side, price and quantity must be set")

	maxLeverage := limits.maxLeverageFor(req.Symbol)
	minLeverage := limits.MinLeverage
	leverageOK := (maxLeverage <= 0 || req.Leverage <= maxLeverage) && (minLeverage <= 0 || req.Leverage >= minLeverage)
	fatal("leverage_within_limit", leverageOK, fmt.Sprintf("leverage %dx outside allowed range %d-%dx for %s", req.Leverage, minLeverage, maxLeverage, req.Symbol))

	// 3. Price distance: reject signals whose price has drifted too far from
	// the last known mark, a guard against stale or erroneous signals.
	priceDistanceOK := true
	if validInputs && !req.CurrentPrice.IsZero() && !limits.MaxPriceDistance.IsZero() {
		distance := req.Price.Sub(req.CurrentPrice).Abs().Div(req.CurrentPrice)
		priceDistanceOK = distance.LessThanOrEqual(limits.MaxPriceDistance)
	}
	fatal("price_distance_within_limit", priceDistanceOK, "signal price too far from current mark price")

	// 4. Position cooldown after a recent exit on the same symbol.
	cooldownOK := true
	if hasExited && limits.PositionCooldown > 0 {
		cooldownOK = time.Since(lastExit) >= limits.PositionCooldown
	}
	warn("position_cooldown_elapsed", cooldownOK, "symbol is within its post-exit cooldown window")

	// 5. Consecutive loss streak.
	consecLossesOK := limits.MaxConsecutiveLosses <= 0 || consecutiveLosses < limits.MaxConsecutiveLosses
	warn("consecutive_losses_within_limit", consecLossesOK, "too many consecutive losing trades")

	// 6/7. Position size and exposure caps (only meaningful with valid inputs).
	adjustedQty := req.Quantity
	sizeOK := true
	exposureOK := true
	if validInputs && balance.GreaterThan(decimal.Zero) {
		positionValue := req.Quantity.Mul(req.Price)
		maxPositionValue := balance.Mul(limits.MaxPositionExposure)
		if positionValue.GreaterThan(maxPositionValue) && maxPositionValue.GreaterThan(decimal.Zero) {
			adjustedQty = maxPositionValue.Div(req.Price)
		}

		maxSizeValue := balance.Mul(limits.MaxPositionSize)
		sizeOK = positionValue.LessThanOrEqual(maxSizeValue)

		if g.exposure != nil {
			currentExposure, err := g.exposure.TotalExposureCHF(ctx)
			if err == nil {
				maxTotal := balance.Mul(limits.MaxTotalExposure)
				projected := currentExposure.Add(adjustedQty.Mul(req.Price))
				exposureOK = projected.LessThanOrEqual(maxTotal)
			}
		}
	}
	fatal("position_size_within_limit", sizeOK, "position size exceeds the per-trade cap")
	fatal("total_exposure_within_limit", exposureOK, "trade would exceed the total portfolio exposure cap")

	var reasons []string
	approved := true
	for _, c := range checks {
		if !c.Passed {
			if c.Severity == SeverityFatal {
				approved = false
			}
			reasons = append(reasons, fmt.Sprintf("%s: %s", c.Name, c.Detail))
		}
	}

	return Validation{
		Approved:         approved,
		Checks:           checks,
		RejectionReasons: reasons,
		AdjustedQuantity: adjustedQty,
	}
}
