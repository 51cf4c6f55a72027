// Package tradeexec implements the TradeExecutor: the orchestrator that
// turns an approved signal into a live order, a persisted Position, and a
// tracked exchange acknowledgement, with retry and reduce-only discipline on
// the close path. Grounded on the teacher's internal/exec/executor.go (now
// removed, its retry/health-check idiom absorbed here) and
// internal/exchange/bitunix/order_tracker.go's retry-with-backoff placement
// loop, generalized from a single monolithic executor into one scoped to
// just order submission plus position lifecycle orchestration.
package tradeexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitunix-bot/coretrader/internal/errs"
	"github.com/bitunix-bot/coretrader/internal/exchange"
	"github.com/bitunix-bot/coretrader/internal/position"
	"github.com/bitunix-bot/coretrader/internal/risk"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Signal is an entry instruction from an (external, out-of-scope) strategy.
type Signal struct {
	Symbol          string
	Side            position.Side
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	Leverage        int64
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
}

// AdapterHealth tracks consecutive exchange-adapter failures, tripping a
// local circuit after a run of failures so the executor stops hammering a
// down exchange. Grounded on the teacher's CircuitBreakerState in the now
// removed internal/exec/executor.go, which modeled the same
// market-condition/adapter-health concept (distinct from riskbreaker.Breaker,
// which is the daily-loss kill switch).
type AdapterHealth struct {
	mu               sync.RWMutex
	consecutiveFails int
	maxFails         int
	open             bool
	openedAt         time.Time
	cooldown         time.Duration
}

// NewAdapterHealth constructs a health tracker that opens after maxFails
// consecutive failures and stays open for cooldown before allowing retries.
func NewAdapterHealth(maxFails int, cooldown time.Duration) *AdapterHealth {
	return &AdapterHealth{maxFails: maxFails, cooldown: cooldown}
}

func (h *AdapterHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFails = 0
	h.open = false
}

func (h *AdapterHealth) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFails++
	if h.maxFails > 0 && h.consecutiveFails >= h.maxFails {
		h.open = true
		h.openedAt = time.Now().UTC()
	}
}

// allowed reports whether a new order attempt may proceed.
func (h *AdapterHealth) allowed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.open {
		return true
	}
	return time.Since(h.openedAt) >= h.cooldown
}

// Executor is the TradeExecutor.
type Executor struct {
	adapter    exchange.Adapter
	positions  *position.Engine
	gate       *risk.Gate
	health     *AdapterHealth
	maxRetries int
	retryDelay time.Duration
}

// New constructs a TradeExecutor.
func New(adapter exchange.Adapter, positions *position.Engine, gate *risk.Gate, maxRetries int, retryDelay time.Duration) *Executor {
	return &Executor{
		adapter:    adapter,
		positions:  positions,
		gate:       gate,
		health:     NewAdapterHealth(5, 30*time.Second),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// ExecuteSignal validates a signal through the RiskGate, submits the entry
// order with retry/idempotency, and on success records the Position. It
// returns the risk validation unconditionally so callers can inspect
// warnings even on approval.
func (x *Executor) ExecuteSignal(ctx context.Context, sig Signal) (position.Position, risk.Validation, error) {
	if err := exchange.ValidateSymbol(sig.Symbol); err != nil {
		return position.Position{}, risk.Validation{}, err
	}

	currentPrice := sig.Price
	if pos, err := x.adapter.GetPosition(ctx, sig.Symbol); err == nil && !pos.MarkPrice.IsZero() {
		currentPrice = pos.MarkPrice
	}

	validation := x.gate.Validate(ctx, risk.TradeRequest{
		Symbol:       sig.Symbol,
		Side:         sideString(sig.Side),
		Price:        sig.Price,
		CurrentPrice: currentPrice,
		Quantity:     sig.Quantity,
		Leverage:     sig.Leverage,
	})
	if !validation.Approved {
		return position.Position{}, validation, errs.RiskRejected(fmt.Sprintf("signal rejected: %v", validation.RejectionReasons))
	}

	if !x.health.allowed() {
		return position.Position{}, validation, errs.Transient("exchange adapter circuit open, skipping order", nil)
	}

	clientOrderID := uuid.New().String()
	req := exchange.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          orderSide(sig.Side),
		TradeSide:     exchange.TradeSideOpen,
		Quantity:      validation.AdjustedQuantity,
		Price:         sig.Price,
		OrderType:     exchange.OrderTypeMarket,
		ClientOrderID: clientOrderID,
	}

	result, err := x.placeWithRetry(ctx, req)
	if err != nil {
		return position.Position{}, validation, errs.Transient("order placement failed", err)
	}

	entryPrice := sig.Price
	if !result.FilledPrice.IsZero() {
		entryPrice = result.FilledPrice
	}

	created, err := x.positions.Create(ctx, position.Position{
		Symbol:          sig.Symbol,
		Side:            sig.Side,
		Quantity:        validation.AdjustedQuantity,
		EntryPrice:      entryPrice,
		Leverage:        sig.Leverage,
		StopLossPrice:   sig.StopLossPrice,
		TakeProfitPrice: sig.TakeProfitPrice,
	})
	if err != nil {
		log.Error().Err(err).Str("exchange_order_id", result.ExchangeOrderID).
			Msg("order filled but position persistence failed, position exists only on exchange")
		return position.Position{}, validation, err
	}

	return created, validation, nil
}

// placeWithRetry submits an order, retrying only transient adapter errors
// (network errors, rate limiting) up to maxRetries times with exponential
// backoff; the loop follows the teacher's order_tracker.go
// placeOrderWithRetry, which backs off linearly instead. Non-transient failures (invalid order, insufficient
// funds) are not retry-worthy per spec.md §4.4/§7 and return immediately
// without being counted against AdapterHealth, which exists to detect a
// genuinely unreachable exchange, not a stream of rejected orders.
func (x *Executor) placeWithRetry(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	var lastErr error
	for attempt := 0; attempt <= x.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return exchange.OrderResult{}, ctx.Err()
			case <-time.After(x.retryDelay * time.Duration(uint(1)<<uint(attempt-1))):
			}
		}
		result, err := x.adapter.PlaceOrder(ctx, req)
		if err == nil {
			x.health.recordSuccess()
			return result, nil
		}
		if !errs.IsKind(err, errs.KindTransient) {
			log.Error().Err(err).Str("symbol", req.Symbol).Msg("order placement failed, not retrying")
			return exchange.OrderResult{}, err
		}
		lastErr = err
		x.health.recordFailure()
		log.Warn().Err(err).Int("attempt", attempt+1).Str("symbol", req.Symbol).Msg("order placement failed, retrying")
	}
	return exchange.OrderResult{}, fmt.Errorf("order placement failed after %d retries: %w", x.maxRetries, lastErr)
}

// ClosePosition closes an open position with a reduce-only order on the
// exchange, then records the close locally. Idempotent: closing an
// already-closed position is a no-op at the position.Engine layer.
func (x *Executor) ClosePosition(ctx context.Context, id uuid.UUID, reason position.CloseReason) (position.Position, error) {
	pos, err := x.positions.Get(ctx, id)
	if err != nil {
		return position.Position{}, err
	}
	if pos.Status != position.StatusOpen {
		return pos, nil
	}

	if err := exchange.ValidateSymbol(pos.Symbol); err != nil {
		return position.Position{}, err
	}

	req := exchange.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       oppositeSide(pos.Side),
		TradeSide:  exchange.TradeSideClose,
		Quantity:   pos.Quantity,
		Price:      pos.MarkPrice,
		OrderType:  exchange.OrderTypeMarket,
		ReduceOnly: true,
	}

	result, err := x.placeWithRetry(ctx, req)
	if err != nil {
		return position.Position{}, errs.Transient("close order placement failed", err)
	}

	closePrice := pos.MarkPrice
	if !result.FilledPrice.IsZero() {
		closePrice = result.FilledPrice
	}
	return x.positions.Close(ctx, id, closePrice, reason)
}

// CloseAllPositions closes every open position, used by the circuit breaker
// when it trips and by graceful-shutdown paths. It implements
// riskbreaker.PositionCloser.
func (x *Executor) CloseAllPositions(ctx context.Context, reason string) error {
	open, err := x.positions.ListOpen(ctx, "")
	if err != nil {
		return err
	}
	var firstErr error
	for _, p := range open {
		if _, err := x.ClosePosition(ctx, p.ID, position.CloseReason(reason)); err != nil {
			log.Error().Err(err).Str("symbol", p.Symbol).Msg("failed to close position during mass close")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func sideString(s position.Side) string { return string(s) }

func orderSide(s position.Side) exchange.Side {
	if s == position.SideLong {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

func oppositeSide(s position.Side) exchange.Side {
	if s == position.SideLong {
		return exchange.SideSell
	}
	return exchange.SideBuy
}
