// Package position implements the PositionEngine: the authoritative
// lifecycle owner for trading positions (create, update mark price, close,
// query exposure/P&L). Grounded on the original position_service.py for
// operation semantics and on the teacher's internal/exec/executor.go for the
// RWMutex-guarded in-memory/store-backed idiom.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/bitunix-bot/coretrader/internal/errs"
	"github.com/bitunix-bot/coretrader/internal/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusLiquidated Status = "liquidated"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseReasonManual        CloseReason = "manual"
	CloseReasonStopLoss      CloseReason = "stop_loss"
	CloseReasonTakeProfit    CloseReason = "take_profit"
	CloseReasonLiquidation   CloseReason = "liquidation"
	CloseReasonCircuitBreaker CloseReason = "circuit_breaker_triggered"
	CloseReasonReconciliation CloseReason = "reconciliation"
)

func (r CloseReason) valid() bool {
	switch r {
	case CloseReasonManual, CloseReasonStopLoss, CloseReasonTakeProfit,
		CloseReasonLiquidation, CloseReasonCircuitBreaker, CloseReasonReconciliation:
		return true
	default:
		return false
	}
}

// Position is the core entity: one open or closed leveraged perpetual
// position on a single symbol.
type Position struct {
	ID               uuid.UUID
	Symbol           string
	Side             Side
	Quantity         decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	Leverage         int64
	StopLossPrice    decimal.Decimal
	TakeProfitPrice  decimal.Decimal
	Status           Status
	CreatedAt        time.Time
	ClosedAt         time.Time
	ClosePrice       decimal.Decimal
	CloseReason      CloseReason
	RealizedPnLUSD   decimal.Decimal
	RealizedPnLCHF   decimal.Decimal
}

// IsLong reports whether the position is long.
func (p Position) IsLong() bool { return p.Side == SideLong }

// UnrealizedPnLUSD computes the mark-to-market P&L at the current MarkPrice.
func (p Position) UnrealizedPnLUSD() decimal.Decimal {
	return money.PnL(p.IsLong(), p.EntryPrice, p.MarkPrice, p.Quantity, p.Leverage)
}

// ValueCHF is the notional exposure of the position converted to CHF.
func (p Position) ValueCHF(fx money.Rate) decimal.Decimal {
	notionalUSD := money.PositionValue(p.Quantity, p.MarkPrice)
	return fx.Convert(notionalUSD)
}

// AuditEntry records a single state transition for compliance and debugging,
// mirroring the audit_log table the original transactionally writes
// alongside every position mutation.
type AuditEntry struct {
	ID         uuid.UUID
	PositionID uuid.UUID
	EventType  string
	Detail     string
	Timestamp  time.Time
}

// AuditLog persists AuditEntry records. Implemented by internal/store.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// Statistics is the aggregate view over all positions, supplementing the
// spec's distillation with the original's get_statistics().
type Statistics struct {
	OpenCount               int
	ClosedCount             int
	TotalExposureCHF        decimal.Decimal
	TotalRealizedPnLCHF     decimal.Decimal
	TotalUnrealizedPnLUSD   decimal.Decimal
	StopLossTriggeredCount  int
	TakeProfitTriggeredCount int
}

// Store is the PositionStore persistence interface. Implemented by
// internal/store (bbolt-backed).
type Store interface {
	Insert(ctx context.Context, p Position) error
	Update(ctx context.Context, p Position) error
	Get(ctx context.Context, id uuid.UUID) (Position, bool, error)
	ListOpen(ctx context.Context, symbol string) ([]Position, error)
	ListClosedOn(ctx context.Context, day time.Time) ([]Position, error)
	WithLock(ctx context.Context, id uuid.UUID, fn func(Position) (Position, error)) error
}

// Engine is the PositionEngine.
type Engine struct {
	mu        sync.RWMutex
	store     Store
	audit     AuditLog
	fxRate    money.Rate
	maxRetries int
	retryDelay time.Duration
}

// New constructs a PositionEngine backed by the given store and audit log.
func New(store Store, audit AuditLog, fxRate money.Rate) *Engine {
	return &Engine{store: store, audit: audit, fxRate: fxRate, maxRetries: 3, retryDelay: 500 * time.Millisecond}
}

// Create validates and persists a new open position, writing an audit entry
// in the same logical operation, retrying on transient store errors the way
// position_service.py retries asyncpg errors with linear backoff.
func (e *Engine) Create(ctx context.Context, p Position) (Position, error) {
	if p.Symbol == "" {
		return Position{}, errs.Validation("symbol is required")
	}
	if p.Quantity.LessThanOrEqual(decimal.Zero) {
		return Position{}, errs.Validation("quantity must be positive")
	}
	if p.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return Position{}, errs.Validation("entry price must be positive")
	}
	if p.Side != SideLong && p.Side != SideShort {
		return Position{}, errs.Validation("side must be long or short")
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = StatusOpen
	p.MarkPrice = p.EntryPrice
	p.CreatedAt = time.Now().UTC()

	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(e.retryDelay * time.Duration(attempt))
		}
		if err := e.store.Insert(ctx, p); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("position insert failed, retrying")
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return Position{}, errs.Transient("create position failed after retries", lastErr)
	}

	_ = e.audit.Append(ctx, AuditEntry{
		ID: uuid.New(), PositionID: p.ID, EventType: "position_created",
		Detail: string(p.Side) + " " + p.Symbol, Timestamp: p.CreatedAt,
	})
	return p, nil
}

// UpdatePrice updates the mark price of an open position. It never closes a
// position and raises NotFound if the position is absent or already closed,
// matching update_position_price's exact contract.
func (e *Engine) UpdatePrice(ctx context.Context, id uuid.UUID, markPrice decimal.Decimal) error {
	markPrice = money.Round8(markPrice)
	return e.store.WithLock(ctx, id, func(p Position) (Position, error) {
		if p.Status != StatusOpen {
			return Position{}, errs.NotFound("position not found or not open")
		}
		p.MarkPrice = markPrice
		return p, nil
	})
}

// Close closes an open position idempotently: calling Close on an already
// closed position returns the prior result without error (a repeated
// StopLossSupervisor trigger or a Reconciler correction must not double-book
// P&L).
func (e *Engine) Close(ctx context.Context, id uuid.UUID, closePrice decimal.Decimal, reason CloseReason) (Position, error) {
	if !reason.valid() {
		return Position{}, errs.Validation("invalid close reason")
	}
	closePrice = money.Round8(closePrice)

	var result Position
	err := e.store.WithLock(ctx, id, func(p Position) (Position, error) {
		if p.Status != StatusOpen {
			result = p
			return p, nil // idempotent: already closed, no-op
		}
		pnlUSD := money.PnL(p.IsLong(), p.EntryPrice, closePrice, p.Quantity, p.Leverage)
		p.ClosePrice = closePrice
		p.RealizedPnLUSD = pnlUSD
		p.RealizedPnLCHF = e.fxRate.Convert(pnlUSD)
		p.CloseReason = reason
		p.ClosedAt = time.Now().UTC()
		if reason == CloseReasonLiquidation {
			p.Status = StatusLiquidated
		} else {
			p.Status = StatusClosed
		}
		result = p
		return p, nil
	})
	if err != nil {
		return Position{}, err
	}

	_ = e.audit.Append(ctx, AuditEntry{
		ID: uuid.New(), PositionID: id, EventType: "position_closed",
		Detail: string(reason), Timestamp: time.Now().UTC(),
	})
	return result, nil
}

// Get returns a position by ID.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (Position, error) {
	p, found, err := e.store.Get(ctx, id)
	if err != nil {
		return Position{}, err
	}
	if !found {
		return Position{}, errs.NotFound("position not found")
	}
	return p, nil
}

// ListOpen returns open positions, optionally filtered by symbol (empty
// string means all symbols).
func (e *Engine) ListOpen(ctx context.Context, symbol string) ([]Position, error) {
	return e.store.ListOpen(ctx, symbol)
}

// TotalExposureCHF sums the CHF-converted notional of every open position.
func (e *Engine) TotalExposureCHF(ctx context.Context) (decimal.Decimal, error) {
	positions, err := e.store.ListOpen(ctx, "")
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.ValueCHF(e.fxRate))
	}
	return money.Round8(total), nil
}

// DailyPnL computes realized P&L from positions closed on day plus
// unrealized P&L from currently open positions, matching get_daily_pnl's
// combination of realized-today plus unrealized-now.
func (e *Engine) DailyPnL(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	closed, err := e.store.ListClosedOn(ctx, day)
	if err != nil {
		return decimal.Zero, err
	}
	realized := decimal.Zero
	for _, p := range closed {
		realized = realized.Add(p.RealizedPnLCHF)
	}

	open, err := e.store.ListOpen(ctx, "")
	if err != nil {
		return decimal.Zero, err
	}
	unrealizedUSD := decimal.Zero
	for _, p := range open {
		unrealizedUSD = unrealizedUSD.Add(p.UnrealizedPnLUSD())
	}

	total := realized.Add(e.fxRate.Convert(unrealizedUSD))
	return money.Round8(total), nil
}

// CheckStopLossTriggers is a read-only query identifying open positions that
// have crossed their stop-loss price. It does not close anything — closing
// remains the StopLossSupervisor/TradeExecutor's responsibility.
func (e *Engine) CheckStopLossTriggers(ctx context.Context) ([]Position, error) {
	open, err := e.store.ListOpen(ctx, "")
	if err != nil {
		return nil, err
	}
	var triggered []Position
	for _, p := range open {
		if p.StopLossPrice.IsZero() {
			continue
		}
		if p.IsLong() && p.MarkPrice.LessThanOrEqual(p.StopLossPrice) {
			triggered = append(triggered, p)
		} else if !p.IsLong() && p.MarkPrice.GreaterThanOrEqual(p.StopLossPrice) {
			triggered = append(triggered, p)
		}
	}
	return triggered, nil
}

// CheckTakeProfitTriggers mirrors CheckStopLossTriggers for take-profit
// prices; supplemented from the original's check_take_profit_triggers.
func (e *Engine) CheckTakeProfitTriggers(ctx context.Context) ([]Position, error) {
	open, err := e.store.ListOpen(ctx, "")
	if err != nil {
		return nil, err
	}
	var triggered []Position
	for _, p := range open {
		if p.TakeProfitPrice.IsZero() {
			continue
		}
		if p.IsLong() && p.MarkPrice.GreaterThanOrEqual(p.TakeProfitPrice) {
			triggered = append(triggered, p)
		} else if !p.IsLong() && p.MarkPrice.LessThanOrEqual(p.TakeProfitPrice) {
			triggered = append(triggered, p)
		}
	}
	return triggered, nil
}

// Statistics returns the aggregate position statistics, supplementing the
// spec's distillation from the original's get_statistics().
func (e *Engine) Statistics(ctx context.Context, day time.Time) (Statistics, error) {
	open, err := e.store.ListOpen(ctx, "")
	if err != nil {
		return Statistics{}, err
	}
	closed, err := e.store.ListClosedOn(ctx, day)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{OpenCount: len(open), ClosedCount: len(closed)}
	for _, p := range open {
		stats.TotalExposureCHF = stats.TotalExposureCHF.Add(p.ValueCHF(e.fxRate))
		stats.TotalUnrealizedPnLUSD = stats.TotalUnrealizedPnLUSD.Add(p.UnrealizedPnLUSD())
		if !p.StopLossPrice.IsZero() &&
			((p.IsLong() && p.MarkPrice.LessThanOrEqual(p.StopLossPrice)) || (!p.IsLong() && p.MarkPrice.GreaterThanOrEqual(p.StopLossPrice))) {
			stats.StopLossTriggeredCount++
		}
		if !p.TakeProfitPrice.IsZero() &&
			((p.IsLong() && p.MarkPrice.GreaterThanOrEqual(p.TakeProfitPrice)) || (!p.IsLong() && p.MarkPrice.LessThanOrEqual(p.TakeProfitPrice))) {
			stats.TakeProfitTriggeredCount++
		}
	}
	for _, p := range closed {
		stats.TotalRealizedPnLCHF = stats.TotalRealizedPnLCHF.Add(p.RealizedPnLCHF)
	}
	return stats, nil
}
