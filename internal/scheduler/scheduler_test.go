package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bitunix-bot/coretrader/internal/alert"
	"github.com/bitunix-bot/coretrader/internal/exchange"
	"github.com/bitunix-bot/coretrader/internal/money"
	"github.com/bitunix-bot/coretrader/internal/position"
	"github.com/bitunix-bot/coretrader/internal/risk"
	"github.com/bitunix-bot/coretrader/internal/riskbreaker"
	"github.com/bitunix-bot/coretrader/internal/stoploss"
	"github.com/bitunix-bot/coretrader/internal/tradeexec"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu         sync.Mutex
	balance    decimal.Decimal
	placeCalls int
	markPrice  decimal.Decimal
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	return exchange.OrderResult{ExchangeOrderID: "ex-1", FilledPrice: req.Price, FilledQuantity: req.Quantity}, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, symbol, id string) error { return nil }
func (f *fakeAdapter) GetPosition(ctx context.Context, symbol string) (exchange.Position, error) {
	return exchange.Position{Symbol: symbol, MarkPrice: f.markPrice}, nil
}
func (f *fakeAdapter) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}
func (f *fakeAdapter) SetLeverage(ctx context.Context, symbol string, leverage int64) error {
	return nil
}
func (f *fakeAdapter) Close() error { return nil }

type memStore struct {
	mu        sync.Mutex
	positions map[uuid.UUID]position.Position
}

func newMemStore() *memStore { return &memStore{positions: map[uuid.UUID]position.Position{}} }

func (m *memStore) Insert(ctx context.Context, p position.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
	return nil
}
func (m *memStore) Update(ctx context.Context, p position.Position) error { return m.Insert(ctx, p) }
func (m *memStore) Get(ctx context.Context, id uuid.UUID) (position.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	return p, ok, nil
}
func (m *memStore) ListOpen(ctx context.Context, symbol string) ([]position.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []position.Position
	for _, p := range m.positions {
		if p.Status == position.StatusOpen && (symbol == "" || p.Symbol == symbol) {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *memStore) ListClosedOn(ctx context.Context, day time.Time) ([]position.Position, error) {
	return nil, nil
}
func (m *memStore) WithLock(ctx context.Context, id uuid.UUID, fn func(position.Position) (position.Position, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.positions[id]
	updated, err := fn(p)
	if err != nil {
		return err
	}
	m.positions[id] = updated
	return nil
}

type memAudit struct{}

func (memAudit) Append(ctx context.Context, entry position.AuditEntry) error { return nil }

type fakeSignalSource struct {
	signals []Signal
}

func (f fakeSignalSource) GetSignals(ctx context.Context, symbols []string) ([]Signal, error) {
	return f.signals, nil
}

type fakeMarketData struct {
	price decimal.Decimal
}

func (f fakeMarketData) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.price, nil
}

func newTestScheduler(t *testing.T, adapter *fakeAdapter, signals []Signal) *Scheduler {
	t.Helper()
	store := newMemStore()
	engine := position.New(store, memAudit{}, money.NewRate(1.10))

	gate := risk.New(risk.Limits{
		MaxPositionSize:      decimal.NewFromFloat(1),
		MaxPositionExposure:  decimal.NewFromFloat(1),
		MaxTotalExposure:     decimal.NewFromFloat(1),
		MaxPriceDistance:     decimal.NewFromFloat(1),
		MaxConsecutiveLosses: 100,
		MaxLeverage:          50,
	}, engine, stubBreakerSource{}, decimal.NewFromInt(10000))

	executor := tradeexec.New(adapter, engine, gate, 3, time.Millisecond)

	breaker, err := riskbreaker.New(decimal.NewFromInt(10000), decimal.NewFromInt(-200), decimal.NewFromFloat(-1), "00:00", executor, alert.NewFanout())
	require.NoError(t, err)

	supervisor := stoploss.New(stoploss.Config{
		ExchangePct:    decimal.NewFromFloat(0.05),
		MonitorPct:     decimal.NewFromFloat(0.05),
		MonitorPeriod:  time.Hour,
		EmergencyPct:   decimal.NewFromFloat(0.1),
		EmergencyCheck: time.Hour,
	}, engine, executor, adapter)

	return New(Config{
		Executor:   executor,
		Positions:  engine,
		Gate:       gate,
		Breaker:    breaker,
		Supervisor: supervisor,
		Adapter:    adapter,
		Signals:    fakeSignalSource{signals: signals},
		Market:     fakeMarketData{price: decimal.NewFromInt(50000)},
		Metrics:    nil,
		Alerts:     alert.NewFanout(),
		Symbols:    []string{"BTC/USDT:USDT"},
		FXRate:     money.NewRate(1.10),
		Limits: Limits{
			MinConfidence:    decimal.NewFromFloat(0.6),
			MinStopLossPct:   decimal.NewFromFloat(0.01),
			MaxStopLossPct:   decimal.NewFromFloat(0.10),
			MaxOpenPositions: 6,
			DefaultLeverage:  10,
		},
		Interval:   time.Hour,
		Align:      false,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
}

type stubBreakerSource struct{}

func (stubBreakerSource) IsTradingAllowed() bool { return true }

func TestRunCycleOpensPositionFromBuySignal(t *testing.T) {
	adapter := &fakeAdapter{balance: decimal.NewFromInt(10000), markPrice: decimal.NewFromInt(50000)}
	sched := newTestScheduler(t, adapter, []Signal{
		{
			Symbol: "BTC/USDT:USDT", Decision: DecisionBuy, Confidence: decimal.NewFromFloat(0.8),
			SizePct: decimal.NewFromFloat(0.01), StopLossPct: decimal.NewFromFloat(0.02),
		},
	})

	require.NoError(t, sched.RunCycle(context.Background()))

	open, err := sched.positions.ListOpen(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, position.SideLong, open[0].Side)
	assert.True(t, open[0].Quantity.GreaterThan(decimal.Zero))
}

func TestRunCycleHoldSignalTakesNoAction(t *testing.T) {
	adapter := &fakeAdapter{balance: decimal.NewFromInt(10000)}
	sched := newTestScheduler(t, adapter, []Signal{
		{Symbol: "BTC/USDT:USDT", Decision: DecisionHold},
	})

	require.NoError(t, sched.RunCycle(context.Background()))

	open, err := sched.positions.ListOpen(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 0, adapter.placeCalls)
}

func TestRunCycleRejectsLowConfidenceSignalWithoutPlacingOrder(t *testing.T) {
	adapter := &fakeAdapter{balance: decimal.NewFromInt(10000)}
	sched := newTestScheduler(t, adapter, []Signal{
		{
			Symbol: "BTC/USDT:USDT", Decision: DecisionBuy, Confidence: decimal.NewFromFloat(0.2),
			SizePct: decimal.NewFromFloat(0.01), StopLossPct: decimal.NewFromFloat(0.02),
		},
	})

	require.NoError(t, sched.RunCycle(context.Background()))

	open, err := sched.positions.ListOpen(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 0, adapter.placeCalls)
}

func TestRunCycleOversizedPositionRejectedByRiskGate(t *testing.T) {
	adapter := &fakeAdapter{balance: decimal.NewFromInt(10000), markPrice: decimal.NewFromInt(50000)}
	sched := newTestScheduler(t, adapter, nil)
	sched.gate = risk.New(risk.Limits{
		MaxPositionSize:      decimal.NewFromFloat(0.20),
		MaxPositionExposure:  decimal.NewFromFloat(0.20),
		MaxTotalExposure:     decimal.NewFromFloat(0.80),
		MaxPriceDistance:     decimal.NewFromFloat(1),
		MaxConsecutiveLosses: 100,
		MaxLeverage:          50,
	}, sched.positions, stubBreakerSource{}, decimal.NewFromInt(10000))
	sched.executor = tradeexec.New(adapter, sched.positions, sched.gate, 3, time.Millisecond)

	err := sched.processSignal(context.Background(), Signal{
		Symbol: "BTC/USDT:USDT", Decision: DecisionBuy, Confidence: decimal.NewFromFloat(0.8),
		SizePct: decimal.NewFromFloat(0.25), StopLossPct: decimal.NewFromFloat(0.02),
	}, decimal.NewFromInt(10000))
	require.NoError(t, err)

	open, err := sched.positions.ListOpen(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRunCycleCloseSignalClosesOpenPosition(t *testing.T) {
	adapter := &fakeAdapter{balance: decimal.NewFromInt(10000), markPrice: decimal.NewFromInt(51000)}
	sched := newTestScheduler(t, adapter, nil)

	require.NoError(t, sched.processSignal(context.Background(), Signal{
		Symbol: "BTC/USDT:USDT", Decision: DecisionBuy, Confidence: decimal.NewFromFloat(0.8),
		SizePct: decimal.NewFromFloat(0.01), StopLossPct: decimal.NewFromFloat(0.02),
	}, decimal.NewFromInt(10000)))

	open, err := sched.positions.ListOpen(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, sched.closeSignal(context.Background(), Signal{Symbol: "BTC/USDT:USDT", Decision: DecisionClose}))

	open, err = sched.positions.ListOpen(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCloseSignalWithNoOpenPositionIsNoop(t *testing.T) {
	adapter := &fakeAdapter{balance: decimal.NewFromInt(10000)}
	sched := newTestScheduler(t, adapter, nil)

	err := sched.closeSignal(context.Background(), Signal{Symbol: "BTC/USDT:USDT", Decision: DecisionClose})
	assert.NoError(t, err)
}
