package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendline-trading-bot/internal/broker"
	"trendline-trading-bot/internal/market"
	"trendline-trading-bot/internal/risk"
)

// memStore is an in-memory Store plus risk.AuditSink for pipeline tests.
// InTx hands back the store itself: single-process tests need the contract,
// not the isolation.
type memStore struct {
	mu          sync.Mutex
	signals     map[int64]Signal
	orders      map[int64]Order
	positions   map[int64]Position
	orderEvents []OrderEvent
	audits      []*risk.CheckAudit
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		signals:   make(map[int64]Signal),
		orders:    make(map[int64]Order),
		positions: make(map[int64]Position),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateSignal(ctx context.Context, sig *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sig.ID == 0 {
		sig.ID = m.id()
	}
	m.signals[sig.ID] = *sig
	return nil
}

func (m *memStore) UpdateSignal(ctx context.Context, sig *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[sig.ID] = *sig
	return nil
}

func (m *memStore) SignalByID(ctx context.Context, userID string, id int64) (*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.signals[id]
	if !ok || sig.UserID != userID {
		return nil, fmt.Errorf("signal %d not found", id)
	}
	cp := sig
	return &cp, nil
}

func (m *memStore) CreateOrder(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		o.ID = m.id()
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *memStore) UpdateOrder(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = *o
	return nil
}

func (m *memStore) OrderByBrokerID(ctx context.Context, brokerOrderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.BrokerOrderID == brokerOrderID && brokerOrderID != "" {
			cp := o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("order %s not found", brokerOrderID)
}

func (m *memStore) OrdersByBracketGroup(ctx context.Context, groupID string) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.BracketGroupID == groupID {
			cp := o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) OrdersByStatus(ctx context.Context, userID string, status OrderStatus) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.UserID == userID && o.Status == status {
			cp := o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) AppendOrderEvent(ctx context.Context, evt *OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt.ID = m.id()
	m.orderEvents = append(m.orderEvents, *evt)
	return nil
}

func (m *memStore) CreatePosition(ctx context.Context, p *Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.positions[p.ID] = *p
	return nil
}

func (m *memStore) UpdatePosition(ctx context.Context, p *Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = *p
	return nil
}

func (m *memStore) OpenPositions(ctx context.Context, userID string) ([]*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Position
	for _, p := range m.positions {
		if p.UserID == userID && p.Status == PositionOpen {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) PositionBySignal(ctx context.Context, signalID int64) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.positions {
		if p.SignalID == signalID {
			cp := p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no position for signal %d", signalID)
}

func (m *memStore) RealizedPnLToday(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	total := decimal.Zero
	for _, p := range m.positions {
		if p.UserID == userID && p.Status == PositionClosed && !p.ClosedAt.Before(start) {
			total = total.Add(p.RealizedPnL)
		}
	}
	return total, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(m)
}

func (m *memStore) SaveAudit(ctx context.Context, a *risk.CheckAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	m.audits = append(m.audits, a)
	return nil
}

type settingsStub struct {
	settings risk.Settings
}

func (s *settingsStub) RiskSettings(ctx context.Context, userID string) (risk.Settings, error) {
	return s.settings, nil
}

func (s *settingsStub) TradingMode(ctx context.Context, userID string) (broker.Mode, error) {
	return broker.ModePaper, nil
}

// conflictLocker refuses a second acquire of the same key, like the Redis
// SetNX lock does inside its TTL window.
type conflictLocker struct {
	seen map[string]bool
}

func (l *conflictLocker) Acquire(ctx context.Context, userID, instrument, direction string) error {
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	key := userID + ":" + instrument + ":" + direction
	if l.seen[key] {
		return fmt.Errorf("signal lock held for %s", key)
	}
	l.seen[key] = true
	return nil
}

type fixture struct {
	store    *memStore
	paper    *broker.PaperAdapter
	breaker  *risk.CircuitBreaker
	settings *settingsStub
	proc     *Processor
}

func newFixture(t *testing.T, dedup DupLocker) *fixture {
	t.Helper()
	specs := market.NewSpecRegistry()
	store := newMemStore()
	engine := risk.NewEngine(store, specs, market.NewCorrelationTable(), zerolog.Nop())
	breaker := risk.NewCircuitBreaker(nil, nil, zerolog.Nop())

	paper := broker.NewPaperAdapter(specs, 1, decimal.NewFromInt(50000), zerolog.Nop())
	require.NoError(t, paper.Connect(context.Background()))
	registry := broker.NewRegistry()
	registry.Register(paper)

	settings := &settingsStub{settings: risk.DefaultSettings()}
	proc := NewProcessor(store, specs, engine, breaker, dedup, registry, settings, nil, zerolog.Nop())
	return &fixture{store: store, paper: paper, breaker: breaker, settings: settings, proc: proc}
}

// pump feeds every queued paper-venue update through the fill handler.
func (f *fixture) pump(t *testing.T) {
	t.Helper()
	for {
		select {
		case u := <-f.paper.OrderUpdates():
			require.NoError(t, f.proc.HandleOrderUpdate(context.Background(), u))
		default:
			return
		}
	}
}

func (f *fixture) signal(t *testing.T) *Signal {
	t.Helper()
	sig := longSignal()
	require.NoError(t, f.proc.CreateSignal(context.Background(), sig))
	return sig
}

func (f *fixture) openPosition(t *testing.T) (*Signal, *Position) {
	t.Helper()
	sig := f.signal(t)
	require.NoError(t, f.proc.ProcessSignal(context.Background(), "user1", sig.ID))
	f.pump(t)
	pos, err := f.store.PositionBySignal(context.Background(), sig.ID)
	require.NoError(t, err)
	require.Equal(t, PositionOpen, pos.Status)
	return sig, pos
}

func TestCreateSignalIntake(t *testing.T) {
	f := newFixture(t, nil)
	sig := f.signal(t)

	assert.Equal(t, SignalEnriched, sig.Status)
	assert.True(t, sig.RiskDistance.Equal(d("20")))
	assert.Equal(t, 2.0, sig.RiskReward)
}

func TestCreateSignalInvalidRejected(t *testing.T) {
	f := newFixture(t, nil)

	sig := longSignal()
	sig.StopPrice = d("18520") // above a long entry
	err := f.proc.CreateSignal(context.Background(), sig)
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))

	stored, err := f.store.SignalByID(context.Background(), "user1", sig.ID)
	require.NoError(t, err)
	assert.Equal(t, SignalRejected, stored.Status)
	assert.NotEmpty(t, stored.RejectReason)
}

func TestCreateSignalDuplicateConflict(t *testing.T) {
	f := newFixture(t, &conflictLocker{})

	require.NoError(t, f.proc.CreateSignal(context.Background(), longSignal()))

	dup := longSignal()
	err := f.proc.CreateSignal(context.Background(), dup)
	require.Error(t, err)
	assert.Equal(t, CodeConflict, CodeOf(err))

	stored, _ := f.store.SignalByID(context.Background(), "user1", dup.ID)
	assert.Equal(t, SignalRejected, stored.Status)
}

func TestProcessSignalEndToEndTakeProfit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sig := f.signal(t)

	require.NoError(t, f.proc.ProcessSignal(ctx, "user1", sig.ID))

	stored, _ := f.store.SignalByID(ctx, "user1", sig.ID)
	assert.Equal(t, SignalExecuting, stored.Status)

	submitted, _ := f.store.OrdersByStatus(ctx, "user1", OrderSubmitted)
	require.Len(t, submitted, 3)
	for _, o := range submitted {
		assert.NotEmpty(t, o.BrokerOrderID)
	}

	// The market entry fills immediately with one tick of adverse slippage.
	f.pump(t)
	pos, err := f.store.PositionBySignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, PositionOpen, pos.Status)
	assert.True(t, pos.EntryPrice.Equal(d("18500.25")), "entry at 18500.25, got %s", pos.EntryPrice)

	stored, _ = f.store.SignalByID(ctx, "user1", sig.ID)
	assert.Equal(t, SignalFilled, stored.Status)

	// Price reaches the target: TP fills exactly at 18540, stop dies with it.
	f.paper.EvaluatePending(ctx, "MNQ", d("18541"))
	f.pump(t)

	pos, _ = f.store.PositionBySignal(ctx, sig.ID)
	assert.Equal(t, PositionClosed, pos.Status)
	assert.Equal(t, ExitTakeProfit, pos.ExitReason)
	assert.True(t, pos.ExitPrice.Equal(d("18540")))
	assert.True(t, pos.RealizedPnL.Equal(d("79.5")), "pnl = %s, want 79.5", pos.RealizedPnL)
	r, _ := pos.RMultiple.Float64()
	assert.InDelta(t, 1.96, r, 0.01)

	cancelled, _ := f.store.OrdersByStatus(ctx, "user1", OrderCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, RoleStopLoss, cancelled[0].Role)
}

func TestProcessSignalStopLossFeedsBreaker(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sig, _ := f.openPosition(t)

	// Price breaks the stop: the stop fills one tick adverse, the target is
	// the OCO casualty.
	f.paper.EvaluatePending(ctx, "MNQ", d("18479"))
	f.pump(t)

	pos, _ := f.store.PositionBySignal(ctx, sig.ID)
	assert.Equal(t, PositionClosed, pos.Status)
	assert.Equal(t, ExitStopLoss, pos.ExitReason)
	assert.True(t, pos.ExitPrice.Equal(d("18479.75")))
	assert.True(t, pos.RealizedPnL.Equal(d("-41")), "pnl = %s, want -41", pos.RealizedPnL)

	cancelled, _ := f.store.OrdersByStatus(ctx, "user1", OrderCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, RoleTakeProfit, cancelled[0].Role)

	// The losing close advanced the breaker streak.
	_, losses, err := f.breaker.State(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, losses)
}

func TestProcessSignalBlockedByTrippedBreaker(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.breaker.RecordLoss(ctx, "user1", 3)
	}

	sig := f.signal(t)
	err := f.proc.ProcessSignal(ctx, "user1", sig.ID)
	require.Error(t, err)
	assert.Equal(t, CodeCircuitBreaker, CodeOf(err))

	stored, _ := f.store.SignalByID(ctx, "user1", sig.ID)
	assert.Equal(t, SignalRejected, stored.Status)
	assert.Equal(t, "circuit breaker tripped", stored.RejectReason)
}

func TestProcessSignalRiskRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.settings.settings.MaxConcurrentPositions = 0

	sig := f.signal(t)
	err := f.proc.ProcessSignal(ctx, "user1", sig.ID)
	require.Error(t, err)
	assert.Equal(t, CodeRiskRejected, CodeOf(err))

	stored, _ := f.store.SignalByID(ctx, "user1", sig.ID)
	assert.Equal(t, SignalRejected, stored.Status)
	assert.Contains(t, stored.RejectReason, risk.CheckMaxPositions)

	// Fail-fast at the third check leaves exactly three audit rows.
	assert.Len(t, f.store.audits, 3)
}

func TestCancelSignalOnlyBeforeExecuting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sig := f.signal(t)
	require.NoError(t, f.proc.CancelSignal(ctx, "user1", sig.ID))
	stored, _ := f.store.SignalByID(ctx, "user1", sig.ID)
	assert.Equal(t, SignalCancelled, stored.Status)

	sig2 := f.signal(t)
	require.NoError(t, f.proc.ProcessSignal(ctx, "user1", sig2.ID))
	err := f.proc.CancelSignal(ctx, "user1", sig2.ID)
	require.Error(t, err)
	assert.Equal(t, CodeConflict, CodeOf(err))
}

func TestFlattenAll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sig, _ := f.openPosition(t)

	res, err := f.proc.FlattenAll(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PositionsClosed)
	assert.Equal(t, 2, res.OrdersCancelled, "stop and target legs were working")
	assert.Equal(t, 0, res.Failures)

	pos, _ := f.store.PositionBySignal(ctx, sig.ID)
	assert.Equal(t, PositionClosed, pos.Status)
	assert.Equal(t, ExitFlatten, pos.ExitReason)
	// Sold at current price minus one tick of slippage.
	assert.True(t, pos.ExitPrice.Equal(d("18500")), "exit = %s", pos.ExitPrice)

	open, _ := f.store.OpenPositions(ctx, "user1")
	assert.Empty(t, open)
}

func TestReconcileResyncsMissedFill(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sig := f.signal(t)
	require.NoError(t, f.proc.ProcessSignal(ctx, "user1", sig.ID))

	// Drop the live updates on the floor: the fill was "missed".
	for {
		select {
		case <-f.paper.OrderUpdates():
			continue
		default:
		}
		break
	}

	res, err := f.proc.Reconcile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 1, res.Resynced, "the filled entry resyncs")
	assert.Equal(t, 2, res.Unchanged, "the resting exits stay working")

	pos, err := f.store.PositionBySignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, PositionOpen, pos.Status)

	// A second sweep over the same state changes nothing.
	res2, err := f.proc.Reconcile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 0, res2.Resynced)
}
