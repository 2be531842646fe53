package execution

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/broker"
	"trendline-trading-bot/internal/events"
	"trendline-trading-bot/internal/market"
	"trendline-trading-bot/internal/risk"
)

// SettingsSource resolves per-user trading configuration.
type SettingsSource interface {
	RiskSettings(ctx context.Context, userID string) (risk.Settings, error)
	TradingMode(ctx context.Context, userID string) (broker.Mode, error)
}

// DupLocker guards against the same trade setup being signalled twice inside
// a short window. The dedup package implements it on Redis SetNX.
type DupLocker interface {
	Acquire(ctx context.Context, userID, instrument, direction string) error
}

// Breaker is the slice of the circuit breaker the pipeline needs.
type Breaker interface {
	Allow(ctx context.Context, userID string) (bool, error)
	RecordLoss(ctx context.Context, userID string, threshold int) (bool, error)
	RecordWin(ctx context.Context, userID string) error
}

// Processor drives signals through intake, risk gating and order submission,
// and consumes broker updates back into positions.
type Processor struct {
	store    Store
	specs    market.SpecSource
	engine   *risk.Engine
	breaker  Breaker
	dedup    DupLocker
	brokers  *broker.Registry
	settings SettingsSource
	bus      *events.Bus
	logger   zerolog.Logger

	// breakevenR is the favorable move, in R, that lifts the stop to entry.
	// Zero means the stop never moves.
	breakevenR decimal.Decimal
}

func NewProcessor(
	store Store,
	specs market.SpecSource,
	engine *risk.Engine,
	breaker Breaker,
	dedup DupLocker,
	brokers *broker.Registry,
	settings SettingsSource,
	bus *events.Bus,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		store:    store,
		specs:    specs,
		engine:   engine,
		breaker:  breaker,
		dedup:    dedup,
		brokers:  brokers,
		settings: settings,
		bus:      bus,
		logger:   logger.With().Str("component", "execution").Logger(),
	}
}

// CreateSignal runs intake: persist as RECEIVED, validate, dedup, enrich.
// The signal leaves in ENRICHED, or REJECTED with the reason recorded.
func (p *Processor) CreateSignal(ctx context.Context, sig *Signal) error {
	now := time.Now().UTC()
	sig.Status = SignalReceived
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	sig.UpdatedAt = now
	if err := p.store.CreateSignal(ctx, sig); err != nil {
		return wrapError(CodeInternal, err, "persist signal")
	}

	if err := validateSignal(sig); err != nil {
		p.rejectSignal(ctx, sig, err.Error())
		return err
	}
	if _, err := p.specs.Spec(sig.Instrument); err != nil {
		verr := wrapError(CodeValidation, err, "unknown instrument %s", sig.Instrument)
		p.rejectSignal(ctx, sig, verr.Message)
		return verr
	}
	if err := p.updateStatus(ctx, sig, SignalValidated); err != nil {
		return err
	}

	if p.dedup != nil {
		if err := p.dedup.Acquire(ctx, sig.UserID, sig.Instrument, string(sig.Direction)); err != nil {
			cerr := wrapError(CodeConflict, err, "duplicate signal for %s %s", sig.Instrument, sig.Direction)
			p.rejectSignal(ctx, sig, cerr.Message)
			return cerr
		}
	}

	enrichSignal(sig)
	return p.updateStatus(ctx, sig, SignalEnriched)
}

// ProcessSignal takes an enriched signal through the circuit breaker, the
// risk rubric and bracket submission. On success the signal is EXECUTING with
// its orders SUBMITTED at the venue.
func (p *Processor) ProcessSignal(ctx context.Context, userID string, signalID int64) error {
	sig, err := p.store.SignalByID(ctx, userID, signalID)
	if err != nil {
		return wrapError(CodeNotFound, err, "signal %d", signalID)
	}
	if sig.Status != SignalEnriched {
		return newError(CodeConflict, "signal %d is %s, not ENRICHED", signalID, sig.Status)
	}

	allowed, err := p.breaker.Allow(ctx, userID)
	if err != nil {
		return wrapError(CodeInternal, err, "breaker state")
	}
	if !allowed {
		p.rejectSignal(ctx, sig, "circuit breaker tripped")
		return newError(CodeCircuitBreaker, "circuit breaker tripped for user %s", userID)
	}

	settings, err := p.settings.RiskSettings(ctx, userID)
	if err != nil {
		return wrapError(CodeInternal, err, "risk settings")
	}
	snap, err := p.assembleSnapshot(ctx, userID)
	if err != nil {
		return err
	}

	decision, err := p.engine.Evaluate(ctx, p.riskView(sig), settings, snap)
	if err != nil {
		return wrapError(CodeInternal, err, "risk evaluation")
	}
	if !decision.Passed {
		reason := "risk checks failed: " + strings.Join(decision.FailedChecks, ", ")
		p.rejectSignal(ctx, sig, reason)
		return newError(CodeRiskRejected, "%s", reason)
	}
	if err := p.updateStatus(ctx, sig, SignalRiskPassed); err != nil {
		return err
	}

	spec, err := p.specs.Spec(sig.Instrument)
	if err != nil {
		return wrapError(CodeValidation, err, "spec for %s", sig.Instrument)
	}
	quantity := risk.QuantityOrDefault(p.riskView(sig), settings, spec)
	if quantity <= 0 {
		p.rejectSignal(ctx, sig, "cannot size order without a stop")
		return newError(CodeValidation, "cannot size order without a stop")
	}

	legs := BuildBracket(sig, quantity)
	for _, leg := range legs {
		if err := p.store.CreateOrder(ctx, leg); err != nil {
			return wrapError(CodeInternal, err, "persist order")
		}
	}

	adapter, err := p.adapterFor(ctx, userID)
	if err != nil {
		return err
	}
	placed, err := adapter.PlaceBracket(ctx, bracketRequests(legs))
	if err != nil {
		for _, leg := range legs {
			p.transitionOrder(ctx, p.store, leg, OrderRejected, err.Error())
		}
		p.rejectSignal(ctx, sig, "broker rejected bracket: "+err.Error())
		return wrapError(CodeBroker, err, "place bracket")
	}

	for i, leg := range legs {
		leg.BrokerOrderID = placed[i].BrokerOrderID
		if err := p.transitionOrder(ctx, p.store, leg, OrderSubmitted, ""); err != nil {
			return err
		}
	}
	if err := p.updateStatus(ctx, sig, SignalExecuting); err != nil {
		return err
	}

	p.logger.Info().
		Str("user_id", userID).
		Int64("signal_id", sig.ID).
		Str("instrument", sig.Instrument).
		Int("quantity", quantity).
		Int("legs", len(legs)).
		Msg("bracket submitted")
	return nil
}

// CancelSignal withdraws a signal that has not reached the venue yet.
func (p *Processor) CancelSignal(ctx context.Context, userID string, signalID int64) error {
	sig, err := p.store.SignalByID(ctx, userID, signalID)
	if err != nil {
		return wrapError(CodeNotFound, err, "signal %d", signalID)
	}
	switch sig.Status {
	case SignalReceived, SignalValidated, SignalEnriched, SignalRiskPassed:
		return p.updateStatus(ctx, sig, SignalCancelled)
	default:
		return newError(CodeConflict, "signal %d is %s and can no longer be cancelled", signalID, sig.Status)
	}
}

func (p *Processor) adapterFor(ctx context.Context, userID string) (broker.Adapter, error) {
	mode, err := p.settings.TradingMode(ctx, userID)
	if err != nil {
		return nil, wrapError(CodeInternal, err, "trading mode")
	}
	adapter, err := p.brokers.ForMode(mode)
	if err != nil {
		return nil, wrapError(CodeBroker, err, "resolve adapter")
	}
	return adapter, nil
}

func (p *Processor) assembleSnapshot(ctx context.Context, userID string) (risk.Snapshot, error) {
	now := time.Now().UTC()
	open, err := p.store.OpenPositions(ctx, userID)
	if err != nil {
		return risk.Snapshot{}, wrapError(CodeInternal, err, "open positions")
	}
	realized, err := p.store.RealizedPnLToday(ctx, userID, now)
	if err != nil {
		return risk.Snapshot{}, wrapError(CodeInternal, err, "realized pnl")
	}

	snap := risk.Snapshot{RealizedPnLToday: realized, Now: now}
	for _, pos := range open {
		snap.OpenPositions = append(snap.OpenPositions, risk.OpenPosition{
			Instrument:    pos.Instrument,
			Direction:     risk.SignalDirection(pos.Direction),
			Quantity:      pos.Quantity,
			UnrealizedPnL: pos.UnrealizedPnL,
		})
	}
	return snap, nil
}

func (p *Processor) riskView(sig *Signal) risk.SignalInfo {
	return risk.SignalInfo{
		ID:          sig.ID,
		UserID:      sig.UserID,
		Instrument:  sig.Instrument,
		Direction:   risk.SignalDirection(sig.Direction),
		EntryPrice:  sig.EntryPrice,
		StopPrice:   sig.StopPrice,
		TargetPrice: sig.TargetPrice,
		Quantity:    sig.Quantity,
		CreatedAt:   sig.CreatedAt,
	}
}

func bracketRequests(legs []*Order) []broker.OrderRequest {
	reqs := make([]broker.OrderRequest, len(legs))
	for i, leg := range legs {
		reqs[i] = broker.OrderRequest{
			Instrument: leg.Instrument,
			Side:       broker.OrderSide(leg.Side),
			Type:       broker.OrderType(leg.Type),
			Price:      leg.Price,
			Quantity:   leg.Quantity,
			GroupID:    leg.BracketGroupID,
		}
	}
	return reqs
}

func (p *Processor) updateStatus(ctx context.Context, sig *Signal, to SignalStatus) error {
	sig.Status = to
	sig.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateSignal(ctx, sig); err != nil {
		return wrapError(CodeInternal, err, "update signal %d to %s", sig.ID, to)
	}
	p.publish(events.EventSignalUpdate, sig.UserID, sig)
	return nil
}

func (p *Processor) rejectSignal(ctx context.Context, sig *Signal, reason string) {
	sig.RejectReason = reason
	if err := p.updateStatus(ctx, sig, SignalRejected); err != nil {
		p.logger.Error().Err(err).Int64("signal_id", sig.ID).Msg("failed to persist rejection")
	}
}

// transitionOrder updates the order status and appends the audit event in one
// place so no transition goes unrecorded.
func (p *Processor) transitionOrder(ctx context.Context, s Store, o *Order, to OrderStatus, reason string) error {
	from := o.Status
	o.Status = to
	o.Reason = reason
	o.UpdatedAt = time.Now().UTC()
	if err := s.UpdateOrder(ctx, o); err != nil {
		return wrapError(CodeInternal, err, "update order %d to %s", o.ID, to)
	}
	evt := &OrderEvent{OrderID: o.ID, FromStatus: from, ToStatus: to, Reason: reason, CreatedAt: o.UpdatedAt}
	if err := s.AppendOrderEvent(ctx, evt); err != nil {
		return wrapError(CodeInternal, err, "append order event")
	}
	p.publish(events.EventOrderUpdate, o.UserID, o)
	return nil
}

func (p *Processor) publish(typ events.EventType, userID string, payload interface{}) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{Type: typ, UserID: userID, Timestamp: time.Now().UTC(), Payload: payload})
}
