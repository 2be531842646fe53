package execution

import (
	"context"
	"time"

	"trendline-trading-bot/internal/broker"
)

// FlattenResult reports what a flatten-all pass accomplished.
type FlattenResult struct {
	PositionsClosed int `json:"positions_closed"`
	OrdersCancelled int `json:"orders_cancelled"`
	Failures        int `json:"failures"`
}

// FlattenAll market-closes every open position and cancels every working
// order for a user. A failure on one position or order never stops the
// sweep; the result counts what succeeded.
func (p *Processor) FlattenAll(ctx context.Context, userID string) (FlattenResult, error) {
	var res FlattenResult

	adapter, err := p.adapterFor(ctx, userID)
	if err != nil {
		return res, err
	}

	// Working orders first so a protective leg cannot fire mid-flatten.
	submitted, err := p.store.OrdersByStatus(ctx, userID, OrderSubmitted)
	if err != nil {
		return res, wrapError(CodeInternal, err, "submitted orders")
	}
	for _, o := range submitted {
		if o.BrokerOrderID != "" {
			if err := adapter.CancelOrder(ctx, o.BrokerOrderID); err != nil {
				p.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("flatten: venue cancel failed")
				res.Failures++
				continue
			}
		}
		if err := p.transitionOrder(ctx, p.store, o, OrderCancelled, "flatten"); err != nil {
			res.Failures++
			continue
		}
		res.OrdersCancelled++
	}

	open, err := p.store.OpenPositions(ctx, userID)
	if err != nil {
		return res, wrapError(CodeInternal, err, "open positions")
	}
	for _, pos := range open {
		if err := p.flattenPosition(ctx, adapter, pos); err != nil {
			p.logger.Warn().Err(err).Int64("position_id", pos.ID).Msg("flatten: close failed")
			res.Failures++
			continue
		}
		res.PositionsClosed++
	}

	p.logger.Info().
		Str("user_id", userID).
		Int("positions_closed", res.PositionsClosed).
		Int("orders_cancelled", res.OrdersCancelled).
		Int("failures", res.Failures).
		Msg("flatten-all complete")
	return res, nil
}

// flattenPosition sends a market exit and finalizes the position off the
// venue's reported fill price.
func (p *Processor) flattenPosition(ctx context.Context, adapter broker.Adapter, pos *Position) error {
	side := broker.SideSell
	if pos.Direction == DirectionShort {
		side = broker.SideBuy
	}
	placed, err := adapter.PlaceOrder(ctx, broker.OrderRequest{
		Instrument: pos.Instrument,
		Side:       side,
		Type:       broker.TypeMarket,
		Price:      pos.CurrentPrice,
		Quantity:   pos.Quantity,
	})
	if err != nil {
		return wrapError(CodeBroker, err, "flatten order for %s", pos.Instrument)
	}
	status, err := adapter.OrderStatus(ctx, placed.BrokerOrderID)
	if err != nil {
		return wrapError(CodeBroker, err, "flatten fill status")
	}

	spec, err := p.specs.Spec(pos.Instrument)
	if err != nil {
		return wrapError(CodeInternal, err, "spec for %s", pos.Instrument)
	}

	now := time.Now().UTC()
	pos.ExitPrice = status.FillPrice
	pos.CurrentPrice = status.FillPrice
	pos.RealizedPnL = GrossPnL(pos.Direction, pos.EntryPrice, pos.ExitPrice, spec, pos.Quantity)
	pos.RMultiple = RMultiple(pos.RealizedPnL, RiskDollars(pos.EntryPrice, pos.StopPrice, spec, pos.Quantity))
	pos.Status = PositionClosed
	pos.ExitReason = ExitFlatten
	pos.ClosedAt = now
	UpdateExcursions(pos, status.FillPrice)
	if err := p.store.UpdatePosition(ctx, pos); err != nil {
		return wrapError(CodeInternal, err, "finalize flattened position")
	}

	p.afterClose(ctx, pos, nil)
	return nil
}
