package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/broker"
	"trendline-trading-bot/internal/events"
)

// HandleOrderUpdate consumes a venue order update. All database effects of a
// fill run in one transaction: a position close and its OCO sibling cancel
// either both commit or neither does. Updates for unknown broker ids and
// repeats of already-applied terminal states are silently skipped, which
// makes the handler safe to replay from the reconcile sweep.
func (p *Processor) HandleOrderUpdate(ctx context.Context, u broker.OrderUpdate) error {
	if u.Status == broker.StatusWorking {
		return nil
	}

	var closed *Position
	var cancelSiblings []string

	err := p.store.InTx(ctx, func(tx Store) error {
		order, err := tx.OrderByBrokerID(ctx, u.BrokerOrderID)
		if err != nil {
			p.logger.Debug().Str("broker_order_id", u.BrokerOrderID).Msg("update for unknown order, skipping")
			return nil
		}
		if order.Status.Terminal() {
			return nil
		}

		switch u.Status {
		case broker.StatusCancelled:
			return p.transitionOrder(ctx, tx, order, OrderCancelled, "cancelled at venue")
		case broker.StatusRejected:
			if err := p.transitionOrder(ctx, tx, order, OrderRejected, "rejected at venue"); err != nil {
				return err
			}
			if order.Role == RoleEntry {
				if sig, serr := tx.SignalByID(ctx, order.UserID, order.SignalID); serr == nil && !sig.Status.Terminal() {
					sig.RejectReason = "entry rejected at venue"
					sig.Status = SignalRejected
					sig.UpdatedAt = time.Now().UTC()
					return tx.UpdateSignal(ctx, sig)
				}
			}
			return nil
		case broker.StatusFilled:
			order.FilledQuantity = u.FilledQuantity
			order.AvgFillPrice = u.FillPrice
			if u.FilledQuantity < order.Quantity {
				return p.transitionOrder(ctx, tx, order, OrderPartialFill, "")
			}
			if err := p.transitionOrder(ctx, tx, order, OrderFilled, ""); err != nil {
				return err
			}

			switch order.Role {
			case RoleEntry:
				return p.openPosition(ctx, tx, order)
			default:
				pos, siblings, err := p.closePosition(ctx, tx, order)
				if err != nil {
					return err
				}
				closed = pos
				cancelSiblings = siblings
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if closed != nil {
		p.afterClose(ctx, closed, cancelSiblings)
	}
	return nil
}

// openPosition creates the OPEN position off a filled entry leg, copying the
// protective prices from the signal, and marks the signal FILLED.
func (p *Processor) openPosition(ctx context.Context, tx Store, entry *Order) error {
	sig, err := tx.SignalByID(ctx, entry.UserID, entry.SignalID)
	if err != nil {
		return wrapError(CodeInternal, err, "signal for entry fill")
	}

	now := time.Now().UTC()
	pos := &Position{
		UserID:       entry.UserID,
		SignalID:     entry.SignalID,
		Instrument:   entry.Instrument,
		Direction:    sig.Direction,
		Quantity:     entry.FilledQuantity,
		EntryPrice:   entry.AvgFillPrice,
		StopPrice:    sig.StopPrice,
		TargetPrice:  sig.TargetPrice,
		CurrentPrice: entry.AvgFillPrice,
		Status:       PositionOpen,
		OpenedAt:     now,
	}
	if err := tx.CreatePosition(ctx, pos); err != nil {
		return wrapError(CodeInternal, err, "create position")
	}

	if !sig.Status.Terminal() {
		sig.Status = SignalFilled
		sig.UpdatedAt = now
		if err := tx.UpdateSignal(ctx, sig); err != nil {
			return wrapError(CodeInternal, err, "mark signal filled")
		}
	}

	p.logger.Info().
		Str("user_id", pos.UserID).
		Str("instrument", pos.Instrument).
		Str("entry_price", pos.EntryPrice.String()).
		Int("quantity", pos.Quantity).
		Msg("position opened")
	p.publish(events.EventPositionOpened, pos.UserID, pos)
	return nil
}

// closePosition finalizes the position off a filled exit leg and cancels the
// surviving sibling legs in the same transaction. Returns the closed position
// and the broker ids of siblings that still need a venue-side cancel.
func (p *Processor) closePosition(ctx context.Context, tx Store, exit *Order) (*Position, []string, error) {
	pos, err := tx.PositionBySignal(ctx, exit.SignalID)
	if err != nil {
		return nil, nil, wrapError(CodeInternal, err, "position for exit fill")
	}
	if pos.Status == PositionClosed {
		return nil, nil, nil
	}

	spec, err := p.specs.Spec(pos.Instrument)
	if err != nil {
		return nil, nil, wrapError(CodeInternal, err, "spec for %s", pos.Instrument)
	}

	now := time.Now().UTC()
	pos.ExitPrice = exit.AvgFillPrice
	pos.CurrentPrice = exit.AvgFillPrice
	pos.RealizedPnL = GrossPnL(pos.Direction, pos.EntryPrice, pos.ExitPrice, spec, pos.Quantity)
	pos.UnrealizedPnL = decimal.Zero
	pos.RMultiple = RMultiple(pos.RealizedPnL, RiskDollars(pos.EntryPrice, pos.StopPrice, spec, pos.Quantity))
	pos.Status = PositionClosed
	pos.ClosedAt = now
	switch exit.Role {
	case RoleStopLoss:
		pos.ExitReason = ExitStopLoss
	case RoleTakeProfit:
		pos.ExitReason = ExitTakeProfit
	default:
		pos.ExitReason = ExitManual
	}
	UpdateExcursions(pos, exit.AvgFillPrice)
	if err := tx.UpdatePosition(ctx, pos); err != nil {
		return nil, nil, wrapError(CodeInternal, err, "finalize position")
	}

	// One-cancels-other: the sibling exits die with this fill.
	var venueCancels []string
	siblings, err := tx.OrdersByBracketGroup(ctx, exit.BracketGroupID)
	if err != nil {
		return nil, nil, wrapError(CodeInternal, err, "bracket siblings")
	}
	for _, sib := range siblings {
		if sib.ID == exit.ID || sib.Status.Terminal() {
			continue
		}
		if err := p.transitionOrder(ctx, tx, sib, OrderCancelled, "OCO sibling filled"); err != nil {
			return nil, nil, err
		}
		if sib.BrokerOrderID != "" {
			venueCancels = append(venueCancels, sib.BrokerOrderID)
		}
	}
	return pos, venueCancels, nil
}

// afterClose runs the effects that must not sit inside the transaction:
// venue-side sibling cancels, breaker feedback and events.
func (p *Processor) afterClose(ctx context.Context, pos *Position, venueCancels []string) {
	if len(venueCancels) > 0 {
		if adapter, err := p.adapterFor(ctx, pos.UserID); err == nil {
			for _, id := range venueCancels {
				if err := adapter.CancelOrder(ctx, id); err != nil {
					p.logger.Warn().Err(err).Str("broker_order_id", id).Msg("sibling cancel at venue failed")
				}
			}
		}
	}

	if pos.RealizedPnL.IsNegative() {
		threshold := 0
		if settings, err := p.settings.RiskSettings(ctx, pos.UserID); err == nil {
			threshold = settings.CircuitBreakerThreshold
		}
		if _, err := p.breaker.RecordLoss(ctx, pos.UserID, threshold); err != nil {
			p.logger.Error().Err(err).Str("user_id", pos.UserID).Msg("record loss")
		}
	} else if pos.RealizedPnL.IsPositive() {
		if err := p.breaker.RecordWin(ctx, pos.UserID); err != nil {
			p.logger.Error().Err(err).Str("user_id", pos.UserID).Msg("record win")
		}
	}

	p.logger.Info().
		Str("user_id", pos.UserID).
		Str("instrument", pos.Instrument).
		Str("realized_pnl", pos.RealizedPnL.String()).
		Str("r_multiple", pos.RMultiple.String()).
		Str("exit_reason", string(pos.ExitReason)).
		Msg("position closed")
	p.publish(events.EventPositionClosed, pos.UserID, pos)
}
