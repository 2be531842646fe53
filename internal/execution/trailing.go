package execution

import (
	"context"

	"github.com/shopspring/decimal"
)

// EnableBreakevenStop arms the stop-to-breakeven move. Once an open position
// has run activationR times its initial risk in its favor, the protective
// stop is lifted to the entry price. Zero or negative disables it.
func (p *Processor) EnableBreakevenStop(activationR float64) {
	if activationR > 0 {
		p.breakevenR = decimal.NewFromFloat(activationR)
	}
}

// maybeMoveStopToBreakeven checks one open position against the activation
// threshold and, when reached, rewrites the working stop order to the entry
// price both in the store and at the venue. The position's StopPrice is
// updated in place; the caller persists it.
func (p *Processor) maybeMoveStopToBreakeven(ctx context.Context, pos *Position, last decimal.Decimal) {
	if p.breakevenR.IsZero() || pos.StopPrice.IsZero() {
		return
	}

	// Already at or beyond breakeven.
	if pos.Direction == DirectionLong && pos.StopPrice.GreaterThanOrEqual(pos.EntryPrice) {
		return
	}
	if pos.Direction == DirectionShort && pos.StopPrice.LessThanOrEqual(pos.EntryPrice) {
		return
	}

	move := last.Sub(pos.EntryPrice)
	if pos.Direction == DirectionShort {
		move = move.Neg()
	}
	if priceMoveR(move, pos.EntryPrice, pos.StopPrice).LessThan(p.breakevenR) {
		return
	}

	stop, err := p.stopOrderFor(ctx, pos)
	if err != nil {
		p.logger.Warn().Err(err).Int64("position_id", pos.ID).Msg("breakeven stop lookup failed")
		return
	}
	if stop == nil {
		return
	}

	stop.Price = pos.EntryPrice
	if err := p.store.UpdateOrder(ctx, stop); err != nil {
		p.logger.Warn().Err(err).Int64("order_id", stop.ID).Msg("breakeven stop update failed")
		return
	}
	pos.StopPrice = pos.EntryPrice

	adapter, err := p.adapterFor(ctx, pos.UserID)
	if err == nil {
		if merr := adapter.ModifyOrder(ctx, stop.BrokerOrderID, stop.Price, 0); merr != nil {
			p.logger.Warn().Err(merr).Str("broker_order_id", stop.BrokerOrderID).Msg("venue stop modify failed")
		}
	}

	p.logger.Info().
		Int64("position_id", pos.ID).
		Str("instrument", pos.Instrument).
		Str("stop", pos.StopPrice.String()).
		Msg("stop moved to breakeven")
}

// stopOrderFor finds the working stop-loss leg of the position's bracket.
func (p *Processor) stopOrderFor(ctx context.Context, pos *Position) (*Order, error) {
	working, err := p.store.OrdersByStatus(ctx, pos.UserID, OrderSubmitted)
	if err != nil {
		return nil, err
	}
	for _, o := range working {
		if o.SignalID == pos.SignalID && o.Role == RoleStopLoss {
			return o, nil
		}
	}
	return nil, nil
}
