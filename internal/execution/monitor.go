package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/events"
)

// UpdatePrice folds the latest trade price into every open position on the
// instrument: current price, unrealized P&L and the MAE/MFE excursions.
func (p *Processor) UpdatePrice(ctx context.Context, userID, instrument string, last decimal.Decimal) error {
	spec, err := p.specs.Spec(instrument)
	if err != nil {
		return wrapError(CodeValidation, err, "spec for %s", instrument)
	}

	open, err := p.store.OpenPositions(ctx, userID)
	if err != nil {
		return wrapError(CodeInternal, err, "open positions")
	}

	for _, pos := range open {
		if pos.Instrument != instrument {
			continue
		}
		pos.CurrentPrice = last
		pos.UnrealizedPnL = GrossPnL(pos.Direction, pos.EntryPrice, last, spec, pos.Quantity)
		UpdateExcursions(pos, last)
		p.maybeMoveStopToBreakeven(ctx, pos, last)
		if err := p.store.UpdatePosition(ctx, pos); err != nil {
			return wrapError(CodeInternal, err, "update position %d", pos.ID)
		}
		p.publish(events.EventPositionUpdate, userID, pos)
	}
	return nil
}
