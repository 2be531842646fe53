package execution

import (
	"context"

	"github.com/shopspring/decimal"
)

// CancelOrder withdraws one working order. The state check and the update run
// in the same transaction, so a fill racing in just ahead of the cancel wins
// cleanly.
func (p *Processor) CancelOrder(ctx context.Context, userID string, brokerOrderID string) error {
	var venueCancel bool
	err := p.store.InTx(ctx, func(tx Store) error {
		order, err := tx.OrderByBrokerID(ctx, brokerOrderID)
		if err != nil {
			return wrapError(CodeNotFound, err, "order %s", brokerOrderID)
		}
		if order.UserID != userID {
			return newError(CodeNotFound, "order %s", brokerOrderID)
		}
		if order.Status.Terminal() {
			return newError(CodeConflict, "order %s is already %s", brokerOrderID, order.Status)
		}
		if err := p.transitionOrder(ctx, tx, order, OrderCancelled, "cancelled by user"); err != nil {
			return err
		}
		venueCancel = true
		return nil
	})
	if err != nil {
		return err
	}

	if venueCancel {
		adapter, aerr := p.adapterFor(ctx, userID)
		if aerr != nil {
			return aerr
		}
		if cerr := adapter.CancelOrder(ctx, brokerOrderID); cerr != nil {
			p.logger.Warn().Err(cerr).Str("broker_order_id", brokerOrderID).Msg("venue cancel failed")
		}
	}
	return nil
}

// ModifyOrder moves a working order's price and/or quantity, re-validating
// the order state inside the transaction before touching anything.
func (p *Processor) ModifyOrder(ctx context.Context, userID, brokerOrderID string, price decimal.Decimal, quantity int) error {
	err := p.store.InTx(ctx, func(tx Store) error {
		order, err := tx.OrderByBrokerID(ctx, brokerOrderID)
		if err != nil {
			return wrapError(CodeNotFound, err, "order %s", brokerOrderID)
		}
		if order.UserID != userID {
			return newError(CodeNotFound, "order %s", brokerOrderID)
		}
		if order.Status != OrderSubmitted && order.Status != OrderPartialFill {
			return newError(CodeConflict, "order %s is %s and cannot be modified", brokerOrderID, order.Status)
		}
		if !price.IsZero() {
			if !price.IsPositive() {
				return newError(CodeValidation, "price must be positive")
			}
			order.Price = price
		}
		if quantity > 0 {
			if quantity < order.FilledQuantity {
				return newError(CodeValidation, "quantity %d below filled %d", quantity, order.FilledQuantity)
			}
			order.Quantity = quantity
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return wrapError(CodeInternal, err, "update order")
		}
		return nil
	})
	if err != nil {
		return err
	}

	adapter, err := p.adapterFor(ctx, userID)
	if err != nil {
		return err
	}
	if err := adapter.ModifyOrder(ctx, brokerOrderID, price, quantity); err != nil {
		return wrapError(CodeBroker, err, "modify at venue")
	}
	return nil
}
