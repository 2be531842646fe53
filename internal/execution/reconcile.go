package execution

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"trendline-trading-bot/internal/broker"
)

// ReconcileResult summarizes one reconcile sweep.
type ReconcileResult struct {
	Checked   int `json:"checked"`
	Resynced  int `json:"resynced"`
	Unchanged int `json:"unchanged"`
	Failures  int `json:"failures"`
}

// Reconcile re-syncs every SUBMITTED order against the venue's authoritative
// status. Fills and cancels discovered here flow through the same handler as
// live updates, so a missed websocket message heals on the next sweep and a
// second sweep over the same state changes nothing.
func (p *Processor) Reconcile(ctx context.Context, userID string) (ReconcileResult, error) {
	var res ReconcileResult

	adapter, err := p.adapterFor(ctx, userID)
	if err != nil {
		return res, err
	}
	submitted, err := p.store.OrdersByStatus(ctx, userID, OrderSubmitted)
	if err != nil {
		return res, wrapError(CodeInternal, err, "submitted orders")
	}

	for _, o := range submitted {
		if o.BrokerOrderID == "" {
			continue
		}
		res.Checked++

		update, err := p.orderStatusWithRetry(ctx, adapter, o.BrokerOrderID)
		if err != nil {
			p.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("reconcile: status query failed")
			res.Failures++
			continue
		}
		if update.Status == broker.StatusWorking {
			res.Unchanged++
			continue
		}
		if err := p.HandleOrderUpdate(ctx, update); err != nil {
			p.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("reconcile: resync failed")
			res.Failures++
			continue
		}
		res.Resynced++
	}

	p.logger.Info().
		Str("user_id", userID).
		Int("checked", res.Checked).
		Int("resynced", res.Resynced).
		Int("failures", res.Failures).
		Msg("reconcile sweep complete")
	return res, nil
}

// orderStatusWithRetry wraps the venue query in a short exponential backoff:
// a transient hiccup should not burn a whole sweep interval.
func (p *Processor) orderStatusWithRetry(ctx context.Context, adapter broker.Adapter, brokerOrderID string) (broker.OrderUpdate, error) {
	var update broker.OrderUpdate
	op := func() error {
		var err error
		update, err = adapter.OrderStatus(ctx, brokerOrderID)
		if err == broker.ErrUnknownOrder {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return broker.OrderUpdate{}, err
	}
	return update, nil
}
