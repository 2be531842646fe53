package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakevenStopMovesAfterActivation(t *testing.T) {
	f := newFixture(t, nil)
	f.proc.EnableBreakevenStop(1.0)
	ctx := context.Background()
	sig, pos := f.openPosition(t)

	// Entry filled at 18500.25 with the stop at 18480, so one R of profit
	// sits at 18520.50. Just below it nothing moves.
	require.NoError(t, f.proc.UpdatePrice(ctx, "user1", "MNQ", d("18519")))
	pos, _ = f.store.PositionBySignal(ctx, sig.ID)
	assert.True(t, pos.StopPrice.Equal(d("18480")), "stop = %s", pos.StopPrice)

	require.NoError(t, f.proc.UpdatePrice(ctx, "user1", "MNQ", d("18521")))
	pos, _ = f.store.PositionBySignal(ctx, sig.ID)
	assert.True(t, pos.StopPrice.Equal(pos.EntryPrice), "stop = %s, want entry %s", pos.StopPrice, pos.EntryPrice)

	var stop *Order
	working, _ := f.store.OrdersByStatus(ctx, "user1", OrderSubmitted)
	for _, o := range working {
		if o.Role == RoleStopLoss {
			stop = o
		}
	}
	require.NotNil(t, stop)
	assert.True(t, stop.Price.Equal(pos.EntryPrice), "stop order at %s", stop.Price)

	// Further updates leave the stop where it is.
	require.NoError(t, f.proc.UpdatePrice(ctx, "user1", "MNQ", d("18530")))
	pos, _ = f.store.PositionBySignal(ctx, sig.ID)
	assert.True(t, pos.StopPrice.Equal(pos.EntryPrice))
}

func TestBreakevenStopDisabledByDefault(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sig, _ := f.openPosition(t)

	require.NoError(t, f.proc.UpdatePrice(ctx, "user1", "MNQ", d("18535")))
	pos, _ := f.store.PositionBySignal(ctx, sig.ID)
	assert.True(t, pos.StopPrice.Equal(d("18480")), "stop = %s", pos.StopPrice)
}
