package broker

import (
	"context"

	"github.com/shopspring/decimal"
)

// LiveAdapter is the placeholder for a real venue connection. Every call
// reports ErrNotImplemented; the registry still accepts it so the mode wiring
// is exercised end to end.
type LiveAdapter struct{}

func NewLiveAdapter() *LiveAdapter { return &LiveAdapter{} }

func (l *LiveAdapter) Mode() Mode                           { return ModeLive }
func (l *LiveAdapter) Connect(ctx context.Context) error    { return ErrNotImplemented }
func (l *LiveAdapter) Disconnect(ctx context.Context) error { return nil }

func (l *LiveAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (PlacedOrder, error) {
	return PlacedOrder{}, ErrNotImplemented
}

func (l *LiveAdapter) PlaceBracket(ctx context.Context, reqs []OrderRequest) ([]PlacedOrder, error) {
	return nil, ErrNotImplemented
}

func (l *LiveAdapter) CancelOrder(ctx context.Context, brokerOrderID string) error {
	return ErrNotImplemented
}

func (l *LiveAdapter) ModifyOrder(ctx context.Context, brokerOrderID string, price decimal.Decimal, quantity int) error {
	return ErrNotImplemented
}

func (l *LiveAdapter) Positions(ctx context.Context) ([]BrokerPosition, error) {
	return nil, ErrNotImplemented
}

func (l *LiveAdapter) OrderStatus(ctx context.Context, brokerOrderID string) (OrderUpdate, error) {
	return OrderUpdate{}, ErrNotImplemented
}

func (l *LiveAdapter) AccountInfo(ctx context.Context) (AccountInfo, error) {
	return AccountInfo{}, ErrNotImplemented
}

func (l *LiveAdapter) OrderUpdates() <-chan OrderUpdate {
	ch := make(chan OrderUpdate)
	close(ch)
	return ch
}

func (l *LiveAdapter) PositionUpdates() <-chan PositionUpdate {
	ch := make(chan PositionUpdate)
	close(ch)
	return ch
}
