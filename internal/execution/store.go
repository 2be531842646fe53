package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence contract the pipeline runs against. The database
// package implements it on pgx; tests use an in-memory version. InTx runs fn
// against a transactional view of the same store: fill processing uses it so
// a position close and its OCO sibling cancel commit together.
type Store interface {
	CreateSignal(ctx context.Context, sig *Signal) error
	UpdateSignal(ctx context.Context, sig *Signal) error
	SignalByID(ctx context.Context, userID string, id int64) (*Signal, error)

	CreateOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	OrderByBrokerID(ctx context.Context, brokerOrderID string) (*Order, error)
	OrdersByBracketGroup(ctx context.Context, bracketGroupID string) ([]*Order, error)
	OrdersByStatus(ctx context.Context, userID string, status OrderStatus) ([]*Order, error)
	AppendOrderEvent(ctx context.Context, evt *OrderEvent) error

	CreatePosition(ctx context.Context, p *Position) error
	UpdatePosition(ctx context.Context, p *Position) error
	OpenPositions(ctx context.Context, userID string) ([]*Position, error)
	PositionBySignal(ctx context.Context, signalID int64) (*Position, error)

	// RealizedPnLToday sums realized P&L of positions closed since the start
	// of the given trading day.
	RealizedPnLToday(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error)

	InTx(ctx context.Context, fn func(Store) error) error
}
