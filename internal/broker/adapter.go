// Package broker defines the adapter contract the execution pipeline uses to
// reach an order venue, plus the paper adapter used for simulated trading.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects which adapter handles a user's orders.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
	TypeStop   OrderType = "STOP"
)

// OrderStatus is the venue-side status of an order.
type OrderStatus string

const (
	StatusWorking   OrderStatus = "WORKING"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

var (
	ErrNotConnected   = errors.New("broker not connected")
	ErrUnknownOrder   = errors.New("unknown broker order id")
	ErrNotImplemented = errors.New("not implemented for this broker")
)

// OrderRequest is one leg submitted to the venue. GroupID links the legs of a
// bracket so the adapter can enforce OCO between the exits.
type OrderRequest struct {
	Instrument string
	Side       OrderSide
	Type       OrderType
	Price      decimal.Decimal // limit or stop price; reference price for MARKET
	Quantity   int
	GroupID    string
}

// PlacedOrder is the venue's acknowledgement of a request.
type PlacedOrder struct {
	BrokerOrderID string
	Status        OrderStatus
}

// OrderUpdate is an asynchronous order state change from the venue.
type OrderUpdate struct {
	BrokerOrderID  string
	Instrument     string
	Status         OrderStatus
	FilledQuantity int
	FillPrice      decimal.Decimal
	Timestamp      time.Time
}

// PositionUpdate is an asynchronous position snapshot from the venue.
type PositionUpdate struct {
	Instrument string
	Quantity   int // signed: negative for short
	AvgPrice   decimal.Decimal
	Timestamp  time.Time
}

// BrokerPosition is the venue's view of one open position.
type BrokerPosition struct {
	Instrument string
	Quantity   int // signed
	AvgPrice   decimal.Decimal
}

// AccountInfo summarizes the trading account.
type AccountInfo struct {
	Mode     Mode
	Balance  decimal.Decimal
	Currency string
}

// Adapter is the venue contract. Implementations must be safe for concurrent
// use; the update channels are closed on Disconnect.
type Adapter interface {
	Mode() Mode
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	PlaceOrder(ctx context.Context, req OrderRequest) (PlacedOrder, error)
	// PlaceBracket submits all legs or none.
	PlaceBracket(ctx context.Context, reqs []OrderRequest) ([]PlacedOrder, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	ModifyOrder(ctx context.Context, brokerOrderID string, price decimal.Decimal, quantity int) error

	Positions(ctx context.Context) ([]BrokerPosition, error)
	OrderStatus(ctx context.Context, brokerOrderID string) (OrderUpdate, error)
	AccountInfo(ctx context.Context) (AccountInfo, error)

	OrderUpdates() <-chan OrderUpdate
	PositionUpdates() <-chan PositionUpdate
}
