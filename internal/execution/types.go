package execution

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a trade signal.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// SignalStatus is the intake state machine. A signal is cancellable only
// before it reaches EXECUTING.
type SignalStatus string

const (
	SignalReceived   SignalStatus = "RECEIVED"
	SignalValidated  SignalStatus = "VALIDATED"
	SignalEnriched   SignalStatus = "ENRICHED"
	SignalRiskPassed SignalStatus = "RISK_PASSED"
	SignalExecuting  SignalStatus = "EXECUTING"
	SignalFilled     SignalStatus = "FILLED"
	SignalRejected   SignalStatus = "REJECTED"
	SignalCancelled  SignalStatus = "CANCELLED"
	SignalExpired    SignalStatus = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s SignalStatus) Terminal() bool {
	switch s {
	case SignalFilled, SignalRejected, SignalCancelled, SignalExpired:
		return true
	}
	return false
}

// EntryType is how the entry leg goes to the venue.
type EntryType string

const (
	EntryMarket EntryType = "MARKET"
	EntryLimit  EntryType = "LIMIT"
)

// Signal is a request to enter a trade, usually sourced from a trendline
// touch. Prices are decimals: everything downstream is money.
type Signal struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	Instrument   string          `json:"instrument"`
	Direction    Direction       `json:"direction"`
	EntryType    EntryType       `json:"entry_type"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	StopPrice    decimal.Decimal `json:"stop_price"`    // zero = no stop leg
	TargetPrice  decimal.Decimal `json:"target_price"`  // zero = no target leg
	Quantity     int             `json:"quantity"`      // 0 = size from risk budget
	TrendlineID  int64           `json:"trendline_id,omitempty"`
	RiskDistance decimal.Decimal `json:"risk_distance"` // enrichment
	RiskReward   float64         `json:"risk_reward"`   // enrichment, 0 if unknown
	Status       SignalStatus    `json:"status"`
	RejectReason string          `json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OrderRole is the leg's purpose inside a bracket.
type OrderRole string

const (
	RoleEntry      OrderRole = "ENTRY"
	RoleStopLoss   OrderRole = "STOP_LOSS"
	RoleTakeProfit OrderRole = "TAKE_PROFIT"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
	OrderStop   OrderType = "STOP"
)

// OrderStatus is the local order state machine.
type OrderStatus string

const (
	OrderConstructed OrderStatus = "CONSTRUCTED"
	OrderSubmitted   OrderStatus = "SUBMITTED"
	OrderPartialFill OrderStatus = "PARTIAL_FILL"
	OrderFilled      OrderStatus = "FILLED"
	OrderCancelled   OrderStatus = "CANCELLED"
	OrderRejected    OrderStatus = "REJECTED"
)

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// Order is one leg of a bracket. BracketGroupID ties the legs together;
// BrokerOrderID is the venue's id once submitted.
type Order struct {
	ID             int64           `json:"id"`
	UserID         string          `json:"user_id"`
	SignalID       int64           `json:"signal_id"`
	BracketGroupID string          `json:"bracket_group_id"`
	BrokerOrderID  string          `json:"broker_order_id,omitempty"`
	Instrument     string          `json:"instrument"`
	Role           OrderRole       `json:"role"`
	Side           OrderSide       `json:"side"`
	Type           OrderType       `json:"type"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	FilledQuantity int             `json:"filled_quantity"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price"`
	Status         OrderStatus     `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderEvent is one append-only row per order state transition.
type OrderEvent struct {
	ID         int64       `json:"id"`
	OrderID    int64       `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	Reason     string      `json:"reason,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason records what closed a position.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitFlatten    ExitReason = "flatten"
	ExitManual     ExitReason = "manual"
)

// Position is an open or closed trade. MAE/MFE track the worst and best price
// excursions while open, in both price and R units.
type Position struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	SignalID      int64           `json:"signal_id"`
	Instrument    string          `json:"instrument"`
	Direction     Direction       `json:"direction"`
	Quantity      int             `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	ExitPrice     decimal.Decimal `json:"exit_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	RMultiple     decimal.Decimal `json:"r_multiple"`
	MAEPrice      decimal.Decimal `json:"mae_price"` // most adverse price seen
	MFEPrice      decimal.Decimal `json:"mfe_price"` // most favorable price seen
	MAER          decimal.Decimal `json:"mae_r"`
	MFER          decimal.Decimal `json:"mfe_r"`
	Status        PositionStatus  `json:"status"`
	ExitReason    ExitReason      `json:"exit_reason,omitempty"`
	OpenedAt      time.Time       `json:"opened_at"`
	ClosedAt      time.Time       `json:"closed_at,omitempty"`
}
