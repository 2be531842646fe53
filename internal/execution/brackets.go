package execution

import (
	"time"

	"github.com/google/uuid"
)

// BuildBracket constructs the order legs for a signal: one entry, plus a stop
// and a target when the signal carries those prices. All legs share a fresh
// bracket group id; the exits are opposite-side STOP and LIMIT orders.
func BuildBracket(sig *Signal, quantity int) []*Order {
	groupID := uuid.New().String()
	now := time.Now().UTC()

	entrySide, exitSide := SideBuy, SideSell
	if sig.Direction == DirectionShort {
		entrySide, exitSide = SideSell, SideBuy
	}

	entryType := OrderMarket
	if sig.EntryType == EntryLimit {
		entryType = OrderLimit
	}

	legs := []*Order{{
		UserID:         sig.UserID,
		SignalID:       sig.ID,
		BracketGroupID: groupID,
		Instrument:     sig.Instrument,
		Role:           RoleEntry,
		Side:           entrySide,
		Type:           entryType,
		Price:          sig.EntryPrice,
		Quantity:       quantity,
		Status:         OrderConstructed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}}

	if !sig.StopPrice.IsZero() {
		legs = append(legs, &Order{
			UserID:         sig.UserID,
			SignalID:       sig.ID,
			BracketGroupID: groupID,
			Instrument:     sig.Instrument,
			Role:           RoleStopLoss,
			Side:           exitSide,
			Type:           OrderStop,
			Price:          sig.StopPrice,
			Quantity:       quantity,
			Status:         OrderConstructed,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if !sig.TargetPrice.IsZero() {
		legs = append(legs, &Order{
			UserID:         sig.UserID,
			SignalID:       sig.ID,
			BracketGroupID: groupID,
			Instrument:     sig.Instrument,
			Role:           RoleTakeProfit,
			Side:           exitSide,
			Type:           OrderLimit,
			Price:          sig.TargetPrice,
			Quantity:       quantity,
			Status:         OrderConstructed,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return legs
}
