package execution

import (
	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/market"
)

// GrossPnL computes the realized dollar P&L of a round trip:
// (exit - entry) / tickSize * tickValue * quantity, negated for shorts.
// Everything stays decimal so 18500 -> 18540 on MNQ is exactly 80.00.
func GrossPnL(direction Direction, entry, exit decimal.Decimal, spec market.ContractSpec, quantity int) decimal.Decimal {
	if spec.TickSize.IsZero() {
		return decimal.Zero
	}
	move := exit.Sub(entry)
	if direction == DirectionShort {
		move = move.Neg()
	}
	return move.Div(spec.TickSize).Mul(spec.TickValue).Mul(decimal.NewFromInt(int64(quantity)))
}

// RiskDollars is the planned loss at the stop: |entry - stop| scaled to money.
func RiskDollars(entry, stop decimal.Decimal, spec market.ContractSpec, quantity int) decimal.Decimal {
	if spec.TickSize.IsZero() || stop.IsZero() {
		return decimal.Zero
	}
	dist := entry.Sub(stop).Abs()
	return dist.Div(spec.TickSize).Mul(spec.TickValue).Mul(decimal.NewFromInt(int64(quantity)))
}

// RMultiple expresses P&L in units of planned risk. Zero when the position
// had no stop, since R is undefined without one.
func RMultiple(pnl, riskDollars decimal.Decimal) decimal.Decimal {
	if riskDollars.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(riskDollars)
}

// priceMoveR converts a price excursion into R units: move / |entry - stop|.
func priceMoveR(move, entry, stop decimal.Decimal) decimal.Decimal {
	if stop.IsZero() {
		return decimal.Zero
	}
	dist := entry.Sub(stop).Abs()
	if dist.IsZero() {
		return decimal.Zero
	}
	return move.Div(dist)
}

// UpdateExcursions folds the latest price into a position's MAE/MFE. The
// adverse excursion is the worst price against the direction, the favorable
// one the best in its favor; both also tracked in R when a stop exists.
func UpdateExcursions(p *Position, price decimal.Decimal) {
	favorable := price.Sub(p.EntryPrice)
	if p.Direction == DirectionShort {
		favorable = favorable.Neg()
	}

	if p.MAEPrice.IsZero() && p.MFEPrice.IsZero() {
		p.MAEPrice = price
		p.MFEPrice = price
	}

	adverseSeen := p.MAEPrice.Sub(p.EntryPrice)
	favorableSeen := p.MFEPrice.Sub(p.EntryPrice)
	if p.Direction == DirectionShort {
		adverseSeen = adverseSeen.Neg()
		favorableSeen = favorableSeen.Neg()
	}

	if favorable.LessThan(adverseSeen) {
		p.MAEPrice = price
		adverseSeen = favorable
	}
	if favorable.GreaterThan(favorableSeen) {
		p.MFEPrice = price
		favorableSeen = favorable
	}

	p.MAER = priceMoveR(adverseSeen, p.EntryPrice, p.StopPrice)
	p.MFER = priceMoveR(favorableSeen, p.EntryPrice, p.StopPrice)
}
