package risk

import (
	"trendline-trading-bot/internal/market"
)

// ComputeQuantity sizes a trade from the per-trade dollar risk budget:
// floor(budget / risk per contract), clamped to at least one contract and at
// most the per-class position limit. Returns 0 when the signal has no stop,
// because the risk per contract is undefined without one.
func ComputeQuantity(sig SignalInfo, settings Settings, spec market.ContractSpec) int {
	perContract := riskPerContract(sig, spec)
	if perContract.IsZero() {
		return 0
	}

	qty := int(settings.MaxTradeRisk.Div(perContract).IntPart())

	limit := settings.MaxPositionSizeFull
	if spec.IsMicro {
		limit = settings.MaxPositionSizeMicro
	}
	if qty > limit {
		qty = limit
	}
	if qty < 1 {
		qty = 1
	}
	return qty
}

// QuantityOrDefault resolves the final order quantity: an explicit quantity
// on the signal wins, otherwise the budget-derived size.
func QuantityOrDefault(sig SignalInfo, settings Settings, spec market.ContractSpec) int {
	if sig.Quantity > 0 {
		return sig.Quantity
	}
	return ComputeQuantity(sig, settings, spec)
}
