package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/market"
)

func mnqSpec(t *testing.T) market.ContractSpec {
	t.Helper()
	spec, err := market.NewSpecRegistry().Spec("MNQ")
	if err != nil {
		t.Fatalf("MNQ spec: %v", err)
	}
	return spec
}

func TestComputeQuantityFromBudget(t *testing.T) {
	sig := SignalInfo{
		Instrument: "MNQ",
		EntryPrice: decimal.NewFromFloat(18500),
		StopPrice:  decimal.NewFromFloat(18480), // 80 ticks x $0.50 = $40/contract
	}
	settings := DefaultSettings() // $250 budget, 10 micro max

	if got := ComputeQuantity(sig, settings, mnqSpec(t)); got != 6 {
		t.Errorf("ComputeQuantity = %d, want 6 (floor of 250/40)", got)
	}
}

func TestComputeQuantityClampsToClassLimit(t *testing.T) {
	sig := SignalInfo{
		Instrument: "MNQ",
		EntryPrice: decimal.NewFromFloat(18500),
		StopPrice:  decimal.NewFromFloat(18499), // $2/contract: budget alone allows 125
	}
	settings := DefaultSettings()

	if got := ComputeQuantity(sig, settings, mnqSpec(t)); got != settings.MaxPositionSizeMicro {
		t.Errorf("ComputeQuantity = %d, want micro limit %d", got, settings.MaxPositionSizeMicro)
	}
}

func TestComputeQuantityNeverBelowOne(t *testing.T) {
	sig := SignalInfo{
		Instrument: "MNQ",
		EntryPrice: decimal.NewFromFloat(18500),
		StopPrice:  decimal.NewFromFloat(17500), // $2000/contract, over any budget
	}
	if got := ComputeQuantity(sig, DefaultSettings(), mnqSpec(t)); got != 1 {
		t.Errorf("ComputeQuantity = %d, want clamp to 1", got)
	}
}

func TestComputeQuantityNoStop(t *testing.T) {
	sig := SignalInfo{
		Instrument: "MNQ",
		EntryPrice: decimal.NewFromFloat(18500),
	}
	if got := ComputeQuantity(sig, DefaultSettings(), mnqSpec(t)); got != 0 {
		t.Errorf("ComputeQuantity without stop = %d, want 0", got)
	}
}

func TestQuantityOrDefaultPrefersExplicit(t *testing.T) {
	sig := SignalInfo{
		Instrument: "MNQ",
		EntryPrice: decimal.NewFromFloat(18500),
		StopPrice:  decimal.NewFromFloat(18480),
		Quantity:   2,
	}
	if got := QuantityOrDefault(sig, DefaultSettings(), mnqSpec(t)); got != 2 {
		t.Errorf("explicit quantity ignored: got %d", got)
	}
	sig.Quantity = 0
	if got := QuantityOrDefault(sig, DefaultSettings(), mnqSpec(t)); got != 6 {
		t.Errorf("derived quantity = %d, want 6", got)
	}
}
