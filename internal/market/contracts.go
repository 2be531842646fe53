package market

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ContractSpec holds the exchange contract parameters the execution pipeline
// needs for P&L math. Tick size and value are decimals because every
// monetary computation downstream stays in exact arithmetic.
type ContractSpec struct {
	Symbol         string          `json:"symbol"`
	TickSize       decimal.Decimal `json:"tick_size"`
	TickValue      decimal.Decimal `json:"tick_value"`
	PointValue     decimal.Decimal `json:"point_value"`
	IsMicro        bool            `json:"is_micro"`
	FullSizeSymbol string          `json:"full_size_symbol,omitempty"` // set for micro contracts only
}

// SpecSource resolves contract specifications for an instrument. The live
// implementation would query the broker; the built-in registry covers the
// CME futures the detection pipeline trades.
type SpecSource interface {
	Spec(symbol string) (ContractSpec, error)
}

// ErrUnknownInstrument is returned when no contract spec exists for a symbol.
type ErrUnknownInstrument struct {
	Symbol string
}

func (e *ErrUnknownInstrument) Error() string {
	return fmt.Sprintf("unknown instrument: %s", e.Symbol)
}

// SpecRegistry is an in-memory SpecSource seeded with the common CME equity
// index, metals and energy contracts plus their micros.
type SpecRegistry struct {
	mu    sync.RWMutex
	specs map[string]ContractSpec
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// NewSpecRegistry creates a registry pre-seeded with the default contracts.
func NewSpecRegistry() *SpecRegistry {
	r := &SpecRegistry{specs: make(map[string]ContractSpec)}
	for _, s := range defaultSpecs() {
		r.specs[s.Symbol] = s
	}
	return r
}

func defaultSpecs() []ContractSpec {
	return []ContractSpec{
		{Symbol: "ES", TickSize: dec("0.25"), TickValue: dec("12.50"), PointValue: dec("50")},
		{Symbol: "MES", TickSize: dec("0.25"), TickValue: dec("1.25"), PointValue: dec("5"), IsMicro: true, FullSizeSymbol: "ES"},
		{Symbol: "NQ", TickSize: dec("0.25"), TickValue: dec("5.00"), PointValue: dec("20")},
		{Symbol: "MNQ", TickSize: dec("0.25"), TickValue: dec("0.50"), PointValue: dec("2"), IsMicro: true, FullSizeSymbol: "NQ"},
		{Symbol: "YM", TickSize: dec("1"), TickValue: dec("5.00"), PointValue: dec("5")},
		{Symbol: "MYM", TickSize: dec("1"), TickValue: dec("0.50"), PointValue: dec("0.50"), IsMicro: true, FullSizeSymbol: "YM"},
		{Symbol: "RTY", TickSize: dec("0.1"), TickValue: dec("5.00"), PointValue: dec("50")},
		{Symbol: "M2K", TickSize: dec("0.1"), TickValue: dec("0.50"), PointValue: dec("5"), IsMicro: true, FullSizeSymbol: "RTY"},
		{Symbol: "GC", TickSize: dec("0.1"), TickValue: dec("10.00"), PointValue: dec("100")},
		{Symbol: "MGC", TickSize: dec("0.1"), TickValue: dec("1.00"), PointValue: dec("10"), IsMicro: true, FullSizeSymbol: "GC"},
		{Symbol: "CL", TickSize: dec("0.01"), TickValue: dec("10.00"), PointValue: dec("1000")},
		{Symbol: "MCL", TickSize: dec("0.01"), TickValue: dec("1.00"), PointValue: dec("100"), IsMicro: true, FullSizeSymbol: "CL"},
	}
}

// Spec returns the contract spec for a symbol.
func (r *SpecRegistry) Spec(symbol string) (ContractSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[symbol]
	if !ok {
		return ContractSpec{}, &ErrUnknownInstrument{Symbol: symbol}
	}
	return spec, nil
}

// Register adds or replaces a contract spec. Used when the broker publishes
// an updated specification; the registry value always wins over defaults.
func (r *SpecRegistry) Register(spec ContractSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Symbol] = spec
}

// FullSize normalizes a symbol to its full-size equivalent for correlation
// lookups. Non-micro symbols map to themselves.
func (r *SpecRegistry) FullSize(symbol string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if spec, ok := r.specs[symbol]; ok && spec.IsMicro && spec.FullSizeSymbol != "" {
		return spec.FullSizeSymbol
	}
	return symbol
}
