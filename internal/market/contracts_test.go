package market

import (
	"errors"
	"testing"
)

func TestSpecRegistryLookup(t *testing.T) {
	reg := NewSpecRegistry()

	spec, err := reg.Spec("MNQ")
	if err != nil {
		t.Fatalf("Spec(MNQ) failed: %v", err)
	}
	if !spec.TickSize.Equal(dec("0.25")) {
		t.Errorf("MNQ tick size = %s, want 0.25", spec.TickSize)
	}
	if !spec.TickValue.Equal(dec("0.50")) {
		t.Errorf("MNQ tick value = %s, want 0.50", spec.TickValue)
	}
	if !spec.IsMicro {
		t.Error("MNQ should be a micro contract")
	}
	if spec.FullSizeSymbol != "NQ" {
		t.Errorf("MNQ full-size symbol = %s, want NQ", spec.FullSizeSymbol)
	}
}

func TestSpecRegistryUnknownInstrument(t *testing.T) {
	reg := NewSpecRegistry()
	_, err := reg.Spec("BOGUS")
	if err == nil {
		t.Fatal("expected error for unknown instrument")
	}
	var unknown *ErrUnknownInstrument
	if !errors.As(err, &unknown) {
		t.Errorf("expected ErrUnknownInstrument, got %T", err)
	}
}

func TestFullSizeNormalization(t *testing.T) {
	reg := NewSpecRegistry()

	if got := reg.FullSize("MNQ"); got != "NQ" {
		t.Errorf("FullSize(MNQ) = %s, want NQ", got)
	}
	if got := reg.FullSize("ES"); got != "ES" {
		t.Errorf("FullSize(ES) = %s, want ES", got)
	}
	if got := reg.FullSize("UNSEEDED"); got != "UNSEEDED" {
		t.Errorf("FullSize of unknown symbol should map to itself, got %s", got)
	}
}

func TestCorrelationTableSymmetry(t *testing.T) {
	table := NewCorrelationTable()

	if a, b := table.Correlation("ES", "NQ"), table.Correlation("NQ", "ES"); a != b {
		t.Errorf("correlation not symmetric: %v vs %v", a, b)
	}
	if got := table.Correlation("ES", "ES"); got != 1.0 {
		t.Errorf("self correlation = %v, want 1.0", got)
	}
	if got := table.Correlation("ES", "UNKNOWN"); got != 0 {
		t.Errorf("unknown pair correlation = %v, want 0", got)
	}
}
