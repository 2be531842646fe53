package detect

import (
	"math/rand"
	"testing"
)

func TestDetectPivotHighsBasic(t *testing.T) {
	//            0    1    2    3    4    5    6
	highs := []float64{10, 11, 15, 12, 11, 13, 10}
	got := DetectPivotHighs(highs, 2)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("expected pivot at index 2, got %v", got)
	}
}

func TestDetectPivotLowsBasic(t *testing.T) {
	lows := []float64{10, 9, 5, 8, 9, 7, 10}
	got := DetectPivotLows(lows, 2)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("expected pivot at index 2, got %v", got)
	}
}

func TestPivotPlateauResolvesLeftmost(t *testing.T) {
	// Indices 3 and 4 share the maximum; only 3 should confirm.
	highs := []float64{10, 11, 12, 15, 15, 12, 11, 10}
	got := DetectPivotHighs(highs, 2)
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("plateau should resolve to leftmost index 3, got %v", got)
	}
}

func TestPivotBoundaryExclusion(t *testing.T) {
	// Property: for any series and lookback, no pivot index falls within
	// lookback of either boundary.
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := 10 + rng.Intn(100)
		lookback := 1 + rng.Intn(6)
		values := make([]float64, n)
		for i := range values {
			values[i] = 100 + rng.Float64()*20
		}

		for _, idx := range DetectPivotHighs(values, lookback) {
			if idx < lookback || idx >= n-lookback {
				t.Fatalf("trial %d: pivot high %d within lookback %d of boundary (n=%d)", trial, idx, lookback, n)
			}
		}
		for _, idx := range DetectPivotLows(values, lookback) {
			if idx < lookback || idx >= n-lookback {
				t.Fatalf("trial %d: pivot low %d within lookback %d of boundary (n=%d)", trial, idx, lookback, n)
			}
		}
	}
}

func TestPivotWindowMaximality(t *testing.T) {
	// Every returned pivot high must be >= all values in its closed window.
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 200)
	for i := range values {
		values[i] = 50 + rng.Float64()*10
	}

	lookback := 4
	for _, idx := range DetectPivotHighs(values, lookback) {
		for j := idx - lookback; j <= idx+lookback; j++ {
			if values[j] > values[idx] {
				t.Fatalf("pivot %d is not the window maximum: values[%d]=%v > %v", idx, j, values[j], values[idx])
			}
		}
	}
}

func TestDetectPivotsShortSeries(t *testing.T) {
	if got := DetectPivotHighs([]float64{1, 2, 3}, 2); got != nil {
		t.Errorf("series shorter than window should return nil, got %v", got)
	}
	if got := DetectPivotHighs([]float64{1, 2, 3, 4, 5}, 0); got != nil {
		t.Errorf("zero lookback should return nil, got %v", got)
	}
}
