package market

import "sync"

// CorrelationTable stores symmetric pairwise correlations between full-size
// symbols. Lookups sort the pair lexicographically so only one direction is
// stored.
type CorrelationTable struct {
	mu    sync.RWMutex
	pairs map[[2]string]float64
}

// NewCorrelationTable creates a table seeded with the default equity-index,
// metals and energy relationships.
func NewCorrelationTable() *CorrelationTable {
	t := &CorrelationTable{pairs: make(map[[2]string]float64)}
	seed := []struct {
		a, b string
		c    float64
	}{
		{"ES", "NQ", 0.92},
		{"ES", "YM", 0.95},
		{"ES", "RTY", 0.85},
		{"NQ", "YM", 0.88},
		{"NQ", "RTY", 0.78},
		{"RTY", "YM", 0.82},
		{"CL", "GC", 0.25},
		{"ES", "GC", 0.10},
		{"NQ", "GC", 0.08},
	}
	for _, s := range seed {
		t.Set(s.a, s.b, s.c)
	}
	return t
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Set records the correlation between two full-size symbols.
func (t *CorrelationTable) Set(a, b string, corr float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pairs[pairKey(a, b)] = corr
}

// Correlation returns the pairwise correlation, or 0 when the pair is
// unknown. A symbol is always fully correlated with itself.
func (t *CorrelationTable) Correlation(a, b string) float64 {
	if a == b {
		return 1.0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pairs[pairKey(a, b)]
}
