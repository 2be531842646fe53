package detect

// DetectPivotHighs returns the indices of confirmed pivot highs in a high
// series. Index i is a pivot high iff highs[i] is the maximum of the closed
// window [i-lookback, i+lookback] and i has lookback candles of context on
// both sides. Flat plateaus resolve to the leftmost index: an equal value
// earlier in the window disqualifies the later candidate.
func DetectPivotHighs(highs []float64, lookback int) []int {
	return detectPivots(highs, lookback, func(candidate, other float64) bool {
		return other > candidate
	})
}

// DetectPivotLows is the symmetric minimum-based check on the low series.
func DetectPivotLows(lows []float64, lookback int) []int {
	return detectPivots(lows, lookback, func(candidate, other float64) bool {
		return other < candidate
	})
}

// detectPivots walks the series once per candidate window. beats reports
// whether another value in the window beats the candidate outright; an equal
// value to the left claims a shared plateau.
func detectPivots(values []float64, lookback int, beats func(candidate, other float64) bool) []int {
	if lookback <= 0 || len(values) < 2*lookback+1 {
		return nil
	}

	var out []int
	for i := lookback; i < len(values)-lookback; i++ {
		v := values[i]
		confirmed := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if beats(v, values[j]) || (j < i && values[j] == v) {
				confirmed = false
				break
			}
		}
		if confirmed {
			out = append(out, i)
		}
	}
	return out
}
