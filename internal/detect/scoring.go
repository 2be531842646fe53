package detect

import (
	"math"

	"trendline-trading-bot/internal/market"
)

// ScoreTouches scans forward from the first anchor and collects every candle
// touching the candidate line. A candle is a touch iff its relevant wick lies
// within tolMult x ATR of the projected line and its close stays on the valid
// side; a close that crosses the line is a break candidate, not a touch.
// Consecutive touches closer than minSpacing candles collapse to the one
// nearer the line.
func ScoreTouches(candles market.Series, cand Candidate, tolMult float64, minSpacing int) []TouchPoint {
	var touches []TouchPoint

	for k := cand.Anchor1.CandleIndex; k < len(candles); k++ {
		c := candles[k]
		if c.ATR <= 0 {
			continue
		}

		line := cand.ProjectPrice(k)
		tol := tolMult * c.ATR

		var wick float64
		var onValidSide bool
		if cand.Direction == DirectionSupport {
			wick = c.Low
			onValidSide = c.Close >= line
		} else {
			wick = c.High
			onValidSide = c.Close <= line
		}

		dist := math.Abs(wick - line)
		if dist > tol || !onValidSide {
			continue
		}

		tp := TouchPoint{Index: k, Price: wick, Distance: dist}
		if len(touches) > 0 {
			last := touches[len(touches)-1]
			if k-last.Index < minSpacing {
				// Collapse: keep whichever touch sits nearer the line.
				if dist < last.Distance {
					touches[len(touches)-1] = tp
				}
				continue
			}
		}
		touches = append(touches, tp)
	}
	return touches
}

// SpacingQuality measures how evenly spaced the touches are:
// 1 - stddev(gaps)/mean(gaps), clamped to [0,1]. Fewer than two touch
// indices yield 0; exactly two touches (one gap, zero variance) yield 1.
func SpacingQuality(indices []int) float64 {
	if len(indices) < 2 {
		return 0
	}

	gaps := make([]float64, 0, len(indices)-1)
	for i := 1; i < len(indices); i++ {
		gaps = append(gaps, float64(indices[i]-indices[i-1]))
	}

	mean := 0.0
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	stddev := math.Sqrt(variance)

	q := 1 - stddev/mean
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

// CompositeScore ranks candidates:
// touches x spacing x log2(durationWeeks+1) x (1 - |slopeDegrees|/90).
// Monotonically non-decreasing in touch count, spacing quality and duration,
// non-increasing in slope steepness.
func CompositeScore(touchCount int, spacingQuality float64, durationDays int, slopeDegrees float64) float64 {
	if touchCount <= 0 {
		return 0
	}
	weeks := float64(durationDays) / 7.0
	steepness := 1 - math.Abs(slopeDegrees)/90.0
	if steepness < 0 {
		steepness = 0
	}
	return float64(touchCount) * spacingQuality * math.Log2(weeks+1) * steepness
}

// SafetyLinePrice projects the line a fixed number of candles past the break
// candle. The result is the stop-loss reference for any trade taken off the
// break.
func SafetyLinePrice(cand Candidate, breakIndex, offsetCandles int) float64 {
	return cand.ProjectPrice(breakIndex + offsetCandles)
}

// TouchIndices extracts the candle indices of a touch list.
func TouchIndices(touches []TouchPoint) []int {
	out := make([]int, len(touches))
	for i, t := range touches {
		out[i] = t.Index
	}
	return out
}
