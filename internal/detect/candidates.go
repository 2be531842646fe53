package detect

import (
	"math"

	"trendline-trading-bot/internal/market"
)

// Candidate is an unscored line through two anchor pivots that survived the
// slope ceiling and body-cross validation.
type Candidate struct {
	Direction    Direction
	Anchor1      Pivot
	Anchor2      Pivot
	Slope        float64
	SlopeDegrees float64
}

// ProjectPrice returns the candidate line's price at a candle index.
func (c Candidate) ProjectPrice(index int) float64 {
	return c.Anchor1.Price + c.Slope*float64(index-c.Anchor1.CandleIndex)
}

// SlopeDegrees normalizes a raw price-per-candle slope to visually invariant
// degrees using the series aspect ratio: one "unit" of price is
// priceRange/candleCount, so the same chart shape grades the same regardless
// of price scale.
func SlopeDegrees(slope, priceRange float64, candleCount int) float64 {
	if priceRange <= 0 || candleCount == 0 {
		return 0
	}
	unit := priceRange / float64(candleCount)
	return math.Atan(slope/unit) * 180 / math.Pi
}

// GenerateCandidates builds every valid candidate line for one direction
// from the confirmed pivots of that direction. The body-cross walk over every
// intermediate close is the dominant cost of the pipeline (O(n^2 * m)), so it
// runs over the dense close array rather than candle objects.
func GenerateCandidates(candles market.Series, pivots []Pivot, direction Direction, cfg Config) []Candidate {
	if len(pivots) < 2 {
		return nil
	}

	closes := candles.Closes()
	priceRange := candles.PriceRange()
	n := len(candles)

	var out []Candidate
	for i := 0; i < len(pivots)-1; i++ {
		for j := i + 1; j < len(pivots); j++ {
			a, b := pivots[i], pivots[j]
			gap := b.CandleIndex - a.CandleIndex
			if gap <= 0 {
				continue
			}

			slope := (b.Price - a.Price) / float64(gap)
			degrees := SlopeDegrees(slope, priceRange, n)
			if math.Abs(degrees) > cfg.MaxSlopeDegrees {
				continue
			}

			if !bodyCrossValid(closes, a, slope, b.CandleIndex, direction, cfg.BodyCrossTolerance) {
				continue
			}

			out = append(out, Candidate{
				Direction:    direction,
				Anchor1:      a,
				Anchor2:      b,
				Slope:        slope,
				SlopeDegrees: degrees,
			})
		}
	}
	return out
}

// bodyCrossValid walks every close strictly between the anchors. A support
// candidate tolerates closes down to line - tol; a resistance candidate up
// to line + tol. A single violating close invalidates the candidate.
func bodyCrossValid(closes []float64, anchor Pivot, slope float64, endIndex int, direction Direction, tol float64) bool {
	for k := anchor.CandleIndex + 1; k < endIndex; k++ {
		line := anchor.Price + slope*float64(k-anchor.CandleIndex)
		if direction == DirectionSupport {
			if closes[k] < line-tol {
				return false
			}
		} else {
			if closes[k] > line+tol {
				return false
			}
		}
	}
	return true
}
