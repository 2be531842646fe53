// Package market holds the market-data primitives shared by the detection,
// risk and execution layers: candles, ATR, contract specifications and the
// cross-instrument correlation table.
package market

import (
	"time"
)

// Timeframe identifies the candle aggregation interval.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Duration returns the wall-clock span of one candle at this timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Candle is a single OHLCV bar. Candles are immutable once written; the
// repository upserts them idempotently keyed by (instrument, timestamp,
// timeframe).
type Candle struct {
	ID         int64     `json:"id"`
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`
	Timeframe  Timeframe `json:"timeframe"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`

	// ATR is the rolling 14-period Wilder ATR as of this candle. Zero for
	// the first `period` candles of a series where no value exists yet.
	ATR float64 `json:"atr"`
}

// Series is an ordered slice of candles for one (instrument, timeframe).
type Series []Candle

// Highs returns the high prices as a dense array for the detection math.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].High
	}
	return out
}

// Lows returns the low prices as a dense array.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Low
	}
	return out
}

// Closes returns the close prices as a dense array.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Close
	}
	return out
}

// PriceRange returns max(high) - min(low) over the series, used for the
// aspect-ratio correction when normalizing slopes to degrees.
func (s Series) PriceRange() float64 {
	if len(s) == 0 {
		return 0
	}
	hi := s[0].High
	lo := s[0].Low
	for _, c := range s[1:] {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	return hi - lo
}
