package market

import "math"

// DefaultATRPeriod is the rolling window used for the trendline tolerance
// bands and the promotion/demotion distance checks.
const DefaultATRPeriod = 14

// TrueRange computes the true range of a candle given the previous close:
// max(h-l, |h-prevClose|, |l-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if v := math.Abs(high - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(low - prevClose); v > tr {
		tr = v
	}
	return tr
}

// ComputeATR fills the ATR field of each candle in place using Wilder
// smoothing. The first `period` candles carry no value (ATR stays 0): the
// value at index `period` is the simple average of the first `period` true
// ranges, and every candle after that follows the Wilder recursion
// atr = (prev*(period-1) + tr) / period.
func ComputeATR(candles Series, period int) {
	if period <= 0 || len(candles) <= period {
		return
	}

	trSum := 0.0
	for i := 1; i <= period; i++ {
		trSum += TrueRange(candles[i].High, candles[i].Low, candles[i-1].Close)
	}

	atr := trSum / float64(period)
	candles[period].ATR = atr

	for i := period + 1; i < len(candles); i++ {
		tr := TrueRange(candles[i].High, candles[i].Low, candles[i-1].Close)
		atr = (atr*float64(period-1) + tr) / float64(period)
		candles[i].ATR = atr
	}
}
