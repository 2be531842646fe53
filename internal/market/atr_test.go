package market

import (
	"math"
	"testing"
	"time"
)

func makeSeries(n int) Series {
	candles := make(Series, n)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		base := 100.0 + float64(i)
		candles[i] = Candle{
			Instrument: "MNQ",
			Timestamp:  ts.Add(time.Duration(i) * 24 * time.Hour),
			Timeframe:  Timeframe1d,
			Open:       base,
			High:       base + 2,
			Low:        base - 2,
			Close:      base + 1,
			Volume:     1000,
		}
	}
	return candles
}

func TestTrueRange(t *testing.T) {
	cases := []struct {
		name                  string
		high, low, prevClose  float64
		want                  float64
	}{
		{"plain range", 105, 100, 102, 5},
		{"gap up", 110, 108, 100, 10},
		{"gap down", 95, 92, 100, 8},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TrueRange(tc.high, tc.low, tc.prevClose)
			if got != tc.want {
				t.Errorf("TrueRange(%v, %v, %v) = %v, want %v", tc.high, tc.low, tc.prevClose, got, tc.want)
			}
		})
	}
}

func TestComputeATRFirstPeriodHasNoValue(t *testing.T) {
	candles := makeSeries(30)
	ComputeATR(candles, DefaultATRPeriod)

	for i := 0; i < DefaultATRPeriod; i++ {
		if candles[i].ATR != 0 {
			t.Errorf("candle %d should have no ATR, got %v", i, candles[i].ATR)
		}
	}
	if candles[DefaultATRPeriod].ATR == 0 {
		t.Errorf("candle %d should have an ATR value", DefaultATRPeriod)
	}
}

func TestComputeATRWilderRecursion(t *testing.T) {
	candles := makeSeries(20)
	period := 14
	ComputeATR(candles, period)

	// With a constant +1 close drift and +/-2 wicks, every true range after
	// the first candle is high - prevClose = 3 vs high-low = 4, so TR = 4.
	// The seed average and every recursive step stay at 4.
	for i := period; i < len(candles); i++ {
		if math.Abs(candles[i].ATR-4.0) > 1e-9 {
			t.Fatalf("candle %d ATR = %v, want 4.0", i, candles[i].ATR)
		}
	}

	// Recompute one step by hand to pin the recursion shape.
	prev := candles[len(candles)-2].ATR
	tr := TrueRange(candles[len(candles)-1].High, candles[len(candles)-1].Low, candles[len(candles)-2].Close)
	want := (prev*float64(period-1) + tr) / float64(period)
	if math.Abs(candles[len(candles)-1].ATR-want) > 1e-9 {
		t.Errorf("last ATR = %v, want %v from Wilder recursion", candles[len(candles)-1].ATR, want)
	}
}

func TestComputeATRTooShortSeries(t *testing.T) {
	candles := makeSeries(10)
	ComputeATR(candles, 14)
	for i := range candles {
		if candles[i].ATR != 0 {
			t.Errorf("short series should have no ATR values, candle %d has %v", i, candles[i].ATR)
		}
	}
}

func TestDetectGaps(t *testing.T) {
	candles := makeSeries(5)
	// Push candles 3 and 4 out by an extra 5 days: a 6-day hole between 2 and 3.
	for i := 3; i < 5; i++ {
		candles[i].Timestamp = candles[i].Timestamp.Add(5 * 24 * time.Hour)
	}

	gaps := DetectGaps(candles)
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(gaps))
	}
	if gaps[0].Days != 6 {
		t.Errorf("gap days = %d, want 6", gaps[0].Days)
	}
}

func TestDetectGapsWeekendIsNotAGap(t *testing.T) {
	candles := makeSeries(3)
	// 3-day weekend hole is normal.
	candles[2].Timestamp = candles[1].Timestamp.Add(3 * 24 * time.Hour)
	if gaps := DetectGaps(candles); len(gaps) != 0 {
		t.Errorf("weekend hole reported as gap: %+v", gaps)
	}
}
