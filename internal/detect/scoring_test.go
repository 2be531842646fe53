package detect

import (
	"testing"

	"trendline-trading-bot/internal/market"
)

func TestSpacingQualityTwoTouches(t *testing.T) {
	// A single gap has zero variance, so any two-element input scores 1.0.
	cases := [][]int{{0, 10}, {3, 4}, {100, 250}}
	for _, indices := range cases {
		if q := SpacingQuality(indices); q != 1.0 {
			t.Errorf("SpacingQuality(%v) = %v, want 1.0", indices, q)
		}
	}
}

func TestSpacingQualityDegenerate(t *testing.T) {
	if q := SpacingQuality(nil); q != 0 {
		t.Errorf("nil input should score 0, got %v", q)
	}
	if q := SpacingQuality([]int{5}); q != 0 {
		t.Errorf("single index should score 0, got %v", q)
	}
}

func TestSpacingQualityEvenBeatsUneven(t *testing.T) {
	even := SpacingQuality([]int{0, 10, 20, 30})
	uneven := SpacingQuality([]int{0, 2, 4, 30})
	if even != 1.0 {
		t.Errorf("perfectly even spacing should score 1.0, got %v", even)
	}
	if uneven >= even {
		t.Errorf("uneven spacing %v should score below even %v", uneven, even)
	}
	if uneven < 0 || uneven > 1 {
		t.Errorf("quality out of [0,1]: %v", uneven)
	}
}

func TestCompositeScoreMonotonicity(t *testing.T) {
	base := CompositeScore(4, 0.8, 90, 20)

	if got := CompositeScore(5, 0.8, 90, 20); got < base {
		t.Errorf("more touches lowered score: %v < %v", got, base)
	}
	if got := CompositeScore(4, 0.9, 90, 20); got < base {
		t.Errorf("better spacing lowered score: %v < %v", got, base)
	}
	if got := CompositeScore(4, 0.8, 120, 20); got < base {
		t.Errorf("longer duration lowered score: %v < %v", got, base)
	}
	if got := CompositeScore(4, 0.8, 90, 35); got > base {
		t.Errorf("steeper slope raised score: %v > %v", got, base)
	}
}

func TestCompositeScoreEdges(t *testing.T) {
	if got := CompositeScore(0, 1, 90, 0); got != 0 {
		t.Errorf("zero touches should score 0, got %v", got)
	}
	if got := CompositeScore(4, 1, 90, 95); got != 0 {
		t.Errorf("slope past 90 degrees should clamp to 0, got %v", got)
	}
}

func TestScoreTouchesCollapsesClosePairs(t *testing.T) {
	candles := flatSeries(60, 100)
	market.ComputeATR(candles, 14)

	// Two touches one candle apart: indices 30 and 31, 31 nearer the line.
	candles[30].Low = 100.8
	candles[31].Low = 100.2
	// A well-separated touch later.
	candles[45].Low = 100.1

	cand := Candidate{
		Direction: DirectionSupport,
		Anchor1:   Pivot{Instrument: "MNQ", CandleIndex: 20, Price: 100, Type: PivotLow},
		Anchor2:   Pivot{Instrument: "MNQ", CandleIndex: 45, Price: 100, Type: PivotLow},
		Slope:     0,
	}

	touches := ScoreTouches(candles, cand, 0.2, 3)
	if len(touches) != 2 {
		t.Fatalf("expected 2 touches after collapse, got %d: %+v", len(touches), touches)
	}
	if touches[0].Index != 31 {
		t.Errorf("collapse should keep the nearer touch (31), kept %d", touches[0].Index)
	}
	if touches[1].Index != 45 {
		t.Errorf("expected second touch at 45, got %d", touches[1].Index)
	}
}

func TestScoreTouchesExcludesCrossedClose(t *testing.T) {
	candles := flatSeries(60, 100)
	market.ComputeATR(candles, 14)

	// Wick at the line but the close crossed it: break candidate, not a touch.
	candles[30].Low = 99.9
	candles[30].Close = 99.5

	cand := Candidate{
		Direction: DirectionSupport,
		Anchor1:   Pivot{Instrument: "MNQ", CandleIndex: 20, Price: 100, Type: PivotLow},
		Anchor2:   Pivot{Instrument: "MNQ", CandleIndex: 50, Price: 100, Type: PivotLow},
		Slope:     0,
	}

	touches := ScoreTouches(candles, cand, 0.2, 3)
	for _, tp := range touches {
		if tp.Index == 30 {
			t.Errorf("crossed close at 30 must not count as a touch")
		}
	}
}

func TestSafetyLinePrice(t *testing.T) {
	cand := Candidate{
		Anchor1: Pivot{CandleIndex: 10, Price: 100},
		Slope:   0.5,
	}
	// Break at index 40, safety line projected 4 candles past it.
	got := SafetyLinePrice(cand, 40, 4)
	want := 100 + 0.5*float64(44-10)
	if got != want {
		t.Errorf("SafetyLinePrice = %v, want %v", got, want)
	}
}
