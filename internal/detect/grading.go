package detect

// Tier is one row of the grading rubric.
type Tier struct {
	MinTouches       int     `json:"min_touches"`
	MinSpacing       float64 `json:"min_spacing"`        // minimum average gap between touches, in candles
	MaxSlopeDegrees  float64 `json:"max_slope_degrees"`
	MinDurationDays  int     `json:"min_duration_days"`
	MinEntryZoneDays int     `json:"min_entry_zone_days"` // days since last touch
}

// Rubric holds the three grading tiers, checked A+ -> A -> B, first match
// wins. User overrides shift only the A+ tier; A and B are derived from it
// by fixed deltas and never fall below their hard-coded floors.
type Rubric struct {
	APlus Tier
	A     Tier
	B     Tier
}

// Default A+ tier. A and B derive from it.
func defaultAPlusTier() Tier {
	return Tier{
		MinTouches:       4,
		MinSpacing:       20,
		MaxSlopeDegrees:  30,
		MinDurationDays:  90,
		MinEntryZoneDays: 5,
	}
}

// Hard floors. Derived tiers may never be weaker than these, no matter how
// far a user loosens the A+ tier.
var (
	floorA = Tier{MinTouches: 3, MinSpacing: 12, MaxSlopeDegrees: 40, MinDurationDays: 45, MinEntryZoneDays: 0}
	floorB = Tier{MinTouches: 2, MinSpacing: 10, MaxSlopeDegrees: 45, MinDurationDays: 30, MinEntryZoneDays: 0}
)

// DefaultRubric builds the rubric from the stock A+ tier.
func DefaultRubric() Rubric {
	return RubricFromAPlus(defaultAPlusTier())
}

// RubricFromAPlus derives the full rubric from a (possibly user-overridden)
// A+ tier. Deltas: each lower tier drops one touch, five candles of spacing
// and thirty days of duration, loosens the slope ceiling, and shortens the
// entry zone.
func RubricFromAPlus(aPlus Tier) Rubric {
	a := Tier{
		MinTouches:       aPlus.MinTouches - 1,
		MinSpacing:       aPlus.MinSpacing - 5,
		MaxSlopeDegrees:  aPlus.MaxSlopeDegrees + 10,
		MinDurationDays:  aPlus.MinDurationDays - 30,
		MinEntryZoneDays: aPlus.MinEntryZoneDays - 2,
	}
	b := Tier{
		MinTouches:       a.MinTouches - 1,
		MinSpacing:       a.MinSpacing - 5,
		MaxSlopeDegrees:  a.MaxSlopeDegrees + 5,
		MinDurationDays:  a.MinDurationDays - 30,
		MinEntryZoneDays: a.MinEntryZoneDays - 2,
	}
	return Rubric{
		APlus: aPlus,
		A:     clampToFloor(a, floorA),
		B:     clampToFloor(b, floorB),
	}
}

// clampToFloor prevents a derived tier from being weaker than its floor:
// minimum thresholds may not drop below the floor and the slope ceiling may
// not rise above it.
func clampToFloor(t, floor Tier) Tier {
	if t.MinTouches < floor.MinTouches {
		t.MinTouches = floor.MinTouches
	}
	if t.MinSpacing < floor.MinSpacing {
		t.MinSpacing = floor.MinSpacing
	}
	if t.MaxSlopeDegrees > floor.MaxSlopeDegrees {
		t.MaxSlopeDegrees = floor.MaxSlopeDegrees
	}
	if t.MinDurationDays < floor.MinDurationDays {
		t.MinDurationDays = floor.MinDurationDays
	}
	if t.MinEntryZoneDays < floor.MinEntryZoneDays {
		t.MinEntryZoneDays = floor.MinEntryZoneDays
	}
	return t
}

// GradeInput carries the measured line properties the rubric grades on.
type GradeInput struct {
	TouchCount        int
	AvgSpacing        float64 // average gap between touches, in candles
	SlopeDegrees      float64
	DurationDays      int
	DaysSinceLastTouch int
}

// GradeLine checks the tiers in order and returns the first match, or
// GradeNone when the line matches no tier (caller discards it).
func (r Rubric) GradeLine(in GradeInput) Grade {
	if matchesTier(in, r.APlus) {
		return GradeAPlus
	}
	if matchesTier(in, r.A) {
		return GradeA
	}
	if matchesTier(in, r.B) {
		return GradeB
	}
	return GradeNone
}

func matchesTier(in GradeInput, t Tier) bool {
	if in.TouchCount < t.MinTouches {
		return false
	}
	if in.AvgSpacing < t.MinSpacing {
		return false
	}
	if abs(in.SlopeDegrees) > t.MaxSlopeDegrees {
		return false
	}
	if in.DurationDays < t.MinDurationDays {
		return false
	}
	if in.DaysSinceLastTouch < t.MinEntryZoneDays {
		return false
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
