// Package detect implements the trendline detection engine: pivot detection,
// candidate-line generation, touch scoring, grading, and the trendline state
// machine with break/touch alert evaluation.
package detect

import (
	"time"
)

// PivotType distinguishes swing highs from swing lows.
type PivotType string

const (
	PivotHigh PivotType = "HIGH"
	PivotLow  PivotType = "LOW"
)

// Direction is the trendline orientation. Support lines anchor on pivot
// lows, resistance lines on pivot highs.
type Direction string

const (
	DirectionSupport    Direction = "SUPPORT"
	DirectionResistance Direction = "RESISTANCE"
)

// PivotTypeFor returns the pivot type a trendline of this direction anchors on.
func (d Direction) PivotTypeFor() PivotType {
	if d == DirectionSupport {
		return PivotLow
	}
	return PivotHigh
}

// Pivot is a confirmed swing point. Created once and never mutated.
type Pivot struct {
	ID          int64     `json:"id"`
	Instrument  string    `json:"instrument"`
	CandleIndex int       `json:"candle_index"`
	Timestamp   time.Time `json:"timestamp"`
	Type        PivotType `json:"type"`
	Price       float64   `json:"price"`
	Lookback    int       `json:"lookback"`
}

// TrendlineStatus is the state machine position of a trendline.
type TrendlineStatus string

const (
	StatusDetected    TrendlineStatus = "detected"
	StatusQualifying  TrendlineStatus = "qualifying"
	StatusActive      TrendlineStatus = "active"
	StatusTraded      TrendlineStatus = "traded"
	StatusInvalidated TrendlineStatus = "invalidated"
	StatusExpired     TrendlineStatus = "expired"
)

// Grade buckets for qualifying trendlines. Candidates that match no tier are
// discarded before persistence, so a stored trendline always has a grade.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeNone  Grade = ""
)

// TouchPoint records one candle touching the line.
type TouchPoint struct {
	Index    int     `json:"index"`
	Price    float64 `json:"price"`
	Distance float64 `json:"distance"`
}

// Trendline is a scored geometric line through two anchor pivots.
type Trendline struct {
	ID                 int64           `json:"id"`
	UserID             string          `json:"user_id"`
	Instrument         string          `json:"instrument"`
	Direction          Direction       `json:"direction"`
	Anchor1            Pivot           `json:"anchor1"`
	Anchor2            Pivot           `json:"anchor2"`
	Slope              float64         `json:"slope"`
	SlopeDegrees       float64         `json:"slope_degrees"`
	TouchCount         int             `json:"touch_count"`
	Touches            []TouchPoint    `json:"touches"`
	SpacingQuality     float64         `json:"spacing_quality"`
	Score              float64         `json:"score"`
	DurationDays       int             `json:"duration_days"`
	ProjectedPrice     float64         `json:"projected_price"`
	SafetyPrice        float64         `json:"safety_price"`
	Grade              Grade           `json:"grade"`
	Status             TrendlineStatus `json:"status"`
	InvalidationReason string          `json:"invalidation_reason,omitempty"`
	LastTouchAt        time.Time       `json:"last_touch_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TrendlineEvent is one row of the append-only audit trail. Every state,
// grade or score transition writes exactly one event.
type TrendlineEvent struct {
	ID          int64     `json:"id"`
	TrendlineID int64     `json:"trendline_id"`
	Field       string    `json:"field"`
	OldValue    string    `json:"old_value"`
	NewValue    string    `json:"new_value"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// AlertType classifies the alerts the detection engine emits.
type AlertType string

const (
	AlertBreak       AlertType = "break"
	AlertTouch       AlertType = "touch"
	AlertInvalidated AlertType = "invalidated"
	AlertNewAPlus    AlertType = "new_a_plus"
)

// Alert is an emitted alert record. Delivery is the dispatcher's job; the
// engine only creates rows and publishes events.
type Alert struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	Instrument   string    `json:"instrument"`
	TrendlineID  int64     `json:"trendline_id"`
	Type         AlertType `json:"type"`
	Direction    Direction `json:"direction"`
	Price        float64   `json:"price"`
	CandleTime   time.Time `json:"candle_time"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// Config holds the detection tunables. Zero values are replaced by
// DefaultConfig in the orchestrator.
type Config struct {
	PivotLookback           int     `json:"pivot_lookback"`
	MaxSlopeDegrees         float64 `json:"max_slope_degrees"`
	BodyCrossTolerance      float64 `json:"body_cross_tolerance"`
	TouchToleranceATR       float64 `json:"touch_tolerance_atr"`
	AlertTouchToleranceATR  float64 `json:"alert_touch_tolerance_atr"`
	MinCandleSpacing        int     `json:"min_candle_spacing"`
	MaxLinesPerInstrument   int     `json:"max_lines_per_instrument"`
	PromotionATRMultiple    float64 `json:"promotion_atr_multiple"`
	ExpiryDays              int     `json:"expiry_days"`
	SafetyLineOffsetCandles int     `json:"safety_line_offset_candles"`
}

// DefaultConfig returns the stock detection parameters.
func DefaultConfig() Config {
	return Config{
		PivotLookback:           5,
		MaxSlopeDegrees:         60,
		BodyCrossTolerance:      1e-4,
		TouchToleranceATR:       1.0,
		AlertTouchToleranceATR:  0.5,
		MinCandleSpacing:        3,
		MaxLinesPerInstrument:   10,
		PromotionATRMultiple:    3.0,
		ExpiryDays:              180,
		SafetyLineOffsetCandles: 4,
	}
}
