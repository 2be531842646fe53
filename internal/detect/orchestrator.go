package detect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"trendline-trading-bot/internal/events"
	"trendline-trading-bot/internal/market"
)

// TrendlineStore is the persistence contract the orchestrator needs for
// trendlines, pivots and the append-only event log.
type TrendlineStore interface {
	SavePivot(ctx context.Context, p *Pivot) error
	SaveTrendline(ctx context.Context, tl *Trendline) error
	LiveTrendlines(ctx context.Context, userID, instrument string) ([]*Trendline, error) // active + qualifying
	TrendlineByID(ctx context.Context, userID string, id int64) (*Trendline, error)
	AppendEvent(ctx context.Context, evt *TrendlineEvent) error
}

// AlertStore persists alerts and answers the dedup queries.
type AlertStore interface {
	HasAlert(ctx context.Context, trendlineID int64, typ AlertType) (bool, error)
	HasTouchAlert(ctx context.Context, trendlineID int64, candleTime time.Time) (bool, error)
	CreateAlert(ctx context.Context, a *Alert) error
}

// CandleSource loads candle series for detection runs.
type CandleSource interface {
	Series(ctx context.Context, instrument string, tf market.Timeframe) (market.Series, error)
}

// Orchestrator drives the detection pipeline: it loads candles, runs the
// pivot/candidate/scoring library, persists qualifying trendlines, manages
// the trendline state machine and evaluates break/touch alerts.
type Orchestrator struct {
	store   TrendlineStore
	alerts  AlertStore
	candles CandleSource
	bus     *events.Bus
	cfg     Config
	rubric  Rubric
	logger  zerolog.Logger
}

// NewOrchestrator wires the detection orchestrator. A nil bus disables event
// publication (CLI runs).
func NewOrchestrator(store TrendlineStore, alerts AlertStore, candles CandleSource, bus *events.Bus, cfg Config, rubric Rubric, logger zerolog.Logger) *Orchestrator {
	if cfg.PivotLookback == 0 {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		store:   store,
		alerts:  alerts,
		candles: candles,
		bus:     bus,
		cfg:     cfg,
		rubric:  rubric,
		logger:  logger.With().Str("component", "detect").Logger(),
	}
}

// DetectForInstrument runs a full detection pass for one user/instrument:
// pivots, candidates, scoring, grading, truncation and persistence. It also
// reconciles the state machine of already-stored lines against the latest
// candle. Failures on one line are logged and do not abort the pass.
func (o *Orchestrator) DetectForInstrument(ctx context.Context, userID, instrument string) error {
	candles, err := o.candles.Series(ctx, instrument, market.Timeframe1d)
	if err != nil {
		return fmt.Errorf("load candles for %s: %w", instrument, err)
	}
	if len(candles) < 2*o.cfg.PivotLookback+1 {
		return nil
	}

	highIdx := DetectPivotHighs(candles.Highs(), o.cfg.PivotLookback)
	lowIdx := DetectPivotLows(candles.Lows(), o.cfg.PivotLookback)

	highPivots := o.persistPivots(ctx, candles, highIdx, PivotHigh)
	lowPivots := o.persistPivots(ctx, candles, lowIdx, PivotLow)

	created := 0
	for _, dir := range []Direction{DirectionSupport, DirectionResistance} {
		pivots := lowPivots
		if dir == DirectionResistance {
			pivots = highPivots
		}
		n, err := o.detectDirection(ctx, userID, instrument, candles, pivots, dir)
		if err != nil {
			o.logger.Error().Err(err).Str("instrument", instrument).Str("direction", string(dir)).
				Msg("Detection failed for direction, continuing")
			continue
		}
		created += n
	}

	if err := o.reconcileStates(ctx, userID, instrument, candles); err != nil {
		o.logger.Error().Err(err).Str("instrument", instrument).Msg("State reconcile failed")
	}

	o.logger.Info().Str("instrument", instrument).Str("user_id", userID).
		Int("pivot_highs", len(highIdx)).Int("pivot_lows", len(lowIdx)).Int("lines_created", created).
		Msg("Detection pass complete")
	return nil
}

// RecalculateForUser re-runs detection across a user's instruments after a
// settings change. A failure on one instrument logs and continues.
func (o *Orchestrator) RecalculateForUser(ctx context.Context, userID string, instruments []string) {
	for _, instrument := range instruments {
		if err := o.DetectForInstrument(ctx, userID, instrument); err != nil {
			o.logger.Error().Err(err).Str("user_id", userID).Str("instrument", instrument).
				Msg("Recalculate failed for instrument, continuing")
		}
	}
}

// MarkTraded moves a live trendline to traded when a signal against it
// completes. traded lines only ever move on to invalidated.
func (o *Orchestrator) MarkTraded(ctx context.Context, userID string, trendlineID int64) error {
	tl, err := o.store.TrendlineByID(ctx, userID, trendlineID)
	if err != nil {
		return err
	}
	if tl.Status != StatusActive && tl.Status != StatusQualifying {
		return fmt.Errorf("trendline %d in status %s cannot be marked traded", trendlineID, tl.Status)
	}
	return o.transition(ctx, tl, StatusTraded, "signal completed against line")
}

func (o *Orchestrator) persistPivots(ctx context.Context, candles market.Series, indices []int, typ PivotType) []Pivot {
	pivots := make([]Pivot, 0, len(indices))
	for _, i := range indices {
		price := candles[i].High
		if typ == PivotLow {
			price = candles[i].Low
		}
		p := Pivot{
			Instrument:  candles[i].Instrument,
			CandleIndex: i,
			Timestamp:   candles[i].Timestamp,
			Type:        typ,
			Price:       price,
			Lookback:    o.cfg.PivotLookback,
		}
		if err := o.store.SavePivot(ctx, &p); err != nil {
			o.logger.Error().Err(err).Int("index", i).Msg("Pivot persist failed, continuing")
			continue
		}
		pivots = append(pivots, p)
	}
	return pivots
}

func (o *Orchestrator) detectDirection(ctx context.Context, userID, instrument string, candles market.Series, pivots []Pivot, dir Direction) (int, error) {
	cands := GenerateCandidates(candles, pivots, dir, o.cfg)
	if len(cands) == 0 {
		return 0, nil
	}

	existing, err := o.store.LiveTrendlines(ctx, userID, instrument)
	if err != nil {
		return 0, fmt.Errorf("load live trendlines: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, tl := range existing {
		seen[anchorKey(tl.Direction, tl.Anchor1.CandleIndex, tl.Anchor2.CandleIndex)] = true
	}

	last := len(candles) - 1
	scored := make([]*Trendline, 0, len(cands))
	for _, cand := range cands {
		tl := o.buildTrendline(userID, candles, cand, last)
		if tl == nil {
			continue // no grade: discard, never stored
		}
		if seen[anchorKey(tl.Direction, tl.Anchor1.CandleIndex, tl.Anchor2.CandleIndex)] {
			continue
		}
		scored = append(scored, tl)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > o.cfg.MaxLinesPerInstrument {
		scored = scored[:o.cfg.MaxLinesPerInstrument]
	}

	created := 0
	for _, tl := range scored {
		if err := o.store.SaveTrendline(ctx, tl); err != nil {
			o.logger.Error().Err(err).Str("instrument", instrument).Msg("Trendline persist failed, continuing")
			continue
		}
		o.logEvent(ctx, tl.ID, "status", "", string(StatusDetected), "detected and graded "+string(tl.Grade))
		created++

		if err := o.transition(ctx, tl, StatusQualifying, "graded line enters qualification"); err != nil {
			o.logger.Error().Err(err).Int64("trendline_id", tl.ID).Msg("Qualification transition failed")
			continue
		}

		if tl.Grade == GradeAPlus {
			o.emitAlert(ctx, tl, AlertNewAPlus, candles[last],
				fmt.Sprintf("new A+ %s line on %s at %.2f", tl.Direction, instrument, tl.ProjectedPrice))
		}

		// Promote immediately when the fresh line is already in the entry zone.
		if err := o.applyPromotion(ctx, tl, candles[last]); err != nil {
			o.logger.Error().Err(err).Int64("trendline_id", tl.ID).Msg("Promotion check failed")
		}
	}
	return created, nil
}

// buildTrendline scores and grades one candidate. Returns nil when the
// candidate matches no grading tier.
func (o *Orchestrator) buildTrendline(userID string, candles market.Series, cand Candidate, lastIndex int) *Trendline {
	touches := ScoreTouches(candles, cand, o.cfg.TouchToleranceATR, o.cfg.MinCandleSpacing)
	if len(touches) == 0 {
		return nil
	}

	indices := TouchIndices(touches)
	quality := SpacingQuality(indices)
	durationDays := int(candles[lastIndex].Timestamp.Sub(candles[cand.Anchor1.CandleIndex].Timestamp).Hours() / 24)
	lastTouch := candles[indices[len(indices)-1]].Timestamp
	daysSinceTouch := int(candles[lastIndex].Timestamp.Sub(lastTouch).Hours() / 24)

	avgSpacing := 0.0
	if len(indices) > 1 {
		avgSpacing = float64(indices[len(indices)-1]-indices[0]) / float64(len(indices)-1)
	}

	grade := o.rubric.GradeLine(GradeInput{
		TouchCount:         len(touches),
		AvgSpacing:         avgSpacing,
		SlopeDegrees:       cand.SlopeDegrees,
		DurationDays:       durationDays,
		DaysSinceLastTouch: daysSinceTouch,
	})
	if grade == GradeNone {
		return nil
	}

	now := time.Now()
	return &Trendline{
		UserID:         userID,
		Instrument:     cand.Anchor1.Instrument,
		Direction:      cand.Direction,
		Anchor1:        cand.Anchor1,
		Anchor2:        cand.Anchor2,
		Slope:          cand.Slope,
		SlopeDegrees:   cand.SlopeDegrees,
		TouchCount:     len(touches),
		Touches:        touches,
		SpacingQuality: quality,
		Score:          CompositeScore(len(touches), quality, durationDays, cand.SlopeDegrees),
		DurationDays:   durationDays,
		ProjectedPrice: cand.ProjectPrice(lastIndex),
		Grade:          grade,
		Status:         StatusDetected,
		LastTouchAt:    lastTouch,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// reconcileStates walks every live trendline and applies promotion,
// demotion and expiry against the latest candle.
func (o *Orchestrator) reconcileStates(ctx context.Context, userID, instrument string, candles market.Series) error {
	live, err := o.store.LiveTrendlines(ctx, userID, instrument)
	if err != nil {
		return err
	}
	last := candles[len(candles)-1]
	lastIndex := len(candles) - 1

	for _, tl := range live {
		tl.ProjectedPrice = projectAt(tl, lastIndex)

		if !tl.LastTouchAt.IsZero() && last.Timestamp.Sub(tl.LastTouchAt) > time.Duration(o.cfg.ExpiryDays)*24*time.Hour {
			if err := o.transition(ctx, tl, StatusExpired,
				fmt.Sprintf("no touch in %d days", o.cfg.ExpiryDays)); err != nil {
				o.logger.Error().Err(err).Int64("trendline_id", tl.ID).Msg("Expiry transition failed")
			}
			continue
		}

		if err := o.applyPromotion(ctx, tl, last); err != nil {
			o.logger.Error().Err(err).Int64("trendline_id", tl.ID).Msg("Promotion reconcile failed")
		}
	}
	return nil
}

// applyPromotion promotes a qualifying A+ line whose projection is within
// the ATR band of the latest close, and demotes an active line that drifted
// back out of it.
func (o *Orchestrator) applyPromotion(ctx context.Context, tl *Trendline, last market.Candle) error {
	if last.ATR <= 0 {
		return nil
	}
	distance := math.Abs(tl.ProjectedPrice - last.Close)
	band := o.cfg.PromotionATRMultiple * last.ATR

	switch {
	case tl.Status == StatusQualifying && tl.Grade == GradeAPlus && distance <= band:
		return o.transition(ctx, tl, StatusActive,
			fmt.Sprintf("projected price within %.1fxATR of close", o.cfg.PromotionATRMultiple))
	case tl.Status == StatusActive && distance > band:
		return o.transition(ctx, tl, StatusQualifying,
			fmt.Sprintf("projected price beyond %.1fxATR of close", o.cfg.PromotionATRMultiple))
	}
	return o.store.SaveTrendline(ctx, tl)
}

// transition moves a trendline to a new status, persists it and appends the
// audit event. The event log is the audit trail and is never skipped.
func (o *Orchestrator) transition(ctx context.Context, tl *Trendline, to TrendlineStatus, reason string) error {
	from := tl.Status
	if from == to {
		return nil
	}
	tl.Status = to
	tl.UpdatedAt = time.Now()
	if to == StatusInvalidated || to == StatusExpired {
		tl.InvalidationReason = reason
	}
	if err := o.store.SaveTrendline(ctx, tl); err != nil {
		tl.Status = from
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}
	o.logEvent(ctx, tl.ID, "status", string(from), string(to), reason)

	if o.bus != nil {
		switch to {
		case StatusActive:
			o.bus.Publish(events.Event{Type: events.EventTrendlinePromoted, UserID: tl.UserID, Payload: tl})
		case StatusInvalidated:
			o.bus.Publish(events.Event{Type: events.EventTrendlineInvalidated, UserID: tl.UserID, Payload: tl})
		}
	}
	return nil
}

func (o *Orchestrator) logEvent(ctx context.Context, trendlineID int64, field, oldVal, newVal, reason string) {
	evt := &TrendlineEvent{
		TrendlineID: trendlineID,
		Field:       field,
		OldValue:    oldVal,
		NewValue:    newVal,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	if err := o.store.AppendEvent(ctx, evt); err != nil {
		o.logger.Error().Err(err).Int64("trendline_id", trendlineID).Msg("Audit event append failed")
	}
}

func projectAt(tl *Trendline, index int) float64 {
	return tl.Anchor1.Price + tl.Slope*float64(index-tl.Anchor1.CandleIndex)
}

func anchorKey(dir Direction, a, b int) string {
	return fmt.Sprintf("%s:%d:%d", dir, a, b)
}
