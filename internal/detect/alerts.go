package detect

import (
	"context"
	"fmt"
	"math"
	"time"

	"trendline-trading-bot/internal/events"
	"trendline-trading-bot/internal/market"
)

// EvaluateAlertsForCandle classifies a new candle against every live
// trendline for the instrument. A close across the line is a break: the line
// is invalidated, the safety line is computed, and a break alert fires. A
// wick inside the alert tolerance with a non-crossing close is a touch.
// Break/invalidated alerts are deduplicated per trendline; touch alerts per
// (trendline, candle).
func (o *Orchestrator) EvaluateAlertsForCandle(ctx context.Context, userID, instrument string, candle market.Candle, candleIndex int) error {
	live, err := o.store.LiveTrendlines(ctx, userID, instrument)
	if err != nil {
		return fmt.Errorf("load live trendlines: %w", err)
	}

	for _, tl := range live {
		if err := o.evaluateLine(ctx, tl, candle, candleIndex); err != nil {
			o.logger.Error().Err(err).Int64("trendline_id", tl.ID).
				Msg("Alert evaluation failed for line, continuing")
		}
	}
	return nil
}

func (o *Orchestrator) evaluateLine(ctx context.Context, tl *Trendline, candle market.Candle, candleIndex int) error {
	line := projectAt(tl, candleIndex)
	tl.ProjectedPrice = line

	crossed := false
	var wick float64
	if tl.Direction == DirectionSupport {
		crossed = candle.Close < line
		wick = candle.Low
	} else {
		crossed = candle.Close > line
		wick = candle.High
	}

	if crossed {
		return o.handleBreak(ctx, tl, candle, candleIndex, line)
	}

	if candle.ATR > 0 && math.Abs(wick-line) <= o.cfg.AlertTouchToleranceATR*candle.ATR {
		return o.handleTouch(ctx, tl, candle, candleIndex, line, wick)
	}

	return o.store.SaveTrendline(ctx, tl)
}

// handleBreak invalidates the line, computes the safety line four candles
// past the break (the stop-loss reference for any resulting trade) and emits
// the one-shot break alert.
func (o *Orchestrator) handleBreak(ctx context.Context, tl *Trendline, candle market.Candle, candleIndex int, line float64) error {
	tl.SafetyPrice = projectAt(tl, candleIndex+o.cfg.SafetyLineOffsetCandles)

	if err := o.transition(ctx, tl, StatusInvalidated,
		fmt.Sprintf("body close %.2f crossed line %.2f", candle.Close, line)); err != nil {
		return err
	}

	o.emitAlert(ctx, tl, AlertBreak, candle,
		fmt.Sprintf("%s %s line broken at %.2f, safety line %.2f", tl.Instrument, tl.Direction, candle.Close, tl.SafetyPrice))
	return nil
}

// handleTouch records the touch and emits the alert. The alert row doubles as
// the replay guard: when it already exists the candle was processed, and
// re-evaluating it must not count the touch again.
func (o *Orchestrator) handleTouch(ctx context.Context, tl *Trendline, candle market.Candle, candleIndex int, line, wick float64) error {
	exists, err := o.alerts.HasTouchAlert(ctx, tl.ID, candle.Timestamp)
	if err != nil {
		return err
	}
	if exists {
		return o.store.SaveTrendline(ctx, tl)
	}

	tl.TouchCount++
	tl.Touches = append(tl.Touches, TouchPoint{Index: candleIndex, Price: wick, Distance: math.Abs(wick - line)})
	tl.LastTouchAt = candle.Timestamp
	tl.UpdatedAt = time.Now()
	if err := o.store.SaveTrendline(ctx, tl); err != nil {
		return err
	}

	o.emitAlert(ctx, tl, AlertTouch, candle,
		fmt.Sprintf("%s %s line touched at %.2f", tl.Instrument, tl.Direction, wick))
	return nil
}

// emitAlert persists the alert row and publishes it on the bus. One-shot
// alert types (break, invalidated, new_a_plus) are checked against the store
// before calling this.
func (o *Orchestrator) emitAlert(ctx context.Context, tl *Trendline, typ AlertType, candle market.Candle, message string) {
	if typ != AlertTouch {
		exists, err := o.alerts.HasAlert(ctx, tl.ID, typ)
		if err != nil || exists {
			return
		}
	}

	alert := &Alert{
		UserID:      tl.UserID,
		Instrument:  tl.Instrument,
		TrendlineID: tl.ID,
		Type:        typ,
		Direction:   tl.Direction,
		Price:       tl.ProjectedPrice,
		CandleTime:  candle.Timestamp,
		Message:     message,
		CreatedAt:   time.Now(),
	}
	if err := o.alerts.CreateAlert(ctx, alert); err != nil {
		o.logger.Error().Err(err).Int64("trendline_id", tl.ID).Str("type", string(typ)).
			Msg("Alert persist failed")
		return
	}

	if o.bus != nil {
		o.bus.Publish(events.Event{Type: events.EventAlertCreated, UserID: tl.UserID, Payload: alert})
	}
}
