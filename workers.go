package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/broker"
	"trendline-trading-bot/internal/database"
	"trendline-trading-bot/internal/detect"
	"trendline-trading-bot/internal/execution"
	"trendline-trading-bot/internal/market"
	"trendline-trading-bot/internal/queue"
)

const atrPeriod = 14

// workers binds queue task kinds to the domain services. Handlers return an
// error only for failures worth retrying; domain rejections are final and
// logged instead.
type workers struct {
	candles      *database.CandleRepository
	orchestrator *detect.Orchestrator
	processor    *execution.Processor
	paper        *broker.PaperAdapter
	logger       zerolog.Logger
}

func (w *workers) register(q *queue.Queue) {
	q.Register(queue.TaskCandleUpsert, w.handleCandleUpsert)
	q.Register(queue.TaskDetect, w.handleDetect)
	q.Register(queue.TaskRecalculate, w.handleRecalculate)
	q.Register(queue.TaskEvaluateAlerts, w.handleEvaluateAlerts)
	q.Register(queue.TaskCreateSignal, w.handleCreateSignal)
	q.Register(queue.TaskPriceUpdate, w.handlePriceUpdate)
	q.Register(queue.TaskReconcile, w.handleReconcile)
	q.Register(queue.TaskFlatten, w.handleFlatten)
}

func (w *workers) handleCandleUpsert(ctx context.Context, task *queue.Task) error {
	var req queue.CandleUpsertTask
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("decode candle task: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return fmt.Errorf("parse candle timestamp: %w", err)
	}

	candle := market.Candle{
		Instrument: req.Instrument,
		Timestamp:  ts,
		Timeframe:  market.Timeframe(req.Timeframe),
		Open:       req.Open,
		High:       req.High,
		Low:        req.Low,
		Close:      req.Close,
		Volume:     req.Volume,
	}
	if err := w.candles.Upsert(ctx, &candle); err != nil {
		return err
	}

	// Refresh the ATR of the latest bar now that it is part of the series.
	series, err := w.candles.Series(ctx, req.Instrument, market.Timeframe(req.Timeframe))
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return nil
	}
	market.ComputeATR(series, atrPeriod)
	last := series[len(series)-1]
	return w.candles.Upsert(ctx, &last)
}

func (w *workers) handleDetect(ctx context.Context, task *queue.Task) error {
	var req queue.DetectTask
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("decode detect task: %w", err)
	}
	return w.orchestrator.DetectForInstrument(ctx, req.UserID, req.Instrument)
}

func (w *workers) handleRecalculate(ctx context.Context, task *queue.Task) error {
	var req queue.DetectTask
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("decode recalculate task: %w", err)
	}
	w.orchestrator.RecalculateForUser(ctx, req.UserID, []string{req.Instrument})
	return nil
}

func (w *workers) handleEvaluateAlerts(ctx context.Context, task *queue.Task) error {
	var req queue.EvaluateAlertsTask
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("decode alerts task: %w", err)
	}

	series, err := w.candles.Series(ctx, req.Instrument, market.Timeframe1d)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		w.logger.Debug().Str("instrument", req.Instrument).Msg("no candles, skipping alert pass")
		return nil
	}
	market.ComputeATR(series, atrPeriod)
	last := len(series) - 1
	return w.orchestrator.EvaluateAlertsForCandle(ctx, req.UserID, req.Instrument, series[last], last)
}

func (w *workers) handleCreateSignal(ctx context.Context, task *queue.Task) error {
	var req queue.CreateSignalTask
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("decode signal task: %w", err)
	}

	sig := &execution.Signal{
		UserID:      req.UserID,
		Instrument:  req.Instrument,
		Direction:   execution.Direction(req.Direction),
		EntryType:   execution.EntryType(req.EntryType),
		Quantity:    req.Quantity,
		TrendlineID: req.TrendlineID,
	}
	if sig.EntryType == "" {
		sig.EntryType = execution.EntryMarket
	}
	var err error
	if sig.EntryPrice, err = decimal.NewFromString(req.EntryPrice); err != nil {
		return fmt.Errorf("parse entry price: %w", err)
	}
	if req.StopPrice != "" {
		if sig.StopPrice, err = decimal.NewFromString(req.StopPrice); err != nil {
			return fmt.Errorf("parse stop price: %w", err)
		}
	}
	if req.TargetPrice != "" {
		if sig.TargetPrice, err = decimal.NewFromString(req.TargetPrice); err != nil {
			return fmt.Errorf("parse target price: %w", err)
		}
	}

	if err := w.processor.CreateSignal(ctx, sig); err != nil {
		return w.finalizeOrRetry(err, "signal intake rejected")
	}
	if err := w.processor.ProcessSignal(ctx, sig.UserID, sig.ID); err != nil {
		return w.finalizeOrRetry(err, "signal execution rejected")
	}
	return nil
}

// finalizeOrRetry keeps domain rejections out of the retry loop. A rejected
// signal is already persisted with its reason; retrying would not change the
// outcome.
func (w *workers) finalizeOrRetry(err error, msg string) error {
	switch execution.CodeOf(err) {
	case execution.CodeInternal, execution.CodeBroker:
		return err
	default:
		w.logger.Info().Err(err).Msg(msg)
		return nil
	}
}

func (w *workers) handlePriceUpdate(ctx context.Context, task *queue.Task) error {
	var req queue.PriceUpdateTask
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("decode price task: %w", err)
	}
	last := decimal.NewFromFloat(req.Price)

	// Let the simulated venue trigger any resting stop or limit orders first;
	// the resulting fills flow back through the order update pump.
	if w.paper != nil {
		w.paper.EvaluatePending(ctx, req.Instrument, last)
	}
	return w.processor.UpdatePrice(ctx, req.UserID, req.Instrument, last)
}

func (w *workers) handleReconcile(ctx context.Context, task *queue.Task) error {
	var req queue.ReconcileTask
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("decode reconcile task: %w", err)
	}
	res, err := w.processor.Reconcile(ctx, req.UserID)
	if err != nil {
		return err
	}
	w.logger.Info().
		Int("checked", res.Checked).
		Int("resynced", res.Resynced).
		Int("failures", res.Failures).
		Msg("reconcile sweep complete")
	return nil
}

func (w *workers) handleFlatten(ctx context.Context, task *queue.Task) error {
	var req queue.FlattenTask
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("decode flatten task: %w", err)
	}
	res, err := w.processor.FlattenAll(ctx, req.UserID)
	if err != nil {
		return err
	}
	w.logger.Info().
		Int("positions_closed", res.PositionsClosed).
		Int("orders_cancelled", res.OrdersCancelled).
		Int("failures", res.Failures).
		Msg("flatten complete")
	return nil
}
