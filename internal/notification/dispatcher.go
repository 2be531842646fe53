package notification

import (
	"fmt"

	"github.com/rs/zerolog"

	"trendline-trading-bot/internal/detect"
	"trendline-trading-bot/internal/events"
	"trendline-trading-bot/internal/execution"
)

// Dispatcher subscribes to the event bus and turns domain events into
// notifications. Formatting happens here; delivery is the Manager's job.
type Dispatcher struct {
	manager *Manager
	logger  zerolog.Logger
}

func NewDispatcher(manager *Manager, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		manager: manager,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Attach wires the dispatcher to the bus.
func (d *Dispatcher) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventAlertCreated, d.onAlert)
	bus.Subscribe(events.EventPositionOpened, d.onPositionOpened)
	bus.Subscribe(events.EventPositionClosed, d.onPositionClosed)
	bus.Subscribe(events.EventCircuitBreakerTripped, d.onBreakerTripped)
}

func (d *Dispatcher) onAlert(evt events.Event) {
	alert, ok := evt.Payload.(*detect.Alert)
	if !ok {
		d.logger.Warn().Str("event", string(evt.Type)).Msg("unexpected payload type")
		return
	}

	d.send(&Notification{
		Type:       NotifyAlert,
		Title:      fmt.Sprintf("Trendline %s: %s", alert.Type, alert.Instrument),
		Message:    alert.Message,
		Instrument: alert.Instrument,
		Price:      alert.Price,
		Timestamp:  evt.Timestamp,
	})
}

func (d *Dispatcher) onPositionOpened(evt events.Event) {
	pos, ok := evt.Payload.(*execution.Position)
	if !ok {
		d.logger.Warn().Str("event", string(evt.Type)).Msg("unexpected payload type")
		return
	}

	d.send(&Notification{
		Type:  NotifyTradeOpen,
		Title: fmt.Sprintf("Position opened: %s", pos.Instrument),
		Message: fmt.Sprintf("%s %d %s @ %s\nSL: %s | TP: %s",
			pos.Direction, pos.Quantity, pos.Instrument,
			pos.EntryPrice.StringFixed(2), pos.StopPrice.StringFixed(2), pos.TargetPrice.StringFixed(2)),
		Instrument: pos.Instrument,
		Price:      pos.EntryPrice.InexactFloat64(),
		Timestamp:  evt.Timestamp,
	})
}

func (d *Dispatcher) onPositionClosed(evt events.Event) {
	pos, ok := evt.Payload.(*execution.Position)
	if !ok {
		d.logger.Warn().Str("event", string(evt.Type)).Msg("unexpected payload type")
		return
	}

	d.send(&Notification{
		Type:  NotifyTradeClose,
		Title: fmt.Sprintf("Position closed: %s", pos.Instrument),
		Message: fmt.Sprintf("%s → %s\nP&L: %s (%sR)\nReason: %s",
			pos.EntryPrice.StringFixed(2), pos.ExitPrice.StringFixed(2),
			pos.RealizedPnL.StringFixed(2), pos.RMultiple.StringFixed(2), pos.ExitReason),
		Instrument: pos.Instrument,
		Price:      pos.ExitPrice.InexactFloat64(),
		PnL:        pos.RealizedPnL.InexactFloat64(),
		Timestamp:  evt.Timestamp,
	})
}

func (d *Dispatcher) onBreakerTripped(evt events.Event) {
	d.send(&Notification{
		Type:      NotifyBreaker,
		Title:     "Circuit breaker tripped",
		Message:   fmt.Sprintf("Consecutive loss limit reached for user %s. New entries are blocked until a manual reset.", evt.UserID),
		Timestamp: evt.Timestamp,
	})
}

func (d *Dispatcher) send(n *Notification) {
	if err := d.manager.Send(n); err != nil {
		d.logger.Error().Err(err).Str("type", string(n.Type)).Msg("notification send failed")
	}
}
