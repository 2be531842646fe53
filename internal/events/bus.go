// Package events provides the in-process event bus that fans detection,
// order and position updates out to the notification dispatcher and the
// websocket hub.
package events

import (
	"sync"
	"time"
)

// EventType represents the event categories flowing through the system.
type EventType string

const (
	EventAlertCreated          EventType = "ALERT_CREATED"
	EventTrendlinePromoted     EventType = "TRENDLINE_PROMOTED"
	EventTrendlineInvalidated  EventType = "TRENDLINE_INVALIDATED"
	EventSignalUpdate          EventType = "SIGNAL_UPDATE"
	EventOrderUpdate           EventType = "ORDER_UPDATE"
	EventPositionOpened        EventType = "POSITION_OPENED"
	EventPositionUpdate        EventType = "POSITION_UPDATE"
	EventPositionClosed        EventType = "POSITION_CLOSED"
	EventCircuitBreakerTripped EventType = "CIRCUIT_BREAKER_TRIPPED"
	EventCircuitBreakerReset   EventType = "CIRCUIT_BREAKER_RESET"
)

// Event is a system event. Payload carries the typed record that caused the
// event (an Alert, Order, Position, ...); subscribers type-assert as needed.
type Event struct {
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Subscriber is a function that handles events.
type Subscriber func(Event)

// Bus manages event publishing and subscriptions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (b *Bus) Subscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers a subscriber for all events.
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish sends an event to all matching subscribers. Subscribers run on the
// caller's goroutine; slow consumers should hand off internally.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subscribers[event.Type]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}
