// Package events provides the in-process event bus that forms the
// broadcast boundary. Delivery is best-effort: handlers must not block,
// and subscribers that fall behind drop events rather than stalling
// publishers. Events from the same publisher are delivered to each
// subscriber in publish order.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of event.
type EventType string

const (
	// ValuationUpdated carries a fresh total-portfolio-worth sample.
	ValuationUpdated EventType = "valuation_update"
	// TradeExecuted is emitted after a trade has been durably logged.
	TradeExecuted EventType = "trade_executed"
	// HistoryRecorded is emitted after a durable valuation sample was stored.
	HistoryRecorded EventType = "history_recorded"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      EventType   `json:"type"`
	Module    string      `json:"module"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Handler receives published events. Handlers run on the publisher's
// goroutine and must return quickly (hand off to a channel, don't block).
type Handler func(event *Event)

// Bus is a topic-keyed fan-out of events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type. There is no
// unsubscribe: subscribers live for the process lifetime (SSE/websocket
// connections guard their own channels instead).
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to every handler subscribed to its type.
// Handlers are invoked synchronously in subscription order, so per-
// subscriber ordering follows publish order.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(event.Type)).
		Int("subscribers", len(handlers)).
		Msg("Publishing event")

	for _, handler := range handlers {
		handler(event)
	}
}

// PublishData wraps typed event data in an envelope and publishes it.
func (b *Bus) PublishData(module string, data EventData) {
	b.Publish(&Event{
		Type:      data.EventType(),
		Module:    module,
		Timestamp: time.Now(),
		Data:      data,
	})
}
