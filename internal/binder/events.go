package binder

import (
	"log/slog"
	"slices"
	"sync"
)

// Event types
const (
	EventDeviceBound   = "device_bound"
	EventDeviceUnbound = "device_unbound"
	EventBindFailed    = "bind_failed"
)

// Event represents a binding event. Data is a *store.Session for bound and
// unbound events and a BindFailure for failed binds.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// BindFailure describes a device that could not be bound.
type BindFailure struct {
	IEEEAddress string `json:"ieee_address"`
	Model       string `json:"model"`
	Reason      string `json:"reason"`
	Error       string `json:"error"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

type subscription struct {
	id        uint64
	eventType string // empty matches every event
	handler   EventHandler
}

// EventBus provides pub/sub for binding events. Handlers run in the order
// they subscribed.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// On registers a handler for one event type and returns its unsubscribe
// function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	return eb.subscribe(eventType, handler)
}

// OnAll registers a handler that receives every event.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	return eb.subscribe("", handler)
}

func (eb *EventBus) subscribe(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.subs = append(eb.subs, subscription{id: id, eventType: eventType, handler: handler})
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.subs = slices.DeleteFunc(eb.subs, func(s subscription) bool { return s.id == id })
	}
}

// Emit calls the matching handlers synchronously. A panicking handler is
// logged and does not stop delivery to the others.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	var matched []EventHandler
	for _, s := range eb.subs {
		if s.eventType == "" || s.eventType == event.Type {
			matched = append(matched, s.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range matched {
		eb.deliver(h, event)
	}
}

func (eb *EventBus) deliver(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
		}
	}()
	h(event)
}
