package escalation

import (
	"context"
	"time"

	"emergency-dispatch-be/internal/entity"
)

// Event names published with every session update.
const (
	EventSessionCreated        = "SESSION_CREATED"
	EventSessionUpdated        = "SESSION_UPDATED"
	EventSessionEscalated      = "SESSION_ESCALATED"
	EventResponderDispatched   = "RESPONDER_DISPATCHED"
	EventDispatchUnavailable   = "DISPATCH_UNAVAILABLE"
	EventResponderAssigned     = "RESPONDER_ASSIGNED"
	EventDispatcherConnected   = "DISPATCHER_CONNECTED"
	EventDispatcherMessage     = "DISPATCHER_MESSAGE"
	EventSessionResolved       = "SESSION_RESOLVED"
	EventClassificationChanged = "CLASSIFICATION_CHANGED"
)

// Update is one published mutation. Delivery is at-least-once and may be out of
// order across goroutines; consumers keep the highest Session.Version they saw.
type Update struct {
	Event   string
	Session entity.EmergencySession
	// Responders lists units reserved or released by this mutation, if any.
	Responders []entity.Responder
	At         time.Time
}

type Observer interface {
	Notify(ctx context.Context, update Update) error
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, update Update) error

func (f ObserverFunc) Notify(ctx context.Context, update Update) error {
	return f(ctx, update)
}
