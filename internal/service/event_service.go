package service

import (
	"context"

	"emergency-dispatch-be/pkg/emergency/escalation"
	"emergency-dispatch-be/pkg/events"
)

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// EventService turns session updates into lifecycle events on the event bus.
// Plain edits (messages, steps) stay on the snapshot path only.
type EventService struct {
	publisher EventPublisher
}

func NewEventService(publisher EventPublisher) *EventService {
	return &EventService{publisher: publisher}
}

var lifecycleEvents = map[string]bool{
	escalation.EventSessionCreated:        true,
	escalation.EventSessionEscalated:      true,
	escalation.EventResponderDispatched:   true,
	escalation.EventDispatchUnavailable:   true,
	escalation.EventResponderAssigned:     true,
	escalation.EventDispatcherConnected:   true,
	escalation.EventSessionResolved:       true,
	escalation.EventClassificationChanged: true,
}

func (s *EventService) Notify(ctx context.Context, update escalation.Update) error {
	if !lifecycleEvents[update.Event] {
		return nil
	}

	session := update.Session
	data := map[string]interface{}{
		"session_id": session.Id,
		"status":     string(session.Status),
		"type":       string(session.EffectiveType()),
		"severity":   string(session.EffectiveSeverity()),
		"priority":   session.Priority(),
		"version":    session.Version,
	}
	if session.AssignedResponder != nil {
		data["assigned_responder_id"] = session.AssignedResponder.Id
	}
	if len(update.Responders) > 0 {
		ids := make([]string, len(update.Responders))
		for i, r := range update.Responders {
			ids[i] = r.Id
		}
		data["responder_ids"] = ids
	}

	return s.publisher.Publish(ctx, events.BaseEvent{
		Type:       update.Event,
		Data:       data,
		OccurredAt: update.At,
	})
}
