package events

import (
	"strings"
	"time"
)

const (
	StreamName    = "EVENTS"
	SubjectPrefix = "events."
	AllSubjects   = SubjectPrefix + ">"
)

// Event defines the contract for everything published on the event bus.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_ESCALATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Envelope is the wire form of an event, so consumers get the type and time
// back without parsing the subject.
type Envelope struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

func Wrap(e Event) Envelope {
	return Envelope{Type: e.EventType(), OccurredAt: e.Timestamp(), Data: e.Payload()}
}

func (e Envelope) Event() BaseEvent {
	return BaseEvent{Type: e.Type, Data: e.Data, OccurredAt: e.OccurredAt}
}

// Subject maps an event type onto its subject: SESSION_ESCALATED -> events.session_escalated.
func Subject(eventType string) string {
	return SubjectPrefix + strings.ToLower(eventType)
}

// TypeFromSubject is the inverse of Subject.
func TypeFromSubject(subject string) string {
	return strings.ToUpper(strings.TrimPrefix(subject, SubjectPrefix))
}
