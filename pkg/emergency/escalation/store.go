package escalation

import (
	"context"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/pkg/emergency/lifecycle"
	"emergency-dispatch-be/pkg/emergency/matcher"
)

// SessionStore is the registry of live sessions plus the resolved history.
type SessionStore interface {
	Save(ctx context.Context, session *lifecycle.Session) error
	Find(ctx context.Context, id string) (*lifecycle.Session, bool)
	FindAll(ctx context.Context) []*lifecycle.Session
	// Archive drops the live session and keeps its final snapshot in history.
	Archive(ctx context.Context, snapshot entity.EmergencySession) error
	FindArchived(ctx context.Context, id string) (entity.EmergencySession, bool)
	FindAllArchived(ctx context.Context) []entity.EmergencySession
}

// AssignmentLog records reservations made for sessions. It is optional.
type AssignmentLog interface {
	Open(ctx context.Context, assignment *entity.IncidentAssignment) error
	Close(ctx context.Context, incidentId, responderId string, at time.Time) error
	CloseIncident(ctx context.Context, incidentId string, at time.Time) error
}

type Directory interface {
	Get(ctx context.Context, id string) (entity.Responder, error)
	Reserve(ctx context.Context, responderId, incidentId string) (entity.Responder, error)
	ReleaseFor(ctx context.Context, responderId, incidentId string) (entity.Responder, bool, error)
	ReleaseIncident(ctx context.Context, incidentId string) ([]entity.Responder, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req matcher.Request) (matcher.Result, error)
	Preview(ctx context.Context, location entity.Location, incidentType entity.IncidentType) (matcher.Result, error)
}
