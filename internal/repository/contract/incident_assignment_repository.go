package contract

import (
	"context"
	"time"

	"emergency-dispatch-be/internal/entity"

	"github.com/google/uuid"
)

type IncidentAssignmentRepository interface {
	Open(ctx context.Context, assignment *entity.IncidentAssignment) error
	// Close completes the open assignment of responderId for incidentId, if any.
	Close(ctx context.Context, incidentId, responderId string, at time.Time) error
	CloseIncident(ctx context.Context, incidentId string, at time.Time) error
	// Advance moves an open assignment of responderId forward to status.
	Advance(ctx context.Context, responderId string, id uuid.UUID, status entity.AssignmentStatus) (*entity.IncidentAssignment, error)
	FindByResponder(ctx context.Context, responderId string) ([]*entity.IncidentAssignment, error)
	FindByIncident(ctx context.Context, incidentId string) ([]*entity.IncidentAssignment, error)
}
