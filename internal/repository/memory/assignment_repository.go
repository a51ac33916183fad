package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"emergency-dispatch-be/internal/entity"

	"github.com/google/uuid"
)

// AssignmentRepository is the in-process assignment log used when no database
// is configured.
type AssignmentRepository struct {
	mu   sync.RWMutex
	rows []entity.IncidentAssignment
}

func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{}
}

func (r *AssignmentRepository) Open(_ context.Context, a *entity.IncidentAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, cloneAssignment(*a))
	return nil
}

func (r *AssignmentRepository) Close(_ context.Context, incidentId, responderId string, at time.Time) error {
	r.closeWhere(at, func(a entity.IncidentAssignment) bool {
		return a.IncidentId == incidentId && a.ResponderId == responderId
	})
	return nil
}

func (r *AssignmentRepository) CloseIncident(_ context.Context, incidentId string, at time.Time) error {
	r.closeWhere(at, func(a entity.IncidentAssignment) bool { return a.IncidentId == incidentId })
	return nil
}

func (r *AssignmentRepository) Advance(_ context.Context, responderId string, id uuid.UUID, status entity.AssignmentStatus) (*entity.IncidentAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		row := &r.rows[i]
		if row.Id != id || row.ResponderId != responderId {
			continue
		}
		if row.ReleasedAt != nil || !row.Status.CanAdvanceTo(status) {
			return nil, fmt.Errorf("%w: %s to %s", entity.ErrInvalidAssignmentTransition, row.Status, status)
		}
		row.Status = status
		c := cloneAssignment(*row)
		return &c, nil
	}
	return nil, entity.ErrAssignmentNotFound
}

func (r *AssignmentRepository) FindByResponder(_ context.Context, responderId string) ([]*entity.IncidentAssignment, error) {
	return r.find(func(a entity.IncidentAssignment) bool { return a.ResponderId == responderId }), nil
}

func (r *AssignmentRepository) FindByIncident(_ context.Context, incidentId string) ([]*entity.IncidentAssignment, error) {
	return r.find(func(a entity.IncidentAssignment) bool { return a.IncidentId == incidentId }), nil
}

func (r *AssignmentRepository) closeWhere(at time.Time, match func(entity.IncidentAssignment) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ReleasedAt != nil || !match(r.rows[i]) {
			continue
		}
		released := at
		r.rows[i].ReleasedAt = &released
		r.rows[i].Status = entity.AssignmentCompleted
	}
}

// find returns matches newest first.
func (r *AssignmentRepository) find(match func(entity.IncidentAssignment) bool) []*entity.IncidentAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.IncidentAssignment, 0)
	for _, a := range r.rows {
		if match(a) {
			c := cloneAssignment(a)
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out
}

func cloneAssignment(a entity.IncidentAssignment) entity.IncidentAssignment {
	if a.DistanceKm != nil {
		km := *a.DistanceKm
		a.DistanceKm = &km
	}
	if a.EtaMinutes != nil {
		eta := *a.EtaMinutes
		a.EtaMinutes = &eta
	}
	if a.ReleasedAt != nil {
		at := *a.ReleasedAt
		a.ReleasedAt = &at
	}
	return a
}
