package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/mapper"
	"emergency-dispatch-be/internal/model"
	"emergency-dispatch-be/internal/repository/contract"
	"emergency-dispatch-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IncidentAssignmentRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AssignmentMapper
}

func NewIncidentAssignmentRepository(db *gorm.DB) contract.IncidentAssignmentRepository {
	return &IncidentAssignmentRepositoryImpl{
		db:     db,
		mapper: mapper.NewAssignmentMapper(),
	}
}

func (r *IncidentAssignmentRepositoryImpl) Open(ctx context.Context, assignment *entity.IncidentAssignment) error {
	return r.db.WithContext(ctx).Create(r.mapper.ToModel(assignment)).Error
}

func (r *IncidentAssignmentRepositoryImpl) Close(ctx context.Context, incidentId, responderId string, at time.Time) error {
	return r.closeWhere(ctx, at,
		specification.ByIncident{IncidentId: incidentId},
		specification.ByResponder{ResponderId: responderId},
	)
}

func (r *IncidentAssignmentRepositoryImpl) CloseIncident(ctx context.Context, incidentId string, at time.Time) error {
	return r.closeWhere(ctx, at, specification.ByIncident{IncidentId: incidentId})
}

func (r *IncidentAssignmentRepositoryImpl) Advance(ctx context.Context, responderId string, id uuid.UUID, status entity.AssignmentStatus) (*entity.IncidentAssignment, error) {
	var row model.IncidentAssignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := specification.ByKey{Id: id.String()}.Apply(tx)
		query = specification.ByResponder{ResponderId: responderId}.Apply(query)
		if err := query.First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entity.ErrAssignmentNotFound
			}
			return err
		}

		current := entity.AssignmentStatus(row.Status)
		if row.ReleasedAt != nil || !current.CanAdvanceTo(status) {
			return fmt.Errorf("%w: %s to %s", entity.ErrInvalidAssignmentTransition, current, status)
		}

		// Conditional on the read status so a concurrent report cannot move it backwards.
		res := tx.Model(&model.IncidentAssignment{}).
			Where("id = ? AND status = ? AND released_at IS NULL", row.Id, row.Status).
			Update("status", string(status))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s changed concurrently", entity.ErrInvalidAssignmentTransition, current)
		}
		row.Status = string(status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.mapper.ToEntity(&row), nil
}

func (r *IncidentAssignmentRepositoryImpl) FindByResponder(ctx context.Context, responderId string) ([]*entity.IncidentAssignment, error) {
	return r.find(ctx, specification.ByResponder{ResponderId: responderId})
}

func (r *IncidentAssignmentRepositoryImpl) FindByIncident(ctx context.Context, incidentId string) ([]*entity.IncidentAssignment, error) {
	return r.find(ctx, specification.ByIncident{IncidentId: incidentId})
}

func (r *IncidentAssignmentRepositoryImpl) closeWhere(ctx context.Context, at time.Time, specs ...specification.Specification) error {
	query := r.db.WithContext(ctx).Model(&model.IncidentAssignment{})
	for _, spec := range append(specs, specification.OpenAssignment{}) {
		query = spec.Apply(query)
	}
	return query.Updates(map[string]interface{}{
		"status":      string(entity.AssignmentCompleted),
		"released_at": at,
	}).Error
}

func (r *IncidentAssignmentRepositoryImpl) find(ctx context.Context, spec specification.Specification) ([]*entity.IncidentAssignment, error) {
	var models []*model.IncidentAssignment
	query := spec.Apply(r.db.WithContext(ctx))
	query = specification.OrderBy{Field: "assigned_at", Desc: true}.Apply(query)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}
