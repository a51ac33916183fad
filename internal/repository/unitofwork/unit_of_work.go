package unitofwork

import (
	"context"

	"emergency-dispatch-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	EmergencySessionRepository() contract.EmergencySessionRepository
	ResponderRepository() contract.ResponderRepository
	IncidentAssignmentRepository() contract.IncidentAssignmentRepository
}
