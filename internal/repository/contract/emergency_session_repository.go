package contract

import (
	"context"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/repository/specification"
)

type EmergencySessionRepository interface {
	// Upsert stores the snapshot unless a newer version is already stored.
	// It reports whether the row was written.
	Upsert(ctx context.Context, session *entity.EmergencySession) (bool, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.EmergencySession, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.EmergencySession, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
