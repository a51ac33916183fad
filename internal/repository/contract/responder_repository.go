package contract

import (
	"context"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/repository/specification"
)

type ResponderRepository interface {
	Upsert(ctx context.Context, responder *entity.Responder) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Responder, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Responder, error)
}
