package implementation

import (
	"context"
	"errors"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/mapper"
	"emergency-dispatch-be/internal/model"
	"emergency-dispatch-be/internal/repository/contract"
	"emergency-dispatch-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponderRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResponderMapper
}

func NewResponderRepository(db *gorm.DB) contract.ResponderRepository {
	return &ResponderRepositoryImpl{
		db:     db,
		mapper: mapper.NewResponderMapper(),
	}
}

func (r *ResponderRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// Upsert is the directory's write-through target.
func (r *ResponderRepositoryImpl) Upsert(ctx context.Context, responder *entity.Responder) error {
	row := r.mapper.ToModel(responder)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
}

func (r *ResponderRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Responder, error) {
	var m model.Responder
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ResponderRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Responder, error) {
	var models []*model.Responder
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}
