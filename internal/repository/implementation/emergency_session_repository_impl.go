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
)

type EmergencySessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SessionMapper
}

func NewEmergencySessionRepository(db *gorm.DB) contract.EmergencySessionRepository {
	return &EmergencySessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewSessionMapper(),
	}
}

func (r *EmergencySessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *EmergencySessionRepositoryImpl) Upsert(ctx context.Context, session *entity.EmergencySession) (bool, error) {
	row := r.mapper.ToModel(session)
	written := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored model.EmergencySession
		err := tx.Select("id", "version").Where("id = ?", row.Id).First(&stored).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			written = true
			return tx.Create(row).Error
		case err != nil:
			return err
		}

		// Snapshots may arrive out of order; never overwrite a newer one
		if stored.Version >= row.Version {
			return nil
		}
		written = true
		return tx.Save(row).Error
	})
	return written, err
}

func (r *EmergencySessionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.EmergencySession, error) {
	var m model.EmergencySession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *EmergencySessionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.EmergencySession, error) {
	var models []*model.EmergencySession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *EmergencySessionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.EmergencySession{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
