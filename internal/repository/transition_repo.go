package repository

import (
	"context"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"gorm.io/gorm"
)

type TransitionRepository interface {
	Create(ctx context.Context, t *domain.Transition) error
	GetBySlabID(ctx context.Context, slabID string) ([]domain.Transition, error)
}

type GormTransitionRepo struct {
	db *gorm.DB
}

func NewGormTransitionRepo(db *gorm.DB) *GormTransitionRepo {
	return &GormTransitionRepo{db: db}
}

func (r *GormTransitionRepo) Create(ctx context.Context, t *domain.Transition) error {
	model := transitionModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *transitionModelToDomain(model)
	}
	return nil
}

func (r *GormTransitionRepo) GetBySlabID(ctx context.Context, slabID string) ([]domain.Transition, error) {
	var models []TransitionModel
	err := r.db.WithContext(ctx).
		Where("slab_id = ?", slabID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	transitions := make([]domain.Transition, 0, len(models))
	for i := range models {
		transitions = append(transitions, *transitionModelToDomain(&models[i]))
	}

	return transitions, nil
}
