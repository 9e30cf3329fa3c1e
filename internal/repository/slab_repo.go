package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SlabStore is the record store consumed by the lifecycle services and the batch orchestrator.
// Implementations serialize concurrent read-modify-write on a single record.
type SlabStore interface {
	GetByID(ctx context.Context, id string) (*domain.Slab, error)
	GetAll(ctx context.Context) ([]domain.Slab, error)
	Upsert(ctx context.Context, s *domain.Slab) error
	Clear(ctx context.Context) error
}

// ListParams filters slab listings.
type ListParams struct {
	Status   *domain.Status
	Material string
	Page     int
	PageSize int
}

// SlabRepository adds filtered listing for the HTTP surface.
type SlabRepository interface {
	SlabStore
	List(ctx context.Context, params ListParams) ([]domain.Slab, int64, error)
}

var (
	_ SlabRepository = (*GormSlabRepo)(nil)
	_ SlabRepository = (*MemorySlabStore)(nil)
)

type GormSlabRepo struct {
	db *gorm.DB
}

func NewGormSlabRepo(db *gorm.DB) *GormSlabRepo {
	return &GormSlabRepo{db: db}
}

func (r *GormSlabRepo) GetByID(ctx context.Context, id string) (*domain.Slab, error) {
	var model SlabModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.UnitNotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return slabModelToDomain(&model), nil
}

func (r *GormSlabRepo) GetAll(ctx context.Context) ([]domain.Slab, error) {
	var models []SlabModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	slabs := make([]domain.Slab, 0, len(models))
	for i := range models {
		slabs = append(slabs, *slabModelToDomain(&models[i]))
	}
	return slabs, nil
}

func (r *GormSlabRepo) List(ctx context.Context, params ListParams) ([]domain.Slab, int64, error) {
	query := r.db.WithContext(ctx).Model(&SlabModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Material != "" {
		query = query.Where("LOWER(material) = LOWER(?)", params.Material)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []SlabModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	slabs := make([]domain.Slab, 0, len(models))
	for i := range models {
		slabs = append(slabs, *slabModelToDomain(&models[i]))
	}

	return slabs, total, nil
}

func (r *GormSlabRepo) Upsert(ctx context.Context, s *domain.Slab) error {
	model := slabModelFromDomain(s)
	if model == nil {
		return nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	*s = *slabModelToDomain(model)
	return nil
}

func (r *GormSlabRepo) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&SlabModel{}).Error
}
