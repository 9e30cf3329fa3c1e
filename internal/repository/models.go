package repository

import (
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// SlabModel is the persistence model for the slabs table.
type SlabModel struct {
	ID           string          `gorm:"type:uuid;primaryKey"`
	Serial       string          `gorm:"type:varchar(64);not null"`
	Material     string          `gorm:"type:varchar(100)"`
	Color        string          `gorm:"type:varchar(100)"`
	Length       float64         `gorm:"not null;default:0"`
	Width        float64         `gorm:"not null;default:0"`
	Thickness    float64         `gorm:"not null;default:0"`
	Supplier     string          `gorm:"type:varchar(255)"`
	Location     string          `gorm:"type:varchar(255)"`
	Cost         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	SlabType     domain.SlabType `gorm:"type:varchar(10);not null"`
	Status       domain.Status   `gorm:"type:varchar(20);not null"`
	JobReference *string         `gorm:"type:varchar(100)"`
	ReceivedDate *time.Time      `gorm:"type:timestamptz"`
	ConsumedDate *time.Time      `gorm:"type:timestamptz"`
	Notes        *string         `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (SlabModel) TableName() string {
	return "slabs"
}

// TransitionModel is the persistence model for slab_transitions.
type TransitionModel struct {
	ID         string        `gorm:"type:uuid;primaryKey"`
	SlabID     string        `gorm:"type:uuid;not null"`
	FromStatus domain.Status `gorm:"type:varchar(20);not null"`
	ToStatus   domain.Status `gorm:"type:varchar(20);not null"`
	Reason     *string       `gorm:"type:text"`
	Actor      *string       `gorm:"type:varchar(255)"`
	CreatedAt  time.Time
}

func (TransitionModel) TableName() string {
	return "slab_transitions"
}

func slabModelFromDomain(s *domain.Slab) *SlabModel {
	if s == nil {
		return nil
	}

	return &SlabModel{
		ID:           s.ID,
		Serial:       s.Serial,
		Material:     s.Material,
		Color:        s.Color,
		Length:       s.Length,
		Width:        s.Width,
		Thickness:    s.Thickness,
		Supplier:     s.Supplier,
		Location:     s.Location,
		Cost:         s.Cost,
		SlabType:     s.SlabType,
		Status:       s.Status,
		JobReference: s.JobReference,
		ReceivedDate: s.ReceivedDate,
		ConsumedDate: s.ConsumedDate,
		Notes:        s.Notes,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func slabModelToDomain(m *SlabModel) *domain.Slab {
	if m == nil {
		return nil
	}

	return &domain.Slab{
		ID:           m.ID,
		Serial:       m.Serial,
		Material:     m.Material,
		Color:        m.Color,
		Length:       m.Length,
		Width:        m.Width,
		Thickness:    m.Thickness,
		Supplier:     m.Supplier,
		Location:     m.Location,
		Cost:         m.Cost,
		SlabType:     m.SlabType,
		Status:       m.Status,
		JobReference: m.JobReference,
		ReceivedDate: m.ReceivedDate,
		ConsumedDate: m.ConsumedDate,
		Notes:        m.Notes,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func transitionModelFromDomain(t *domain.Transition) *TransitionModel {
	if t == nil {
		return nil
	}

	return &TransitionModel{
		ID:         t.ID,
		SlabID:     t.SlabID,
		FromStatus: t.FromStatus,
		ToStatus:   t.ToStatus,
		Reason:     t.Reason,
		Actor:      t.Actor,
		CreatedAt:  t.CreatedAt,
	}
}

func transitionModelToDomain(m *TransitionModel) *domain.Transition {
	if m == nil {
		return nil
	}

	return &domain.Transition{
		ID:         m.ID,
		SlabID:     m.SlabID,
		FromStatus: m.FromStatus,
		ToStatus:   m.ToStatus,
		Reason:     m.Reason,
		Actor:      m.Actor,
		CreatedAt:  m.CreatedAt,
	}
}
