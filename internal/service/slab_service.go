package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/export"
	"github.com/kursadbilgin/slab-engine/internal/lifecycle"
	"github.com/kursadbilgin/slab-engine/internal/observability"
	"github.com/kursadbilgin/slab-engine/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateSlabInput carries the fields accepted when registering a slab.
type CreateSlabInput struct {
	Serial       string
	Material     string
	Color        string
	Length       float64
	Width        float64
	Thickness    float64
	Supplier     string
	Location     string
	Cost         decimal.Decimal
	SlabType     domain.SlabType
	Status       domain.Status
	JobReference *string
	ReceivedDate *time.Time
	ConsumedDate *time.Time
	Notes        *string
}

// SlabService serves single-record reads and interactive status changes.
type SlabService struct {
	slabs       repository.SlabRepository
	transitions repository.TransitionRepository
	engine      *lifecycle.Engine
	events      TransitionPublisher
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	newID       func() string
}

func NewSlabService(
	slabs repository.SlabRepository,
	transitions repository.TransitionRepository,
	engine *lifecycle.Engine,
	logger *zap.Logger,
) *SlabService {
	if engine == nil {
		engine = lifecycle.NewEngine()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SlabService{
		slabs:       slabs,
		transitions: transitions,
		engine:      engine,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

func (s *SlabService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *SlabService) SetTransitionPublisher(publisher TransitionPublisher) {
	if s == nil {
		return
	}
	s.events = publisher
}

// Create registers a new slab. Status defaults to WANTED and type to FULL.
func (s *SlabService) Create(ctx context.Context, input CreateSlabInput) (*domain.Slab, error) {
	status := input.Status
	if status == "" {
		status = domain.StatusWanted
	}
	slabType := input.SlabType
	if slabType == "" {
		slabType = domain.SlabTypeFull
	}

	now := s.now().UTC()
	slab := &domain.Slab{
		ID:           s.newID(),
		Serial:       strings.TrimSpace(input.Serial),
		Material:     strings.TrimSpace(input.Material),
		Color:        strings.TrimSpace(input.Color),
		Length:       input.Length,
		Width:        input.Width,
		Thickness:    input.Thickness,
		Supplier:     strings.TrimSpace(input.Supplier),
		Location:     strings.TrimSpace(input.Location),
		Cost:         input.Cost,
		SlabType:     slabType,
		Status:       status,
		JobReference: input.JobReference,
		ReceivedDate: input.ReceivedDate,
		ConsumedDate: input.ConsumedDate,
		Notes:        input.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := slab.Validate(); err != nil {
		return nil, err
	}

	if err := s.slabs.Upsert(ctx, slab); err != nil {
		return nil, fmt.Errorf("failed to create slab: %w", err)
	}

	s.logger.Info("slab created",
		zap.String("slabId", slab.ID),
		zap.String("serial", slab.Serial),
		zap.String("status", slab.Status.String()),
	)
	return slab, nil
}

func (s *SlabService) GetByID(ctx context.Context, id string) (*domain.Slab, error) {
	return s.slabs.GetByID(ctx, id)
}

func (s *SlabService) List(ctx context.Context, params repository.ListParams) ([]domain.Slab, int64, error) {
	return s.slabs.List(ctx, params)
}

// History returns the recorded transitions of a slab, oldest first.
func (s *SlabService) History(ctx context.Context, id string) ([]domain.Transition, error) {
	if _, err := s.slabs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if s.transitions == nil {
		return []domain.Transition{}, nil
	}
	return s.transitions.GetBySlabID(ctx, id)
}

// ValidTransitions returns the slab and the metadata of every status it may move to next.
func (s *SlabService) ValidTransitions(ctx context.Context, id string) (*domain.Slab, []domain.StatusMeta, error) {
	slab, err := s.slabs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	next := s.engine.ValidTransitions(slab.Status)
	metas := make([]domain.StatusMeta, 0, len(next))
	for _, status := range next {
		metas = append(metas, domain.StatusInfo(status))
	}
	return slab, metas, nil
}

// Preview validates a transition against the stored slab without applying it.
func (s *SlabService) Preview(ctx context.Context, id string, to domain.Status, patch domain.SlabPatch) (lifecycle.ValidationResult, error) {
	slab, err := s.slabs.GetByID(ctx, id)
	if err != nil {
		return lifecycle.ValidationResult{}, err
	}
	return s.engine.Validate(*slab, to, patch), nil
}

// Transition executes a status change, saves the slab and records the transition.
func (s *SlabService) Transition(ctx context.Context, id string, req lifecycle.TransitionRequest) (*lifecycle.Outcome, error) {
	slab, err := s.slabs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	outcome, err := s.engine.Execute(*slab, req)
	if err != nil {
		return nil, err
	}

	if err := s.slabs.Upsert(ctx, &outcome.Slab); err != nil {
		return nil, fmt.Errorf("failed to save slab: %w", err)
	}

	if s.transitions != nil {
		if err := s.transitions.Create(ctx, &outcome.Transition); err != nil {
			return nil, fmt.Errorf("failed to record transition: %w", err)
		}
	}
	s.metrics.IncSlabTransition(outcome.Transition.FromStatus.String(), outcome.Transition.ToStatus.String())

	if s.events != nil {
		if err := s.events.PublishTransition(ctx, outcome.Transition); err != nil {
			s.logger.Warn("failed to publish transition",
				zap.String("slabId", id),
				zap.Error(err),
			)
		}
	}

	observability.WithContextLogger(s.logger, ctx).Info("slab transitioned",
		zap.String("slabId", id),
		zap.String("from", outcome.Transition.FromStatus.String()),
		zap.String("to", outcome.Transition.ToStatus.String()),
		zap.Strings("warnings", outcome.Warnings),
	)
	return outcome, nil
}

// Export renders the given slabs, or every slab when ids is empty.
func (s *SlabService) Export(ctx context.Context, ids []string, format domain.ExportFormat, opts export.Options) ([]byte, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: invalid export format %q", domain.ErrValidation, format)
	}

	var slabs []domain.Slab
	if len(ids) == 0 {
		all, err := s.slabs.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		slabs = all
	} else {
		slabs = make([]domain.Slab, 0, len(ids))
		for _, id := range ids {
			slab, err := s.slabs.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			slabs = append(slabs, *slab)
		}
	}

	return export.Render(format, slabs, opts, s.now().UTC())
}
