package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kursadbilgin/slab-engine/internal/domain"
)

var (
	_ SlabStore            = (*MemorySlabStore)(nil)
	_ TransitionRepository = (*MemoryTransitionRepo)(nil)
)

// MemorySlabStore keeps slabs in process memory. Records are copied on the way in and out.
type MemorySlabStore struct {
	mu    sync.RWMutex
	slabs map[string]domain.Slab
	order []string
}

func NewMemorySlabStore(seed ...domain.Slab) *MemorySlabStore {
	s := &MemorySlabStore{slabs: make(map[string]domain.Slab, len(seed))}
	for _, slab := range seed {
		s.put(slab)
	}
	return s
}

func (s *MemorySlabStore) GetByID(ctx context.Context, id string) (*domain.Slab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slab, ok := s.slabs[id]
	if !ok {
		return nil, &domain.UnitNotFoundError{ID: id}
	}
	out := slab.Clone()
	return &out, nil
}

func (s *MemorySlabStore) GetAll(ctx context.Context) ([]domain.Slab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Slab, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.slabs[id].Clone())
	}
	return out, nil
}

func (s *MemorySlabStore) List(ctx context.Context, params ListParams) ([]domain.Slab, int64, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	filtered := make([]domain.Slab, 0, len(all))
	for _, slab := range all {
		if params.Status != nil && slab.Status != *params.Status {
			continue
		}
		if params.Material != "" && !strings.EqualFold(slab.Material, params.Material) {
			continue
		}
		filtered = append(filtered, slab)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	total := int64(len(filtered))
	start := min((page-1)*pageSize, len(filtered))
	end := min(start+pageSize, len(filtered))
	return filtered[start:end], total, nil
}

func (s *MemorySlabStore) Upsert(ctx context.Context, slab *domain.Slab) error {
	if slab == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(*slab)
	return nil
}

func (s *MemorySlabStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slabs = make(map[string]domain.Slab)
	s.order = nil
	return nil
}

func (s *MemorySlabStore) put(slab domain.Slab) {
	if _, exists := s.slabs[slab.ID]; !exists {
		s.order = append(s.order, slab.ID)
	}
	s.slabs[slab.ID] = slab.Clone()
}

// MemoryTransitionRepo keeps transition history in process memory.
type MemoryTransitionRepo struct {
	mu          sync.Mutex
	transitions []domain.Transition
}

func NewMemoryTransitionRepo() *MemoryTransitionRepo {
	return &MemoryTransitionRepo{}
}

func (r *MemoryTransitionRepo) Create(ctx context.Context, t *domain.Transition) error {
	if t == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transitions = append(r.transitions, *t)
	return nil
}

func (r *MemoryTransitionRepo) GetBySlabID(ctx context.Context, slabID string) ([]domain.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Transition, 0)
	for _, t := range r.transitions {
		if t.SlabID == slabID {
			out = append(out, t)
		}
	}
	return out, nil
}
