package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
)

func TestMemorySlabStoreUpsertAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemorySlabStore()

	job := "JOB-1"
	slab := domain.Slab{ID: "s1", Serial: "SN-1", Status: domain.StatusStock, JobReference: &job}
	if err := store.Upsert(ctx, &slab); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := store.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Serial != "SN-1" {
		t.Fatalf("Serial = %q, want SN-1", got.Serial)
	}

	*got.JobReference = "mutated"
	again, _ := store.GetByID(ctx, "s1")
	if *again.JobReference != "JOB-1" {
		t.Fatal("store must return copies")
	}

	_, err = store.GetByID(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemorySlabStoreGetAllKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemorySlabStore(
		domain.Slab{ID: "b", Serial: "SN-B"},
		domain.Slab{ID: "a", Serial: "SN-A"},
	)

	updated := domain.Slab{ID: "b", Serial: "SN-B2"}
	if err := store.Upsert(ctx, &updated); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != "b" || all[1].ID != "a" {
		t.Fatalf("GetAll() = %+v, want b then a", all)
	}
	if all[0].Serial != "SN-B2" {
		t.Fatalf("Serial = %q, want SN-B2", all[0].Serial)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	all, _ = store.GetAll(ctx)
	if len(all) != 0 {
		t.Fatalf("GetAll() after Clear = %d items, want 0", len(all))
	}
}

func TestMemorySlabStoreListFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemorySlabStore(
		domain.Slab{ID: "1", Material: "Granite", Status: domain.StatusStock, CreatedAt: base},
		domain.Slab{ID: "2", Material: "granite", Status: domain.StatusStock, CreatedAt: base.Add(time.Hour)},
		domain.Slab{ID: "3", Material: "Marble", Status: domain.StatusStock, CreatedAt: base.Add(2 * time.Hour)},
		domain.Slab{ID: "4", Material: "Granite", Status: domain.StatusWanted, CreatedAt: base.Add(3 * time.Hour)},
	)

	status := domain.StatusStock
	slabs, total, err := store.List(context.Background(), ListParams{Status: &status, Material: "GRANITE", Page: 1, PageSize: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if len(slabs) != 1 || slabs[0].ID != "2" {
		t.Fatalf("page 1 = %+v, want newest granite stock slab", slabs)
	}

	slabs, _, _ = store.List(context.Background(), ListParams{Status: &status, Material: "granite", Page: 3, PageSize: 1})
	if len(slabs) != 0 {
		t.Fatalf("page 3 = %+v, want empty", slabs)
	}
}

func TestMemoryTransitionRepo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryTransitionRepo()
	_ = repo.Create(ctx, &domain.Transition{ID: "t1", SlabID: "s1", FromStatus: domain.StatusWanted, ToStatus: domain.StatusOrdered})
	_ = repo.Create(ctx, &domain.Transition{ID: "t2", SlabID: "s2"})
	_ = repo.Create(ctx, &domain.Transition{ID: "t3", SlabID: "s1", FromStatus: domain.StatusOrdered, ToStatus: domain.StatusWanted})

	got, err := repo.GetBySlabID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetBySlabID() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t3" {
		t.Fatalf("GetBySlabID() = %+v", got)
	}
}
