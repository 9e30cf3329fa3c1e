package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/export"
	"github.com/kursadbilgin/slab-engine/internal/lifecycle"
)

var _ domain.PayloadHandler = (*itemProcessor)(nil)

// itemProcessor applies one payload to one slab inside a batch run.
type itemProcessor struct {
	o *Orchestrator
}

func (p *itemProcessor) StatusUpdate(ctx context.Context, slab domain.Slab, payload domain.StatusUpdatePayload) (domain.ItemResult, error) {
	if payload.Force {
		return p.assign(ctx, slab, payload.Status, payload.Patch, payload.Reason, payload.Actor)
	}

	return p.transition(ctx, slab, lifecycle.TransitionRequest{
		To:     payload.Status,
		Patch:  payload.Patch,
		Reason: payload.Reason,
		Actor:  payload.Actor,
	})
}

func (p *itemProcessor) BulkEdit(ctx context.Context, slab domain.Slab, payload domain.BulkEditPayload) (domain.ItemResult, error) {
	updated := slab.Apply(payload.Patch)
	updated.UpdatedAt = p.o.now().UTC()
	if err := updated.Validate(); err != nil {
		return domain.ItemResult{}, err
	}

	if err := p.o.store.Upsert(ctx, &updated); err != nil {
		return domain.ItemResult{}, fmt.Errorf("failed to save slab: %w", err)
	}
	return domain.ItemResult{SlabID: slab.ID, Slab: &updated}, nil
}

// Allocation sets the status and job reference directly, whatever the current status.
// Allocating an already allocated slab moves it to the new job.
func (p *itemProcessor) Allocation(ctx context.Context, slab domain.Slab, payload domain.AllocationPayload) (domain.ItemResult, error) {
	job := strings.TrimSpace(payload.JobReference)
	return p.assign(ctx, slab, domain.StatusAllocated, domain.SlabPatch{JobReference: &job}, "allocated to "+job, payload.Actor)
}

func (p *itemProcessor) Export(ctx context.Context, slab domain.Slab, payload domain.ExportPayload) (domain.ItemResult, error) {
	out, err := export.EncodeUnit(payload.Format, slab)
	if err != nil {
		return domain.ItemResult{}, err
	}
	return domain.ItemResult{SlabID: slab.ID, Slab: &slab, Output: out}, nil
}

func (p *itemProcessor) Import(ctx context.Context, slab domain.Slab, payload domain.ImportPayload) (domain.ItemResult, error) {
	return domain.ItemResult{}, fmt.Errorf("import: %w", domain.ErrNotImplemented)
}

func (p *itemProcessor) transition(ctx context.Context, slab domain.Slab, req lifecycle.TransitionRequest) (domain.ItemResult, error) {
	outcome, err := p.o.engine.Execute(slab, req)
	if err != nil {
		return domain.ItemResult{}, err
	}

	if err := p.o.store.Upsert(ctx, &outcome.Slab); err != nil {
		return domain.ItemResult{}, fmt.Errorf("failed to save slab: %w", err)
	}
	p.o.recordTransition(ctx, outcome.Transition)

	return domain.ItemResult{SlabID: slab.ID, Slab: &outcome.Slab}, nil
}

// assign sets the status without lifecycle checks. Only date stamping is applied.
func (p *itemProcessor) assign(
	ctx context.Context,
	slab domain.Slab,
	to domain.Status,
	patch domain.SlabPatch,
	reason, actor string,
) (domain.ItemResult, error) {
	now := p.o.now().UTC()
	updated := slab.Apply(patch)
	updated.Status = to
	updated.UpdatedAt = now
	lifecycle.StampDates(&updated, to, now)

	if err := p.o.store.Upsert(ctx, &updated); err != nil {
		return domain.ItemResult{}, fmt.Errorf("failed to save slab: %w", err)
	}

	t := domain.Transition{
		ID:         p.o.newID(),
		SlabID:     slab.ID,
		FromStatus: slab.Status,
		ToStatus:   to,
		CreatedAt:  now,
	}
	if reason != "" {
		t.Reason = &reason
	}
	if actor != "" {
		t.Actor = &actor
	}
	p.o.recordTransition(ctx, t)

	return domain.ItemResult{SlabID: slab.ID, Slab: &updated}, nil
}
