package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OperationKind identifies what a batch run does to each target.
type OperationKind string

const (
	OperationStatusUpdate OperationKind = "STATUS_UPDATE"
	OperationBulkEdit     OperationKind = "BULK_EDIT"
	OperationAllocation   OperationKind = "ALLOCATION"
	OperationExport       OperationKind = "EXPORT"
	OperationImport       OperationKind = "IMPORT"
)

func (k OperationKind) String() string { return string(k) }

func (k OperationKind) IsValid() bool {
	switch k {
	case OperationStatusUpdate, OperationBulkEdit, OperationAllocation, OperationExport, OperationImport:
		return true
	}
	return false
}

func ParseOperationKindFromString(s string) (OperationKind, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	k := OperationKind(normalized)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid operation kind %q", ErrValidation, s)
	}
	return k, nil
}

// RunStatus is the state of a batch run. Every value except RUNNING is terminal.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

func (s RunStatus) IsTerminal() bool {
	return s.IsValid() && s != RunStatusRunning
}

// BatchOperation is the tracked state of one batch run.
// Completed+Failed never exceeds Total; counters are frozen once Status is terminal.
type BatchOperation struct {
	ID        string
	Kind      OperationKind
	Title     string
	TargetIDs []string
	Total     int
	Completed int
	Failed    int
	Status    RunStatus
	StartTime time.Time
	EndTime   *time.Time
	Errors    []string
}

// Clone returns a copy that shares no slices with the original.
func (o BatchOperation) Clone() BatchOperation {
	out := o
	out.TargetIDs = append([]string(nil), o.TargetIDs...)
	out.Errors = append([]string(nil), o.Errors...)
	if o.EndTime != nil {
		end := *o.EndTime
		out.EndTime = &end
	}
	return out
}

// Attempted is the number of items whose outcome has been recorded.
func (o BatchOperation) Attempted() int {
	return o.Completed + o.Failed
}

// ExportFormat is the serialization requested by an export run.
type ExportFormat string

const (
	ExportFormatCSV    ExportFormat = "CSV"
	ExportFormatJSON   ExportFormat = "JSON"
	ExportFormatLabels ExportFormat = "LABELS"
)

func (f ExportFormat) String() string { return string(f) }

func (f ExportFormat) IsValid() bool {
	switch f {
	case ExportFormatCSV, ExportFormatJSON, ExportFormatLabels:
		return true
	}
	return false
}

func ParseExportFormatFromString(s string) (ExportFormat, error) {
	f := ExportFormat(strings.ToUpper(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("%w: invalid export format %q", ErrValidation, s)
	}
	return f, nil
}

// ItemResult is what a successful batch item produced.
type ItemResult struct {
	SlabID string
	Slab   *Slab
	Output string
}

// PayloadHandler processes one slab for each payload kind.
// Adding a kind means adding a method here, so every handler must follow.
type PayloadHandler interface {
	StatusUpdate(ctx context.Context, slab Slab, p StatusUpdatePayload) (ItemResult, error)
	BulkEdit(ctx context.Context, slab Slab, p BulkEditPayload) (ItemResult, error)
	Allocation(ctx context.Context, slab Slab, p AllocationPayload) (ItemResult, error)
	Export(ctx context.Context, slab Slab, p ExportPayload) (ItemResult, error)
	Import(ctx context.Context, slab Slab, p ImportPayload) (ItemResult, error)
}

// BatchPayload is the kind-specific part of a batch request.
type BatchPayload interface {
	Kind() OperationKind
	Validate() error
	Accept(ctx context.Context, slab Slab, h PayloadHandler) (ItemResult, error)
}

var (
	_ BatchPayload = StatusUpdatePayload{}
	_ BatchPayload = BulkEditPayload{}
	_ BatchPayload = AllocationPayload{}
	_ BatchPayload = ExportPayload{}
	_ BatchPayload = ImportPayload{}
)

// StatusUpdatePayload moves every target to Status. Patch carries context data such as dates.
// Force skips lifecycle validation and only stamps dates.
type StatusUpdatePayload struct {
	Status Status
	Patch  SlabPatch
	Reason string
	Actor  string
	Force  bool
}

func (StatusUpdatePayload) Kind() OperationKind { return OperationStatusUpdate }

func (p StatusUpdatePayload) Validate() error {
	if !p.Status.IsValid() {
		return fmt.Errorf("%w: invalid target status %q", ErrValidation, p.Status)
	}
	return nil
}

func (p StatusUpdatePayload) Accept(ctx context.Context, slab Slab, h PayloadHandler) (ItemResult, error) {
	return h.StatusUpdate(ctx, slab, p)
}

// BulkEditPayload merges Patch onto every target.
type BulkEditPayload struct {
	Patch SlabPatch
}

func (BulkEditPayload) Kind() OperationKind { return OperationBulkEdit }

func (p BulkEditPayload) Validate() error {
	if p.Patch.IsEmpty() {
		return fmt.Errorf("%w: bulk edit requires at least one field", ErrValidation)
	}
	if p.Patch.SlabType != nil && !p.Patch.SlabType.IsValid() {
		return fmt.Errorf("%w: invalid slab type %q", ErrValidation, *p.Patch.SlabType)
	}
	return nil
}

func (p BulkEditPayload) Accept(ctx context.Context, slab Slab, h PayloadHandler) (ItemResult, error) {
	return h.BulkEdit(ctx, slab, p)
}

// AllocationPayload allocates every target to JobReference.
type AllocationPayload struct {
	JobReference string
	Actor        string
}

func (AllocationPayload) Kind() OperationKind { return OperationAllocation }

func (p AllocationPayload) Validate() error {
	if strings.TrimSpace(p.JobReference) == "" {
		return fmt.Errorf("%w: job reference is required", ErrValidation)
	}
	return nil
}

func (p AllocationPayload) Accept(ctx context.Context, slab Slab, h PayloadHandler) (ItemResult, error) {
	return h.Allocation(ctx, slab, p)
}

// ExportPayload serializes every target without mutating it.
type ExportPayload struct {
	Format         ExportFormat
	IncludeImages  bool
	IncludeHistory bool
}

func (ExportPayload) Kind() OperationKind { return OperationExport }

func (p ExportPayload) Validate() error {
	if !p.Format.IsValid() {
		return fmt.Errorf("%w: invalid export format %q", ErrValidation, p.Format)
	}
	return nil
}

func (p ExportPayload) Accept(ctx context.Context, slab Slab, h PayloadHandler) (ItemResult, error) {
	return h.Export(ctx, slab, p)
}

// ImportPayload carries raw import input. Import is not implemented; every item fails.
type ImportPayload struct {
	Raw string
}

func (ImportPayload) Kind() OperationKind { return OperationImport }

func (ImportPayload) Validate() error { return nil }

func (p ImportPayload) Accept(ctx context.Context, slab Slab, h PayloadHandler) (ItemResult, error) {
	return h.Import(ctx, slab, p)
}
