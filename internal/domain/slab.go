package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle stage of a slab.
type Status string

const (
	StatusWanted    Status = "WANTED"
	StatusOrdered   Status = "ORDERED"
	StatusReceived  Status = "RECEIVED"
	StatusStock     Status = "STOCK"
	StatusAllocated Status = "ALLOCATED"
	StatusConsumed  Status = "CONSUMED"
	StatusRemnant   Status = "REMNANT"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusWanted,
	StatusOrdered,
	StatusReceived,
	StatusStock,
	StatusAllocated,
	StatusConsumed,
	StatusRemnant,
}

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusWanted, StatusOrdered, StatusReceived, StatusStock, StatusAllocated, StatusConsumed, StatusRemnant:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// StatusMeta is the static display metadata attached to a status.
type StatusMeta struct {
	Status               Status
	Label                string
	Description          string
	Destructive          bool
	RequiresConfirmation bool
}

var statusMeta = map[Status]StatusMeta{
	StatusWanted: {
		Status:      StatusWanted,
		Label:       "Wanted",
		Description: "Needed for upcoming work but not yet ordered",
	},
	StatusOrdered: {
		Status:      StatusOrdered,
		Label:       "Ordered",
		Description: "Purchase order placed with the supplier",
	},
	StatusReceived: {
		Status:      StatusReceived,
		Label:       "Received",
		Description: "Delivered and checked in at the yard",
	},
	StatusStock: {
		Status:      StatusStock,
		Label:       "In Stock",
		Description: "Available for allocation",
	},
	StatusAllocated: {
		Status:      StatusAllocated,
		Label:       "Allocated",
		Description: "Reserved for a job",
	},
	StatusConsumed: {
		Status:               StatusConsumed,
		Label:                "Consumed",
		Description:          "Cut and used on a job",
		Destructive:          true,
		RequiresConfirmation: true,
	},
	StatusRemnant: {
		Status:               StatusRemnant,
		Label:                "Remnant",
		Description:          "Offcut kept after fabrication",
		Destructive:          true,
		RequiresConfirmation: true,
	},
}

// StatusInfo returns the display metadata for s. Unknown statuses get a label equal to the raw value.
func StatusInfo(s Status) StatusMeta {
	if meta, ok := statusMeta[s]; ok {
		return meta
	}
	return StatusMeta{Status: s, Label: string(s)}
}

// SlabType distinguishes full slabs from offcuts.
type SlabType string

const (
	SlabTypeFull    SlabType = "FULL"
	SlabTypeRemnant SlabType = "REMNANT"
)

func (t SlabType) String() string { return string(t) }

func (t SlabType) IsValid() bool {
	switch t {
	case SlabTypeFull, SlabTypeRemnant:
		return true
	}
	return false
}

func ParseSlabTypeFromString(s string) (SlabType, error) {
	st := SlabType(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid slab type %q", ErrValidation, s)
	}
	return st, nil
}

// Slab is the physical inventory unit under lifecycle control.
type Slab struct {
	ID           string
	Serial       string
	Material     string
	Color        string
	Length       float64
	Width        float64
	Thickness    float64
	Supplier     string
	Location     string
	Cost         decimal.Decimal
	SlabType     SlabType
	Status       Status
	JobReference *string
	ReceivedDate *time.Time
	ConsumedDate *time.Time
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Slab) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(s.Serial) == "" {
		return fmt.Errorf("%w: serial is required", ErrValidation)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, s.Status)
	}
	if !s.SlabType.IsValid() {
		return fmt.Errorf("%w: invalid slab type %q", ErrValidation, s.SlabType)
	}
	if s.Length < 0 || s.Width < 0 || s.Thickness < 0 {
		return fmt.Errorf("%w: dimensions must not be negative", ErrValidation)
	}
	if s.Cost.IsNegative() {
		return fmt.Errorf("%w: cost must not be negative", ErrValidation)
	}
	return nil
}

// HasJobReference reports whether a non-blank job reference is attached.
func (s *Slab) HasJobReference() bool {
	return s.JobReference != nil && strings.TrimSpace(*s.JobReference) != ""
}

// Clone returns a deep copy so callers can mutate pointer fields freely.
func (s Slab) Clone() Slab {
	out := s
	out.JobReference = cloneString(s.JobReference)
	out.Notes = cloneString(s.Notes)
	out.ReceivedDate = cloneTime(s.ReceivedDate)
	out.ConsumedDate = cloneTime(s.ConsumedDate)
	return out
}

// Apply shallow-merges the non-nil fields of patch onto a copy of s.
func (s Slab) Apply(patch SlabPatch) Slab {
	out := s.Clone()
	if patch.Serial != nil {
		out.Serial = *patch.Serial
	}
	if patch.Material != nil {
		out.Material = *patch.Material
	}
	if patch.Color != nil {
		out.Color = *patch.Color
	}
	if patch.Length != nil {
		out.Length = *patch.Length
	}
	if patch.Width != nil {
		out.Width = *patch.Width
	}
	if patch.Thickness != nil {
		out.Thickness = *patch.Thickness
	}
	if patch.Supplier != nil {
		out.Supplier = *patch.Supplier
	}
	if patch.Location != nil {
		out.Location = *patch.Location
	}
	if patch.Cost != nil {
		out.Cost = *patch.Cost
	}
	if patch.SlabType != nil {
		out.SlabType = *patch.SlabType
	}
	if patch.JobReference != nil {
		out.JobReference = cloneString(patch.JobReference)
	}
	if patch.ReceivedDate != nil {
		out.ReceivedDate = cloneTime(patch.ReceivedDate)
	}
	if patch.ConsumedDate != nil {
		out.ConsumedDate = cloneTime(patch.ConsumedDate)
	}
	if patch.Notes != nil {
		out.Notes = cloneString(patch.Notes)
	}
	return out
}

// SlabPatch carries a partial slab record. Nil fields are left untouched.
// Status is deliberately absent: status changes go through the lifecycle engine.
type SlabPatch struct {
	Serial       *string
	Material     *string
	Color        *string
	Length       *float64
	Width        *float64
	Thickness    *float64
	Supplier     *string
	Location     *string
	Cost         *decimal.Decimal
	SlabType     *SlabType
	JobReference *string
	ReceivedDate *time.Time
	ConsumedDate *time.Time
	Notes        *string
}

func (p SlabPatch) IsEmpty() bool {
	return p == SlabPatch{}
}

func (p SlabPatch) HasJobReference() bool {
	return p.JobReference != nil && strings.TrimSpace(*p.JobReference) != ""
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
