package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// TransitionMessage is the broker payload announcing a slab status change.
type TransitionMessage struct {
	TransitionID string        `json:"transitionId"`
	SlabID       string        `json:"slabId"`
	FromStatus   domain.Status `json:"fromStatus"`
	ToStatus     domain.Status `json:"toStatus"`
	Reason       string        `json:"reason,omitempty"`
	Actor        string        `json:"actor,omitempty"`
	OccurredAt   time.Time     `json:"occurredAt"`
}

func NewTransitionMessage(t domain.Transition) TransitionMessage {
	msg := TransitionMessage{
		TransitionID: t.ID,
		SlabID:       t.SlabID,
		FromStatus:   t.FromStatus,
		ToStatus:     t.ToStatus,
		OccurredAt:   t.CreatedAt.UTC(),
	}
	if t.Reason != nil {
		msg.Reason = *t.Reason
	}
	if t.Actor != nil {
		msg.Actor = *t.Actor
	}
	return msg
}

func (m TransitionMessage) Validate() error {
	if strings.TrimSpace(m.TransitionID) == "" {
		return fmt.Errorf("transitionId is required")
	}
	if strings.TrimSpace(m.SlabID) == "" {
		return fmt.Errorf("slabId is required")
	}
	if !m.FromStatus.IsValid() {
		return fmt.Errorf("invalid fromStatus %q", m.FromStatus)
	}
	if !m.ToStatus.IsValid() {
		return fmt.Errorf("invalid toStatus %q", m.ToStatus)
	}
	return nil
}

// PatchMessage is the wire form of a partial slab record.
type PatchMessage struct {
	Serial       *string          `json:"serial,omitempty"`
	Material     *string          `json:"material,omitempty"`
	Color        *string          `json:"color,omitempty"`
	Length       *float64         `json:"length,omitempty"`
	Width        *float64         `json:"width,omitempty"`
	Thickness    *float64         `json:"thickness,omitempty"`
	Supplier     *string          `json:"supplier,omitempty"`
	Location     *string          `json:"location,omitempty"`
	Cost         *decimal.Decimal `json:"cost,omitempty"`
	SlabType     *string          `json:"slabType,omitempty"`
	JobReference *string          `json:"jobReference,omitempty"`
	ReceivedDate *time.Time       `json:"receivedDate,omitempty"`
	ConsumedDate *time.Time       `json:"consumedDate,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
}

// ToDomain converts the message into a domain patch. A nil message is an empty patch.
func (p *PatchMessage) ToDomain() (domain.SlabPatch, error) {
	if p == nil {
		return domain.SlabPatch{}, nil
	}

	patch := domain.SlabPatch{
		Serial:       p.Serial,
		Material:     p.Material,
		Color:        p.Color,
		Length:       p.Length,
		Width:        p.Width,
		Thickness:    p.Thickness,
		Supplier:     p.Supplier,
		Location:     p.Location,
		Cost:         p.Cost,
		JobReference: p.JobReference,
		ReceivedDate: p.ReceivedDate,
		ConsumedDate: p.ConsumedDate,
		Notes:        p.Notes,
	}
	if p.SlabType != nil {
		slabType, err := domain.ParseSlabTypeFromString(*p.SlabType)
		if err != nil {
			return domain.SlabPatch{}, err
		}
		patch.SlabType = &slabType
	}
	return patch, nil
}

// BatchMessage is a batch command. Which payload fields apply depends on Kind.
type BatchMessage struct {
	CommandID      string        `json:"commandId"`
	CorrelationID  string        `json:"correlationId,omitempty"`
	Kind           string        `json:"kind"`
	Title          string        `json:"title,omitempty"`
	TargetIDs      []string      `json:"targetIds"`
	Status         string        `json:"status,omitempty"`
	Force          bool          `json:"force,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Actor          string        `json:"actor,omitempty"`
	JobReference   string        `json:"jobReference,omitempty"`
	Format         string        `json:"format,omitempty"`
	IncludeImages  bool          `json:"includeImages,omitempty"`
	IncludeHistory bool          `json:"includeHistory,omitempty"`
	Patch          *PatchMessage `json:"patch,omitempty"`
	Raw            string        `json:"raw,omitempty"`
}

func (m BatchMessage) Validate() error {
	if strings.TrimSpace(m.CommandID) == "" {
		return fmt.Errorf("commandId is required")
	}
	if len(m.TargetIDs) == 0 {
		return fmt.Errorf("targetIds must not be empty")
	}
	payload, err := m.Payload()
	if err != nil {
		return err
	}
	return payload.Validate()
}

// Payload builds the typed batch payload selected by Kind.
func (m BatchMessage) Payload() (domain.BatchPayload, error) {
	kind, err := domain.ParseOperationKindFromString(m.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.OperationStatusUpdate:
		status, err := domain.ParseStatusFromString(m.Status)
		if err != nil {
			return nil, err
		}
		patch, err := m.Patch.ToDomain()
		if err != nil {
			return nil, err
		}
		return domain.StatusUpdatePayload{
			Status: status,
			Patch:  patch,
			Reason: m.Reason,
			Actor:  m.Actor,
			Force:  m.Force,
		}, nil
	case domain.OperationBulkEdit:
		patch, err := m.Patch.ToDomain()
		if err != nil {
			return nil, err
		}
		return domain.BulkEditPayload{Patch: patch}, nil
	case domain.OperationAllocation:
		return domain.AllocationPayload{
			JobReference: strings.TrimSpace(m.JobReference),
			Actor:        m.Actor,
		}, nil
	case domain.OperationExport:
		format, err := domain.ParseExportFormatFromString(m.Format)
		if err != nil {
			return nil, err
		}
		return domain.ExportPayload{
			Format:         format,
			IncludeImages:  m.IncludeImages,
			IncludeHistory: m.IncludeHistory,
		}, nil
	case domain.OperationImport:
		return domain.ImportPayload{Raw: m.Raw}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operation kind %q", domain.ErrValidation, kind)
	}
}
