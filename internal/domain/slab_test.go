package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "valid uppercase", input: "STOCK", want: StatusStock},
		{name: "valid lowercase with spaces", input: " received ", want: StatusReceived},
		{name: "invalid", input: "sold", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseOperationKindFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseOperationKindFromString("status-update")
	if err != nil {
		t.Fatalf("ParseOperationKindFromString() unexpected error = %v", err)
	}
	if got != OperationStatusUpdate {
		t.Fatalf("ParseOperationKindFromString() = %s, want %s", got, OperationStatusUpdate)
	}

	_, err = ParseOperationKindFromString("delete")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseOperationKindFromString() error = %v, want ErrValidation", err)
	}
}

func TestStatusInfo(t *testing.T) {
	t.Parallel()

	for _, status := range Statuses {
		meta := StatusInfo(status)
		if meta.Label == "" {
			t.Fatalf("StatusInfo(%s).Label is empty", status)
		}
	}

	if !StatusInfo(StatusConsumed).Destructive || !StatusInfo(StatusConsumed).RequiresConfirmation {
		t.Fatal("consumed should be destructive and require confirmation")
	}
	if StatusInfo(StatusStock).Destructive {
		t.Fatal("stock should not be destructive")
	}
	if got := StatusInfo(Status("LOST")).Label; got != "LOST" {
		t.Fatalf("unknown status label = %q, want LOST", got)
	}
}

func TestSlabApplyMergesOnlySetFields(t *testing.T) {
	t.Parallel()

	received := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	base := Slab{
		ID:           "s1",
		Serial:       "SN-1",
		Material:     "Granite",
		Color:        "Black",
		SlabType:     SlabTypeFull,
		Status:       StatusOrdered,
		ReceivedDate: &received,
	}

	color := "White"
	job := "JOB-7"
	updated := base.Apply(SlabPatch{Color: &color, JobReference: &job})

	if updated.Color != "White" {
		t.Fatalf("Color = %q, want White", updated.Color)
	}
	if updated.Material != "Granite" {
		t.Fatalf("Material = %q, want Granite", updated.Material)
	}
	if updated.JobReference == nil || *updated.JobReference != "JOB-7" {
		t.Fatalf("JobReference = %v, want JOB-7", updated.JobReference)
	}
	if base.JobReference != nil {
		t.Fatal("Apply must not mutate the receiver")
	}

	job = "JOB-8"
	if *updated.JobReference != "JOB-7" {
		t.Fatal("Apply must copy pointer values")
	}
	if updated.ReceivedDate == base.ReceivedDate {
		t.Fatal("Apply must not share date pointers with the original")
	}
}

func TestSlabValidate(t *testing.T) {
	t.Parallel()

	base := Slab{
		ID:       "s1",
		Serial:   "SN-1",
		SlabType: SlabTypeFull,
		Status:   StatusWanted,
		Cost:     decimal.RequireFromString("120.50"),
	}

	tests := []struct {
		name    string
		mutate  func(*Slab)
		wantErr bool
	}{
		{name: "valid slab", mutate: func(s *Slab) {}},
		{name: "missing serial", mutate: func(s *Slab) { s.Serial = " " }, wantErr: true},
		{name: "invalid status", mutate: func(s *Slab) { s.Status = Status("LOST") }, wantErr: true},
		{name: "invalid type", mutate: func(s *Slab) { s.SlabType = SlabType("HALF") }, wantErr: true},
		{name: "negative width", mutate: func(s *Slab) { s.Width = -1 }, wantErr: true},
		{name: "negative cost", mutate: func(s *Slab) { s.Cost = decimal.NewFromInt(-5) }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestUnitNotFoundErrorMatchesErrNotFound(t *testing.T) {
	t.Parallel()

	err := error(&UnitNotFoundError{ID: "s-404"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("UnitNotFoundError should match ErrNotFound")
	}
	if err.Error() != "unit not found: s-404" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestBatchOperationCloneIsIndependent(t *testing.T) {
	t.Parallel()

	end := time.Now()
	op := BatchOperation{
		TargetIDs: []string{"a", "b"},
		Errors:    []string{"Item a: boom"},
		EndTime:   &end,
		Status:    RunStatusFailed,
	}

	clone := op.Clone()
	clone.TargetIDs[0] = "z"
	clone.Errors[0] = "changed"

	if op.TargetIDs[0] != "a" || op.Errors[0] != "Item a: boom" {
		t.Fatal("Clone must not share slices")
	}
	if !op.Status.IsTerminal() || RunStatusRunning.IsTerminal() {
		t.Fatal("IsTerminal mismatch")
	}
}
