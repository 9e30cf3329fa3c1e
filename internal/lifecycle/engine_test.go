package lifecycle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
)

var adjacency = map[domain.Status][]domain.Status{
	domain.StatusWanted:    {domain.StatusOrdered},
	domain.StatusOrdered:   {domain.StatusReceived, domain.StatusWanted},
	domain.StatusReceived:  {domain.StatusStock, domain.StatusAllocated},
	domain.StatusStock:     {domain.StatusAllocated, domain.StatusRemnant},
	domain.StatusAllocated: {domain.StatusConsumed, domain.StatusStock},
	domain.StatusConsumed:  {domain.StatusRemnant},
	domain.StatusRemnant:   {},
}

func newTestEngine(now time.Time) *Engine {
	e := NewEngine()
	e.now = func() time.Time { return now }
	e.newID = func() string { return "t-1" }
	return e
}

func contains(list []domain.Status, s domain.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestIsTransitionAllowedMatchesAdjacencyForAllPairs(t *testing.T) {
	t.Parallel()

	for _, from := range domain.Statuses {
		for _, to := range domain.Statuses {
			want := contains(adjacency[from], to)
			if got := IsTransitionAllowed(from, to); got != want {
				t.Fatalf("IsTransitionAllowed(%s, %s) = %v, want %v", from, to, got, want)
			}

			if want {
				continue
			}
			slab := domain.Slab{ID: "s1", Status: from, SlabType: domain.SlabTypeFull}
			result := Validate(slab, to, domain.SlabPatch{})
			if result.Valid {
				t.Fatalf("Validate(%s -> %s) valid, want invalid", from, to)
			}
			if !errors.Is(result.Err, domain.ErrBusinessRule) {
				t.Fatalf("Validate(%s -> %s) error = %v, want ErrBusinessRule", from, to, result.Err)
			}
			wantMsg := "cannot transition from " + from.String() + " to " + to.String()
			if !strings.Contains(result.Message(), wantMsg) {
				t.Fatalf("Validate(%s -> %s) message = %q, want it to contain %q", from, to, result.Message(), wantMsg)
			}
		}
	}
}

func TestValidTransitions(t *testing.T) {
	t.Parallel()

	remnant := ValidTransitions(domain.StatusRemnant)
	if remnant == nil || len(remnant) != 0 {
		t.Fatalf("ValidTransitions(REMNANT) = %v, want empty non-nil slice", remnant)
	}
	if got := ValidTransitions(domain.Status("LOST")); len(got) != 0 {
		t.Fatalf("ValidTransitions(unknown) = %v, want empty", got)
	}

	ordered := ValidTransitions(domain.StatusOrdered)
	if len(ordered) != 2 || ordered[0] != domain.StatusReceived || ordered[1] != domain.StatusWanted {
		t.Fatalf("ValidTransitions(ORDERED) = %v", ordered)
	}

	ordered[0] = domain.StatusRemnant
	if ValidTransitions(domain.StatusOrdered)[0] != domain.StatusReceived {
		t.Fatal("ValidTransitions must return a copy")
	}

	if !IsTerminal(domain.StatusRemnant) || IsTerminal(domain.StatusConsumed) {
		t.Fatal("only REMNANT is terminal")
	}
}

func TestValidateGates(t *testing.T) {
	t.Parallel()

	date := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	job := "JOB-1"

	tests := []struct {
		name         string
		slab         domain.Slab
		to           domain.Status
		patch        domain.SlabPatch
		wantValid    bool
		wantErr      error
		wantMsg      string
		wantWarnings []string
	}{
		{
			name:    "received without date",
			slab:    domain.Slab{Status: domain.StatusOrdered},
			to:      domain.StatusReceived,
			wantErr: domain.ErrValidation,
			wantMsg: "received date is required",
		},
		{
			name:      "received with date on slab",
			slab:      domain.Slab{Status: domain.StatusOrdered, ReceivedDate: &date},
			to:        domain.StatusReceived,
			wantValid: true,
		},
		{
			name:      "received with date in context",
			slab:      domain.Slab{Status: domain.StatusOrdered},
			to:        domain.StatusReceived,
			patch:     domain.SlabPatch{ReceivedDate: &date},
			wantValid: true,
		},
		{
			name:         "allocated without job warns",
			slab:         domain.Slab{Status: domain.StatusStock},
			to:           domain.StatusAllocated,
			wantValid:    true,
			wantWarnings: []string{WarningJobReferenceRecommended},
		},
		{
			name:      "allocated with job in context",
			slab:      domain.Slab{Status: domain.StatusStock},
			to:        domain.StatusAllocated,
			patch:     domain.SlabPatch{JobReference: &job},
			wantValid: true,
		},
		{
			name:    "consumed without date even with job",
			slab:    domain.Slab{Status: domain.StatusAllocated, JobReference: &job},
			to:      domain.StatusConsumed,
			wantErr: domain.ErrValidation,
			wantMsg: "consumed date is required",
		},
		{
			name:         "consumed with date and no job warns once",
			slab:         domain.Slab{Status: domain.StatusAllocated},
			to:           domain.StatusConsumed,
			patch:        domain.SlabPatch{ConsumedDate: &date},
			wantValid:    true,
			wantWarnings: []string{WarningJobReferenceRecommended},
		},
		{
			name:      "consumed with date and job",
			slab:      domain.Slab{Status: domain.StatusAllocated, JobReference: &job, ConsumedDate: &date},
			to:        domain.StatusConsumed,
			wantValid: true,
		},
		{
			name:         "remnant of remnant type warns",
			slab:         domain.Slab{Status: domain.StatusStock, SlabType: domain.SlabTypeRemnant},
			to:           domain.StatusRemnant,
			wantValid:    true,
			wantWarnings: []string{WarningAlreadyRemnantType},
		},
		{
			name:      "remnant of full slab",
			slab:      domain.Slab{Status: domain.StatusConsumed, SlabType: domain.SlabTypeFull},
			to:        domain.StatusRemnant,
			wantValid: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Validate(tt.slab, tt.to, tt.patch)
			if got.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (err=%v)", got.Valid, tt.wantValid, got.Err)
			}
			if tt.wantErr != nil {
				if !errors.Is(got.Err, tt.wantErr) {
					t.Fatalf("Err = %v, want %v", got.Err, tt.wantErr)
				}
				if !strings.Contains(got.Message(), tt.wantMsg) {
					t.Fatalf("Message() = %q, want it to contain %q", got.Message(), tt.wantMsg)
				}
			} else if got.Err != nil {
				t.Fatalf("Err = %v, want nil", got.Err)
			}
			if len(got.Warnings) != len(tt.wantWarnings) {
				t.Fatalf("Warnings = %v, want %v", got.Warnings, tt.wantWarnings)
			}
			for i := range tt.wantWarnings {
				if got.Warnings[i] != tt.wantWarnings[i] {
					t.Fatalf("Warnings[%d] = %q, want %q", i, got.Warnings[i], tt.wantWarnings[i])
				}
			}
		})
	}
}

func TestEngineExecuteStampsMissingDates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(now)

	slab := domain.Slab{ID: "s1", Status: domain.StatusAllocated, SlabType: domain.SlabTypeFull}
	supplied := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	outcome, err := engine.Execute(slab, TransitionRequest{
		To:     domain.StatusConsumed,
		Patch:  domain.SlabPatch{ConsumedDate: &supplied},
		Reason: "cut for kitchen",
		Actor:  "ops",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Slab.Status != domain.StatusConsumed {
		t.Fatalf("Status = %s, want CONSUMED", outcome.Slab.Status)
	}
	if !outcome.Slab.ConsumedDate.Equal(supplied) {
		t.Fatalf("ConsumedDate = %v, want supplied %v", outcome.Slab.ConsumedDate, supplied)
	}
	if slab.Status != domain.StatusAllocated {
		t.Fatal("Execute must not mutate the input slab")
	}

	tr := outcome.Transition
	if tr.ID != "t-1" || tr.SlabID != "s1" || tr.FromStatus != domain.StatusAllocated || tr.ToStatus != domain.StatusConsumed {
		t.Fatalf("transition = %+v", tr)
	}
	if tr.Reason == nil || *tr.Reason != "cut for kitchen" {
		t.Fatalf("Reason = %v", tr.Reason)
	}
	if !tr.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", tr.CreatedAt, now)
	}
	if len(outcome.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want one job reference warning", outcome.Warnings)
	}
}

func TestEngineExecuteNeverOverwritesExistingDates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(now)
	existing := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)

	slab := domain.Slab{ID: "s1", Status: domain.StatusOrdered, ReceivedDate: &existing}
	outcome, err := engine.Execute(slab, TransitionRequest{To: domain.StatusReceived})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Slab.ReceivedDate.Equal(existing) {
		t.Fatalf("ReceivedDate = %v, want existing %v", outcome.Slab.ReceivedDate, existing)
	}
	if outcome.Transition.Reason != nil {
		t.Fatalf("Reason = %v, want nil", outcome.Transition.Reason)
	}
}

func TestStampDates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	slab := domain.Slab{}
	StampDates(&slab, domain.StatusReceived, now)
	if slab.ReceivedDate == nil || !slab.ReceivedDate.Equal(now) {
		t.Fatalf("ReceivedDate = %v, want %v", slab.ReceivedDate, now)
	}

	StampDates(&slab, domain.StatusStock, now.Add(time.Hour))
	if slab.ConsumedDate != nil {
		t.Fatal("entering STOCK must not stamp dates")
	}

	StampDates(&slab, domain.StatusReceived, now.Add(time.Hour))
	if !slab.ReceivedDate.Equal(now) {
		t.Fatal("StampDates must not overwrite an existing date")
	}
}

func TestEngineExecuteRejectsInvalid(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(time.Now())

	_, err := engine.Execute(domain.Slab{Status: domain.StatusWanted}, TransitionRequest{To: domain.StatusStock})
	if !errors.Is(err, domain.ErrBusinessRule) {
		t.Fatalf("Execute() error = %v, want ErrBusinessRule", err)
	}

	_, err = engine.Execute(domain.Slab{Status: domain.StatusOrdered}, TransitionRequest{To: domain.StatusReceived})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Execute() error = %v, want ErrValidation", err)
	}
}

func TestProgressAndStepTables(t *testing.T) {
	t.Parallel()

	if ProgressPercent(domain.StatusConsumed) != 100 || ProgressPercent(domain.StatusRemnant) != 100 {
		t.Fatal("terminal branch statuses should report 100 percent")
	}
	if StepIndex(domain.StatusConsumed) != StepIndex(domain.StatusRemnant) {
		t.Fatal("CONSUMED and REMNANT should share a step index")
	}
	if StepIndex(domain.Status("LOST")) != -1 {
		t.Fatal("unknown status should have step -1")
	}

	prev := -1
	for _, status := range domain.Statuses {
		p := ProgressPercent(status)
		if p < 0 || p > 100 {
			t.Fatalf("ProgressPercent(%s) = %d out of range", status, p)
		}
		if p < prev {
			t.Fatalf("ProgressPercent(%s) = %d decreases along the lifecycle", status, p)
		}
		prev = p
	}
}
