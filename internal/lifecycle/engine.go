// Package lifecycle decides which slab status changes are legal and computes
// the resulting record for an accepted change. It performs no I/O.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/slab-engine/internal/domain"
)

const (
	WarningJobReferenceRecommended = "job reference recommended"
	WarningAlreadyRemnantType      = "already remnant type"
)

var transitions = map[domain.Status][]domain.Status{
	domain.StatusWanted:    {domain.StatusOrdered},
	domain.StatusOrdered:   {domain.StatusReceived, domain.StatusWanted},
	domain.StatusReceived:  {domain.StatusStock, domain.StatusAllocated},
	domain.StatusStock:     {domain.StatusAllocated, domain.StatusRemnant},
	domain.StatusAllocated: {domain.StatusConsumed, domain.StatusStock},
	domain.StatusConsumed:  {domain.StatusRemnant},
	domain.StatusRemnant:   {},
}

// Consumed and Remnant share the last step: both end the "used" branch.
var steps = map[domain.Status]int{
	domain.StatusWanted:    0,
	domain.StatusOrdered:   1,
	domain.StatusReceived:  2,
	domain.StatusStock:     3,
	domain.StatusAllocated: 4,
	domain.StatusConsumed:  5,
	domain.StatusRemnant:   5,
}

var progress = map[domain.Status]int{
	domain.StatusWanted:    0,
	domain.StatusOrdered:   20,
	domain.StatusReceived:  40,
	domain.StatusStock:     60,
	domain.StatusAllocated: 80,
	domain.StatusConsumed:  100,
	domain.StatusRemnant:   100,
}

func IsTransitionAllowed(from, to domain.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the statuses reachable from from. The result is never nil.
func ValidTransitions(from domain.Status) []domain.Status {
	next := transitions[from]
	out := make([]domain.Status, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether status has no outgoing transitions.
func IsTerminal(status domain.Status) bool {
	return status.IsValid() && len(transitions[status]) == 0
}

// ProgressPercent maps a status to 0..100 for display. Unknown statuses map to 0.
func ProgressPercent(status domain.Status) int {
	return progress[status]
}

// StepIndex maps a status to its position in the lifecycle. Unknown statuses map to -1.
func StepIndex(status domain.Status) int {
	step, ok := steps[status]
	if !ok {
		return -1
	}
	return step
}

// ValidationResult is the structured outcome of a pre-flight check.
// Err is set only when Valid is false.
type ValidationResult struct {
	Valid    bool
	Err      error
	Warnings []string
}

func (r ValidationResult) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Validate checks that slab may move to status to, given the context data in patch.
// It never returns an error value; failures are reported in the result.
func Validate(slab domain.Slab, to domain.Status, patch domain.SlabPatch) ValidationResult {
	if !IsTransitionAllowed(slab.Status, to) {
		return ValidationResult{
			Err: fmt.Errorf("%w: cannot transition from %s to %s", domain.ErrBusinessRule, slab.Status, to),
		}
	}

	var warnings []string
	hasJob := slab.HasJobReference() || patch.HasJobReference()

	switch to {
	case domain.StatusReceived:
		if slab.ReceivedDate == nil && patch.ReceivedDate == nil {
			return ValidationResult{Err: fmt.Errorf("%w: received date is required", domain.ErrValidation)}
		}
	case domain.StatusAllocated:
		if !hasJob {
			warnings = append(warnings, WarningJobReferenceRecommended)
		}
	case domain.StatusConsumed:
		if slab.ConsumedDate == nil && patch.ConsumedDate == nil {
			return ValidationResult{Err: fmt.Errorf("%w: consumed date is required", domain.ErrValidation)}
		}
		if !hasJob {
			warnings = append(warnings, WarningJobReferenceRecommended)
		}
	case domain.StatusRemnant:
		if slab.SlabType == domain.SlabTypeRemnant {
			warnings = append(warnings, WarningAlreadyRemnantType)
		}
	}

	return ValidationResult{Valid: true, Warnings: warnings}
}

// StampDates sets ReceivedDate or ConsumedDate to now when entering the matching status
// and the date is still empty. Existing dates are never overwritten.
func StampDates(slab *domain.Slab, to domain.Status, now time.Time) {
	switch to {
	case domain.StatusReceived:
		if slab.ReceivedDate == nil {
			stamped := now
			slab.ReceivedDate = &stamped
		}
	case domain.StatusConsumed:
		if slab.ConsumedDate == nil {
			stamped := now
			slab.ConsumedDate = &stamped
		}
	}
}

// TransitionRequest describes a requested status change and its context data.
type TransitionRequest struct {
	To     domain.Status
	Patch  domain.SlabPatch
	Reason string
	Actor  string
}

// Outcome is the result of an accepted transition. Persisting it is the caller's job.
type Outcome struct {
	Slab       domain.Slab
	Transition domain.Transition
	Warnings   []string
}

// Engine executes transitions with an injectable clock and id source.
type Engine struct {
	now   func() time.Time
	newID func() string
}

func NewEngine() *Engine {
	return &Engine{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (e *Engine) IsTransitionAllowed(from, to domain.Status) bool {
	return IsTransitionAllowed(from, to)
}

func (e *Engine) ValidTransitions(from domain.Status) []domain.Status {
	return ValidTransitions(from)
}

func (e *Engine) Validate(slab domain.Slab, to domain.Status, patch domain.SlabPatch) ValidationResult {
	return Validate(slab, to, patch)
}

func (e *Engine) ProgressPercent(status domain.Status) int { return ProgressPercent(status) }

func (e *Engine) StepIndex(status domain.Status) int { return StepIndex(status) }

// Execute re-validates the request and, when valid, returns the updated slab and its transition record.
func (e *Engine) Execute(slab domain.Slab, req TransitionRequest) (*Outcome, error) {
	result := e.Validate(slab, req.To, req.Patch)
	if !result.Valid {
		if result.Err == nil {
			return nil, errors.New("transition rejected")
		}
		return nil, result.Err
	}

	now := e.now().UTC()
	updated := slab.Apply(req.Patch)
	updated.Status = req.To
	updated.UpdatedAt = now
	StampDates(&updated, req.To, now)

	return &Outcome{
		Slab: updated,
		Transition: domain.Transition{
			ID:         e.newID(),
			SlabID:     slab.ID,
			FromStatus: slab.Status,
			ToStatus:   req.To,
			Reason:     optionalString(req.Reason),
			Actor:      optionalString(req.Actor),
			CreatedAt:  now,
		},
		Warnings: result.Warnings,
	}, nil
}

func optionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
