package provider

import (
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
)

// RunSummary is the webhook body describing a finished batch run.
type RunSummary struct {
	Event       string     `json:"event"`
	OperationID string     `json:"operationId"`
	Kind        string     `json:"kind"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	Errors      []string   `json:"errors"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

const runFinishedEvent = "batch.run.finished"

func NewRunSummary(op domain.BatchOperation) RunSummary {
	errs := op.Errors
	if errs == nil {
		errs = []string{}
	}
	return RunSummary{
		Event:       runFinishedEvent,
		OperationID: op.ID,
		Kind:        op.Kind.String(),
		Title:       op.Title,
		Status:      op.Status.String(),
		Total:       op.Total,
		Completed:   op.Completed,
		Failed:      op.Failed,
		Errors:      errs,
		StartTime:   op.StartTime,
		EndTime:     op.EndTime,
	}
}
