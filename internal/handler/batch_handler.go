package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/observability"
	"github.com/kursadbilgin/slab-engine/internal/queue"
	"github.com/kursadbilgin/slab-engine/internal/service"
)

type BatchService interface {
	Submit(ctx context.Context, req service.BatchRequest) (*service.Run, error)
	List() []domain.BatchOperation
	Get(id string) (domain.BatchOperation, error)
	Cancel(id string) (domain.BatchOperation, error)
	Dismiss(id string) error
}

// BatchCommandPublisher enqueues batch commands for the worker instead of running them in-process.
type BatchCommandPublisher interface {
	PublishBatch(ctx context.Context, msg queue.BatchMessage) error
}

type BatchHandler struct {
	service  BatchService
	commands BatchCommandPublisher
}

func NewBatchHandler(service BatchService, commands BatchCommandPublisher) (*BatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	return &BatchHandler{service: service, commands: commands}, nil
}

// RegisterBatchRoutes mounts the batch endpoints. commands may be nil, in which case
// the queued command endpoint is not mounted.
func RegisterBatchRoutes(router fiber.Router, service BatchService, commands BatchCommandPublisher) error {
	h, err := NewBatchHandler(service, commands)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches", h.ListBatches)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Post("/batches/:id/cancel", h.CancelBatch)
	v1.Delete("/batches/:id", h.DismissBatch)
	if commands != nil {
		v1.Post("/batch-commands", h.EnqueueBatch)
	}

	return nil
}

type batchRequest struct {
	Kind           string              `json:"kind" validate:"required"`
	Title          string              `json:"title"`
	TargetIDs      []string            `json:"targetIds" validate:"dive,required"`
	Status         string              `json:"status"`
	Force          bool                `json:"force"`
	Reason         string              `json:"reason"`
	Actor          string              `json:"actor"`
	JobReference   string              `json:"jobReference"`
	Format         string              `json:"format"`
	IncludeImages  bool                `json:"includeImages"`
	IncludeHistory bool                `json:"includeHistory"`
	Patch          *queue.PatchMessage `json:"patch"`
	Raw            string              `json:"raw"`
}

func (r batchRequest) toMessage() queue.BatchMessage {
	return queue.BatchMessage{
		Kind:           r.Kind,
		Title:          r.Title,
		TargetIDs:      r.TargetIDs,
		Status:         r.Status,
		Force:          r.Force,
		Reason:         r.Reason,
		Actor:          r.Actor,
		JobReference:   r.JobReference,
		Format:         r.Format,
		IncludeImages:  r.IncludeImages,
		IncludeHistory: r.IncludeHistory,
		Patch:          r.Patch,
		Raw:            r.Raw,
	}
}

type operationResponse struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	TargetIDs []string   `json:"targetIds"`
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	Status    string     `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Errors    []string   `json:"errors"`
}

type enqueueResponse struct {
	CommandID     string `json:"commandId"`
	CorrelationID string `json:"correlationId,omitempty"`
	Status        string `json:"status"`
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	msg := req.toMessage()
	payload, err := msg.Payload()
	if err != nil {
		return toHTTPError(err)
	}

	run, err := h.service.Submit(c.UserContext(), service.BatchRequest{
		Title:     msg.Title,
		TargetIDs: msg.TargetIDs,
		Payload:   payload,
	})
	if err != nil {
		return toHTTPError(err)
	}

	op, err := h.service.Get(run.ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(toOperationResponse(op))
}

func (h *BatchHandler) EnqueueBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	msg := req.toMessage()
	msg.CommandID = uuid.NewString()
	if correlationID, ok := observability.CorrelationIDFromContext(c.UserContext()); ok {
		msg.CorrelationID = correlationID
	}
	if err := msg.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.commands.PublishBatch(c.UserContext(), msg); err != nil {
		return fmt.Errorf("failed to enqueue batch command: %w", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(enqueueResponse{
		CommandID:     msg.CommandID,
		CorrelationID: msg.CorrelationID,
		Status:        "QUEUED",
	})
}

func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	ops := h.service.List()
	data := make([]operationResponse, 0, len(ops))
	for _, op := range ops {
		data = append(data, toOperationResponse(op))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	op, err := h.service.Get(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toOperationResponse(op))
}

func (h *BatchHandler) CancelBatch(c *fiber.Ctx) error {
	op, err := h.service.Cancel(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toOperationResponse(op))
}

func (h *BatchHandler) DismissBatch(c *fiber.Ctx) error {
	if err := h.service.Dismiss(strings.TrimSpace(c.Params("id"))); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func toOperationResponse(op domain.BatchOperation) operationResponse {
	targets := op.TargetIDs
	if targets == nil {
		targets = []string{}
	}
	errs := op.Errors
	if errs == nil {
		errs = []string{}
	}

	return operationResponse{
		ID:        op.ID,
		Kind:      op.Kind.String(),
		Title:     op.Title,
		TargetIDs: targets,
		Total:     op.Total,
		Completed: op.Completed,
		Failed:    op.Failed,
		Status:    op.Status.String(),
		StartTime: op.StartTime,
		EndTime:   op.EndTime,
		Errors:    errs,
	}
}
