package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/export"
	"github.com/kursadbilgin/slab-engine/internal/lifecycle"
	"github.com/kursadbilgin/slab-engine/internal/queue"
	"github.com/kursadbilgin/slab-engine/internal/repository"
	"github.com/kursadbilgin/slab-engine/internal/service"
	"github.com/shopspring/decimal"
)

type SlabService interface {
	Create(ctx context.Context, input service.CreateSlabInput) (*domain.Slab, error)
	GetByID(ctx context.Context, id string) (*domain.Slab, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Slab, int64, error)
	History(ctx context.Context, id string) ([]domain.Transition, error)
	ValidTransitions(ctx context.Context, id string) (*domain.Slab, []domain.StatusMeta, error)
	Preview(ctx context.Context, id string, to domain.Status, patch domain.SlabPatch) (lifecycle.ValidationResult, error)
	Transition(ctx context.Context, id string, req lifecycle.TransitionRequest) (*lifecycle.Outcome, error)
	Export(ctx context.Context, ids []string, format domain.ExportFormat, opts export.Options) ([]byte, error)
}

type SlabHandler struct {
	service SlabService
}

func NewSlabHandler(service SlabService) (*SlabHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("slab service is required")
	}
	return &SlabHandler{service: service}, nil
}

func RegisterSlabRoutes(router fiber.Router, service SlabService) error {
	h, err := NewSlabHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/statuses", h.ListStatuses)
	v1.Post("/slabs", h.CreateSlab)
	v1.Get("/slabs", h.ListSlabs)
	v1.Get("/slabs/export", h.ExportSlabs)
	v1.Get("/slabs/:id", h.GetSlab)
	v1.Get("/slabs/:id/history", h.GetHistory)
	v1.Get("/slabs/:id/transitions", h.GetValidTransitions)
	v1.Post("/slabs/:id/transitions/preview", h.PreviewTransition)
	v1.Post("/slabs/:id/transitions", h.TransitionSlab)

	return nil
}

type createSlabRequest struct {
	Serial       string          `json:"serial" validate:"required,max=100"`
	Material     string          `json:"material"`
	Color        string          `json:"color"`
	Length       float64         `json:"length" validate:"gte=0"`
	Width        float64         `json:"width" validate:"gte=0"`
	Thickness    float64         `json:"thickness" validate:"gte=0"`
	Supplier     string          `json:"supplier"`
	Location     string          `json:"location"`
	Cost         decimal.Decimal `json:"cost"`
	SlabType     string          `json:"slabType"`
	Status       string          `json:"status"`
	JobReference *string         `json:"jobReference"`
	ReceivedDate *time.Time      `json:"receivedDate"`
	ConsumedDate *time.Time      `json:"consumedDate"`
	Notes        *string         `json:"notes"`
}

type transitionRequest struct {
	Status string              `json:"status" validate:"required"`
	Patch  *queue.PatchMessage `json:"patch"`
	Reason string              `json:"reason"`
	Actor  string              `json:"actor"`
}

type slabResponse struct {
	ID              string     `json:"id"`
	Serial          string     `json:"serial"`
	Material        string     `json:"material"`
	Color           string     `json:"color"`
	Length          float64    `json:"length"`
	Width           float64    `json:"width"`
	Thickness       float64    `json:"thickness"`
	Supplier        string     `json:"supplier"`
	Location        string     `json:"location"`
	Cost            string     `json:"cost"`
	SlabType        string     `json:"slabType"`
	Status          string     `json:"status"`
	ProgressPercent int        `json:"progressPercent"`
	StepIndex       int        `json:"stepIndex"`
	JobReference    *string    `json:"jobReference,omitempty"`
	ReceivedDate    *time.Time `json:"receivedDate,omitempty"`
	ConsumedDate    *time.Time `json:"consumedDate,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type statusResponse struct {
	Status               string   `json:"status"`
	Label                string   `json:"label"`
	Description          string   `json:"description"`
	Destructive          bool     `json:"destructive"`
	RequiresConfirmation bool     `json:"requiresConfirmation"`
	ProgressPercent      int      `json:"progressPercent"`
	StepIndex            int      `json:"stepIndex"`
	Next                 []string `json:"next"`
}

type transitionResponse struct {
	ID         string    `json:"id"`
	SlabID     string    `json:"slabId"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	Reason     *string   `json:"reason,omitempty"`
	Actor      *string   `json:"actor,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type validTransitionsResponse struct {
	SlabID  string           `json:"slabId"`
	Current statusResponse   `json:"current"`
	Next    []statusResponse `json:"next"`
}

type previewResponse struct {
	Valid    bool     `json:"valid"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings"`
}

type transitionResultResponse struct {
	Slab       slabResponse       `json:"slab"`
	Transition transitionResponse `json:"transition"`
	Warnings   []string           `json:"warnings"`
}

type listSlabsResponse struct {
	Data []slabResponse `json:"data"`
	Meta listMeta       `json:"meta"`
}

func (h *SlabHandler) ListStatuses(c *fiber.Ctx) error {
	statuses := make([]statusResponse, 0, len(domain.Statuses))
	for _, status := range domain.Statuses {
		statuses = append(statuses, toStatusResponse(status))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": statuses})
}

func (h *SlabHandler) CreateSlab(c *fiber.Ctx) error {
	var req createSlabRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	input := service.CreateSlabInput{
		Serial:       req.Serial,
		Material:     req.Material,
		Color:        req.Color,
		Length:       req.Length,
		Width:        req.Width,
		Thickness:    req.Thickness,
		Supplier:     req.Supplier,
		Location:     req.Location,
		Cost:         req.Cost,
		JobReference: req.JobReference,
		ReceivedDate: req.ReceivedDate,
		ConsumedDate: req.ConsumedDate,
		Notes:        req.Notes,
	}
	if strings.TrimSpace(req.SlabType) != "" {
		slabType, err := domain.ParseSlabTypeFromString(req.SlabType)
		if err != nil {
			return toHTTPError(err)
		}
		input.SlabType = slabType
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := domain.ParseStatusFromString(req.Status)
		if err != nil {
			return toHTTPError(err)
		}
		input.Status = status
	}

	slab, err := h.service.Create(c.UserContext(), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toSlabResponse(slab))
}

func (h *SlabHandler) ListSlabs(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	slabs, total, err := h.service.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]slabResponse, 0, len(slabs))
	for i := range slabs {
		data = append(data, toSlabResponse(&slabs[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listSlabsResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *SlabHandler) GetSlab(c *fiber.Ctx) error {
	slab, err := h.service.GetByID(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toSlabResponse(slab))
}

func (h *SlabHandler) GetHistory(c *fiber.Ctx) error {
	history, err := h.service.History(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]transitionResponse, 0, len(history))
	for _, t := range history {
		data = append(data, toTransitionResponse(t))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *SlabHandler) GetValidTransitions(c *fiber.Ctx) error {
	slab, next, err := h.service.ValidTransitions(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	resp := validTransitionsResponse{
		SlabID:  slab.ID,
		Current: toStatusResponse(slab.Status),
		Next:    make([]statusResponse, 0, len(next)),
	}
	for _, meta := range next {
		resp.Next = append(resp.Next, toStatusResponse(meta.Status))
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *SlabHandler) PreviewTransition(c *fiber.Ctx) error {
	to, patch, err := parseTransitionBody(c)
	if err != nil {
		return err
	}

	result, err := h.service.Preview(c.UserContext(), strings.TrimSpace(c.Params("id")), to.Status, patch)
	if err != nil {
		return toHTTPError(err)
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return c.Status(fiber.StatusOK).JSON(previewResponse{
		Valid:    result.Valid,
		Error:    result.Message(),
		Warnings: warnings,
	})
}

func (h *SlabHandler) TransitionSlab(c *fiber.Ctx) error {
	req, patch, err := parseTransitionBody(c)
	if err != nil {
		return err
	}

	outcome, err := h.service.Transition(c.UserContext(), strings.TrimSpace(c.Params("id")), lifecycle.TransitionRequest{
		To:     req.Status,
		Patch:  patch,
		Reason: req.Reason,
		Actor:  req.Actor,
	})
	if err != nil {
		return toHTTPError(err)
	}

	warnings := outcome.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return c.Status(fiber.StatusOK).JSON(transitionResultResponse{
		Slab:       toSlabResponse(&outcome.Slab),
		Transition: toTransitionResponse(outcome.Transition),
		Warnings:   warnings,
	})
}

func (h *SlabHandler) ExportSlabs(c *fiber.Ctx) error {
	format, err := domain.ParseExportFormatFromString(c.Query("format", string(domain.ExportFormatJSON)))
	if err != nil {
		return toHTTPError(err)
	}

	body, err := h.service.Export(c.UserContext(), splitIDs(c.Query("ids")), format, export.Options{
		IncludeImages:  c.QueryBool("includeImages", false),
		IncludeHistory: c.QueryBool("includeHistory", false),
	})
	if err != nil {
		return toHTTPError(err)
	}

	c.Set(fiber.HeaderContentType, export.ContentType(format))
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="slabs.%s"`, export.Extension(format)))
	return c.Status(fiber.StatusOK).Send(body)
}

type parsedTransition struct {
	Status domain.Status
	Reason string
	Actor  string
}

func parseTransitionBody(c *fiber.Ctx) (parsedTransition, domain.SlabPatch, error) {
	var req transitionRequest
	if err := parseBody(c, &req); err != nil {
		return parsedTransition{}, domain.SlabPatch{}, err
	}

	status, err := domain.ParseStatusFromString(req.Status)
	if err != nil {
		return parsedTransition{}, domain.SlabPatch{}, toHTTPError(err)
	}
	patch, err := req.Patch.ToDomain()
	if err != nil {
		return parsedTransition{}, domain.SlabPatch{}, toHTTPError(err)
	}

	return parsedTransition{Status: status, Reason: req.Reason, Actor: req.Actor}, patch, nil
}

func toStatusResponse(status domain.Status) statusResponse {
	meta := domain.StatusInfo(status)
	next := lifecycle.ValidTransitions(status)
	nextNames := make([]string, 0, len(next))
	for _, s := range next {
		nextNames = append(nextNames, s.String())
	}

	return statusResponse{
		Status:               status.String(),
		Label:                meta.Label,
		Description:          meta.Description,
		Destructive:          meta.Destructive,
		RequiresConfirmation: meta.RequiresConfirmation,
		ProgressPercent:      lifecycle.ProgressPercent(status),
		StepIndex:            lifecycle.StepIndex(status),
		Next:                 nextNames,
	}
}

func toSlabResponse(s *domain.Slab) slabResponse {
	if s == nil {
		return slabResponse{}
	}

	return slabResponse{
		ID:              s.ID,
		Serial:          s.Serial,
		Material:        s.Material,
		Color:           s.Color,
		Length:          s.Length,
		Width:           s.Width,
		Thickness:       s.Thickness,
		Supplier:        s.Supplier,
		Location:        s.Location,
		Cost:            s.Cost.StringFixed(2),
		SlabType:        s.SlabType.String(),
		Status:          s.Status.String(),
		ProgressPercent: lifecycle.ProgressPercent(s.Status),
		StepIndex:       lifecycle.StepIndex(s.Status),
		JobReference:    s.JobReference,
		ReceivedDate:    s.ReceivedDate,
		ConsumedDate:    s.ConsumedDate,
		Notes:           s.Notes,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toTransitionResponse(t domain.Transition) transitionResponse {
	return transitionResponse{
		ID:         t.ID,
		SlabID:     t.SlabID,
		FromStatus: t.FromStatus.String(),
		ToStatus:   t.ToStatus.String(),
		Reason:     t.Reason,
		Actor:      t.Actor,
		CreatedAt:  t.CreatedAt,
	}
}
