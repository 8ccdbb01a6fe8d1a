package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/hra-case-service/internal/api/dto"
	"github.com/spec-kit/hra-case-service/internal/auth"
	"github.com/spec-kit/hra-case-service/internal/domain"
	"github.com/spec-kit/hra-case-service/internal/repository"
	"github.com/spec-kit/hra-case-service/internal/service"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

const defaultPageSize = 50

// CasesHandler manages compliance case endpoints.
type CasesHandler struct {
	workflow *service.WorkflowService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(workflow *service.WorkflowService) *CasesHandler {
	return &CasesHandler{workflow: workflow}
}

// CreateCase POST /cases.
func (h *CasesHandler) CreateCase(c *fiber.Ctx) error {
	actor, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	created, err := h.workflow.CreateCase(c.Context(), actor, service.CaseCreateInput{
		CaseID:     req.CaseID,
		ClientRef:  req.ClientRef,
		ClientName: req.ClientName,
		LOB:        req.LOB,
		Priority:   req.Priority,
		RiskRating: req.RiskRating,
		Indicators: req.Indicators,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": caseSummary(created)})
}

// ListCases GET /cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	filter := parseCaseQuery(c)
	cases, err := h.workflow.ListCases(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.CaseSummary, 0, len(cases))
	for i := range cases {
		items = append(items, caseSummary(&cases[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetCase GET /cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	found, err := h.workflow.GetCase(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	history, err := h.workflow.ListHistory(c.Context(), found.ID, 0, 0)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(found, history)})
}

// AssignCase POST /cases/:id/assign.
func (h *CasesHandler) AssignCase(c *fiber.Ctx) error {
	actor, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.AssignCaseRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.workflow.AssignCase(c.Context(), actor, c.Params("id"), req.Target)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseSummary(updated)})
}

// StartCase POST /cases/:id/start.
func (h *CasesHandler) StartCase(c *fiber.Ctx) error {
	actor, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	updated, err := h.workflow.StartCase(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseSummary(updated)})
}

// EscalateCase POST /cases/:id/escalate.
func (h *CasesHandler) EscalateCase(c *fiber.Ctx) error {
	actor, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	updated, err := h.workflow.EscalateCase(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseSummary(updated)})
}

// ReturnCase POST /cases/:id/return.
func (h *CasesHandler) ReturnCase(c *fiber.Ctx) error {
	actor, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.ReturnCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.workflow.ReturnCase(c.Context(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseSummary(updated)})
}

// CompleteCase POST /cases/:id/complete.
func (h *CasesHandler) CompleteCase(c *fiber.Ctx) error {
	actor, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.CompleteCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.workflow.CompleteCase(c.Context(), actor, c.Params("id"), req.Outcome)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseSummary(updated)})
}

// ReassignCase POST /cases/:id/reassign.
func (h *CasesHandler) ReassignCase(c *fiber.Ctx) error {
	actor, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.ReassignCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.AssigneeID) == "" {
		return apperrors.NewValidationError("assignee_id required", nil)
	}
	updated, err := h.workflow.ReassignCase(c.Context(), actor, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseSummary(updated)})
}

// ListHistory GET /cases/:id/history.
func (h *CasesHandler) ListHistory(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	limit, offset := parsePagination(c)
	entries, err := h.workflow.ListHistory(c.Context(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.CaseHistoryEntry, 0, len(entries))
	for i := range entries {
		items = append(items, historyEntry(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseCaseQuery(c *fiber.Ctx) repository.CaseFilter {
	filter := repository.CaseFilter{}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.CaseStatus(strings.TrimSpace(part))
			if domain.ValidStatus(status) {
				filter.Statuses = append(filter.Statuses, status)
			}
		}
	}
	if raw := c.Query("priority"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			priority := domain.CasePriority(strings.TrimSpace(part))
			if domain.ValidPriority(priority) {
				filter.Priorities = append(filter.Priorities, priority)
			}
		}
	}
	if lob := c.Query("lob"); lob != "" {
		filter.LOB = &lob
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	if clientRef := c.Query("client_ref"); clientRef != "" {
		filter.ClientRef = &clientRef
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	filter.Limit, filter.Offset = parsePagination(c)
	return filter
}

func parsePagination(c *fiber.Ctx) (limit, offset int) {
	pageSize := defaultPageSize
	if raw := c.Query("page_size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			pageSize = parsed
		}
	}
	page := 1
	if raw := c.Query("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	return pageSize, (page - 1) * pageSize
}

func parseTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &parsed
}

func caseSummary(c *domain.Case) dto.CaseSummary {
	return dto.CaseSummary{
		ID:            c.ID,
		ClientRef:     c.ClientRef,
		ClientName:    c.ClientName,
		LOB:           c.LOB,
		Priority:      c.Priority,
		RiskRating:    c.RiskRating,
		Status:        c.Status,
		AssigneeID:    c.AssigneeID,
		Outcome:       c.Outcome,
		ReviewReasons: c.ReviewReasons,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		CompletedAt:   c.CompletedAt,
	}
}

func caseDetail(c *domain.Case, history []domain.CaseHistory) dto.CaseDetailResponse {
	entries := make([]dto.CaseHistoryEntry, 0, len(history))
	for i := range history {
		entries = append(entries, historyEntry(&history[i]))
	}
	return dto.CaseDetailResponse{
		CaseSummary:     caseSummary(c),
		Indicators:      c.Indicators,
		PriorAssigneeID: c.PriorAssigneeID,
		Version:         c.Version,
		History:         entries,
	}
}

func historyEntry(e *domain.CaseHistory) dto.CaseHistoryEntry {
	return dto.CaseHistoryEntry{
		ID:            e.ID,
		ActorID:       e.ActorID,
		ActorRole:     e.ActorRole,
		Tag:           e.Tag,
		FromStatus:    e.FromStatus,
		ToStatus:      e.ToStatus,
		OldAssigneeID: e.OldAssigneeID,
		NewAssigneeID: e.NewAssigneeID,
		Reason:        e.Reason,
		CreatedAt:     e.CreatedAt,
	}
}
