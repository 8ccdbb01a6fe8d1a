package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/hra-case-service/internal/api/dto"
	"github.com/spec-kit/hra-case-service/internal/auth"
	"github.com/spec-kit/hra-case-service/internal/domain"
	"github.com/spec-kit/hra-case-service/internal/persistence"
	"github.com/spec-kit/hra-case-service/internal/service"
	"github.com/spec-kit/hra-case-service/internal/worker"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

// JobsHandler manages bulk intake job endpoints.
type JobsHandler struct {
	bulk   *service.BulkService
	runner *worker.Runner
	cache  *persistence.JobProgressCache
}

// NewJobsHandler constructs handler.
func NewJobsHandler(bulk *service.BulkService, runner *worker.Runner, cache *persistence.JobProgressCache) *JobsHandler {
	return &JobsHandler{bulk: bulk, runner: runner, cache: cache}
}

// SubmitJob POST /jobs.
func (h *JobsHandler) SubmitJob(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	var req dto.SubmitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	rows := make([]domain.IntakeRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, domain.IntakeRow{
			CaseID:     row.CaseID,
			ClientRef:  row.ClientRef,
			ClientName: row.ClientName,
			LOB:        row.LOB,
			Priority:   row.Priority,
			RiskRating: row.RiskRating,
			Indicators: row.Indicators,
		})
	}

	job, err := h.bulk.Submit(c.Context(), strings.TrimSpace(req.Name), rows)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.jobResponse(job)})
}

// StartJob POST /jobs/:id/start.
func (h *JobsHandler) StartJob(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	jobID := c.Params("id")
	if err := h.runner.Start(c.Context(), jobID); err != nil {
		return err
	}
	job, err := h.bulk.GetJob(c.Context(), jobID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": h.jobResponse(job)})
}

// PauseJob POST /jobs/:id/pause.
func (h *JobsHandler) PauseJob(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	if err := h.runner.Pause(c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"paused": true}})
}

// ResumeJob POST /jobs/:id/resume.
func (h *JobsHandler) ResumeJob(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	if err := h.runner.Resume(c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"paused": false}})
}

// CancelJob POST /jobs/:id/cancel.
func (h *JobsHandler) CancelJob(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	if err := h.runner.Cancel(c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"cancelled": true}})
}

// GetJob GET /jobs/:id.
func (h *JobsHandler) GetJob(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	job, err := h.bulk.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.jobResponse(job)})
}

// GetJobProgress GET /jobs/:id/progress. Served from the Redis snapshot
// when present so dashboard polling stays off Postgres.
func (h *JobsHandler) GetJobProgress(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	jobID := c.Params("id")
	snapshot, ok, err := h.cache.Fetch(c.Context(), jobID)
	if err == nil && ok {
		return c.JSON(fiber.Map{"data": dto.JobProgressResponse{
			JobID:          snapshot.JobID,
			Status:         snapshot.Status,
			TotalCases:     snapshot.TotalCases,
			ProcessedCases: snapshot.ProcessedCases,
			AutoCompleted:  snapshot.AutoCompleted,
			ManualReview:   snapshot.ManualReview,
			ErrorCount:     snapshot.ErrorCount,
			Paused:         snapshot.Paused,
			UpdatedAt:      snapshot.UpdatedAt,
		}})
	}

	job, err := h.bulk.GetJob(c.Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.JobProgressResponse{
		JobID:          job.ID,
		Status:         job.Status,
		TotalCases:     job.TotalCases,
		ProcessedCases: job.ProcessedCases,
		AutoCompleted:  job.AutoCompleted,
		ManualReview:   job.ManualReview,
		ErrorCount:     len(job.Errors),
		Paused:         h.runner.Paused(job.ID),
		UpdatedAt:      job.CreatedAt,
	}})
}

// ListJobs GET /jobs.
func (h *JobsHandler) ListJobs(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	var status *domain.BulkJobStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.BulkJobStatus(strings.ToUpper(raw))
		status = &s
	}
	limit, offset := parsePagination(c)
	jobs, err := h.bulk.ListJobs(c.Context(), status, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.JobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, h.jobResponse(&jobs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *JobsHandler) jobResponse(job *domain.BulkJob) dto.JobResponse {
	rowErrors := make([]dto.RowErrorResponse, 0, len(job.Errors))
	for _, rowErr := range job.Errors {
		rowErrors = append(rowErrors, dto.RowErrorResponse{RowIndex: rowErr.RowIndex, Reason: rowErr.Reason})
	}
	return dto.JobResponse{
		ID:             job.ID,
		Name:           job.Name,
		Status:         job.Status,
		TotalCases:     job.TotalCases,
		ProcessedCases: job.ProcessedCases,
		AutoCompleted:  job.AutoCompleted,
		ManualReview:   job.ManualReview,
		Errors:         rowErrors,
		Paused:         h.runner.Paused(job.ID),
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
	}
}
