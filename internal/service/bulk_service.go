package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/hra-case-service/internal/classification"
	"github.com/spec-kit/hra-case-service/internal/config"
	"github.com/spec-kit/hra-case-service/internal/domain"
	"github.com/spec-kit/hra-case-service/internal/events"
	"github.com/spec-kit/hra-case-service/internal/observability"
	"github.com/spec-kit/hra-case-service/internal/repository"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

// BulkService runs intake batches through the classification engine, one
// row at a time. Counters live in the bulk_jobs row and are advanced with
// single conditional UPDATEs, so a crashed worker resumes at ProcessedCases
// without double-counting.
type BulkService struct {
	jobs     repository.BulkJobRepository
	workflow *WorkflowService

	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.BulkConfig
}

// NewBulkService constructs the service.
func NewBulkService(cfg config.BulkConfig, jobs repository.BulkJobRepository, workflow *WorkflowService, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *BulkService {
	return &BulkService{
		jobs:       jobs,
		workflow:   workflow,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Submit persists a new batch in Pending. Empty batches are rejected.
func (s *BulkService) Submit(ctx context.Context, name string, rows []domain.IntakeRow) (*domain.BulkJob, error) {
	if len(rows) == 0 {
		return nil, apperrors.NewValidationError("bulk job requires at least one row", nil)
	}
	job := &domain.BulkJob{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     domain.JobStatusPending,
		Rows:       rows,
		TotalCases: len(rows),
		Errors:     []domain.RowError{},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:      events.EventJobSubmitted,
		SubjectID: job.ID,
		Payload:   events.JobProgressPayload{Status: job.Status, TotalCases: job.TotalCases},
	})
	return job, nil
}

// Begin moves the job into Processing. Calling Begin on a job that is
// already Processing is a no-op so a restarted worker can resume it.
func (s *BulkService) Begin(ctx context.Context, jobID string) (*domain.BulkJob, error) {
	if err := s.jobs.MarkProcessing(ctx, jobID); err != nil {
		if !s.alreadyProcessing(ctx, jobID, err) {
			return nil, apperrors.MapError(err)
		}
	}
	return s.GetJob(ctx, jobID)
}

func (s *BulkService) alreadyProcessing(ctx context.Context, jobID string, markErr error) bool {
	if !apperrors.IsCode(markErr, apperrors.CodeConflict) {
		return false
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	return err == nil && job.Status == domain.JobStatusProcessing
}

// ProcessNextRow handles the row at the job's cursor and reports whether
// work remains. Invalid rows are recorded as row errors rather than
// aborting the batch; the batch fails only when the error count crosses
// the fatal threshold.
func (s *BulkService) ProcessNextRow(ctx context.Context, jobID string) (done bool, err error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return true, err
	}
	if job.Status != domain.JobStatusProcessing {
		return true, nil
	}
	if job.Done() {
		return true, s.finish(ctx, job)
	}

	index := job.ProcessedCases
	row := job.Rows[index]
	input := CaseCreateInput{
		CaseID:     row.CaseID,
		ClientRef:  row.ClientRef,
		ClientName: row.ClientName,
		LOB:        row.LOB,
		Priority:   row.Priority,
		RiskRating: row.RiskRating,
		Indicators: row.Indicators,
	}

	if verr := ValidateIntake(input); verr != nil {
		return s.recordRowError(ctx, job, index, verr.Error())
	}

	auto := classification.Classify(row.Indicators) == classification.AutoComplete
	if _, cerr := s.workflow.CreateCase(ctx, nil, input); cerr != nil {
		s.logger.Warn("bulk row case creation failed",
			zap.String("job_id", job.ID),
			zap.Int("row_index", index),
			zap.Error(cerr))
		return s.recordRowError(ctx, job, index, cerr.Error())
	}

	counters, err := s.jobs.RecordRowProcessed(ctx, job.ID, auto)
	if err != nil {
		return true, apperrors.MapError(err)
	}
	if auto {
		s.metrics.RecordJobRow("auto")
	} else {
		s.metrics.RecordJobRow("manual")
	}
	return s.advance(ctx, job, counters)
}

// recordRowError persists the error row, advances the cursor, and fails
// the whole job once errors exceed the configured share of total rows.
func (s *BulkService) recordRowError(ctx context.Context, job *domain.BulkJob, index int, reason string) (bool, error) {
	counters, err := s.jobs.RecordRowError(ctx, job.ID, domain.RowError{RowIndex: index, Reason: reason})
	if err != nil {
		return true, apperrors.MapError(err)
	}
	s.metrics.RecordJobRow("invalid")

	if float64(counters.ErrorCount) > s.cfg.FatalErrorRate*float64(job.TotalCases) {
		if err := s.jobs.MarkFailed(ctx, job.ID); err != nil {
			return true, apperrors.MapError(err)
		}
		s.logger.Error("bulk job failed on error threshold",
			zap.String("job_id", job.ID),
			zap.Int("errors", counters.ErrorCount),
			zap.Int("total", job.TotalCases))
		s.publishProgress(ctx, events.EventJobFinished, job.ID, domain.JobStatusFailed, job.TotalCases, counters)
		return true, apperrors.NewJobFailed(job.ID, map[string]any{
			"errors": counters.ErrorCount,
			"total":  job.TotalCases,
		})
	}
	return s.advance(ctx, job, counters)
}

func (s *BulkService) advance(ctx context.Context, job *domain.BulkJob, counters repository.JobCounters) (bool, error) {
	s.publishProgress(ctx, events.EventJobProgress, job.ID, domain.JobStatusProcessing, job.TotalCases, counters)
	if counters.ProcessedCases >= job.TotalCases {
		job.ProcessedCases = counters.ProcessedCases
		return true, s.finish(ctx, job)
	}
	return false, nil
}

func (s *BulkService) finish(ctx context.Context, job *domain.BulkJob) error {
	if err := s.jobs.MarkCompleted(ctx, job.ID); err != nil {
		return apperrors.MapError(err)
	}
	final, err := s.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	s.logger.Info("bulk job completed",
		zap.String("job_id", final.ID),
		zap.Int("processed", final.ProcessedCases),
		zap.Int("auto_completed", final.AutoCompleted),
		zap.Int("manual_review", final.ManualReview),
		zap.Int("errors", len(final.Errors)))
	s.publishProgress(ctx, events.EventJobFinished, final.ID, domain.JobStatusCompleted, final.TotalCases, repository.JobCounters{
		ProcessedCases: final.ProcessedCases,
		AutoCompleted:  final.AutoCompleted,
		ManualReview:   final.ManualReview,
		ErrorCount:     len(final.Errors),
	})
	return nil
}

// GetJob fetches a job by id.
func (s *BulkService) GetJob(ctx context.Context, jobID string) (*domain.BulkJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("bulk job", map[string]any{"job_id": jobID})
		}
		return nil, apperrors.MapError(err)
	}
	return job, nil
}

// ListJobs returns jobs, optionally filtered by status.
func (s *BulkService) ListJobs(ctx context.Context, status *domain.BulkJobStatus, limit, offset int) ([]domain.BulkJob, error) {
	jobs, err := s.jobs.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return jobs, nil
}

func (s *BulkService) publishProgress(ctx context.Context, eventType events.EventType, jobID string, status domain.BulkJobStatus, total int, counters repository.JobCounters) {
	s.publish(ctx, events.Event{
		Type:      eventType,
		SubjectID: jobID,
		Payload: events.JobProgressPayload{
			Status:         status,
			TotalCases:     total,
			ProcessedCases: counters.ProcessedCases,
			AutoCompleted:  counters.AutoCompleted,
			ManualReview:   counters.ManualReview,
			ErrorCount:     counters.ErrorCount,
		},
	})
}

func (s *BulkService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = s.dispatcher.Publish(ctx, event)
}
