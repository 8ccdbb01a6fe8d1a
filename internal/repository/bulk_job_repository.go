package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/hra-case-service/internal/domain"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

// JobCounters is the aggregate view returned after each row update.
type JobCounters struct {
	ProcessedCases int
	AutoCompleted  int
	ManualReview   int
	ErrorCount     int
}

// BulkJobRepository persists batch jobs. Counter mutations are single
// statements; the per-job sequential worker guarantees ordering.
type BulkJobRepository interface {
	Create(ctx context.Context, job *domain.BulkJob) error
	GetByID(ctx context.Context, id string) (*domain.BulkJob, error)
	ListByStatus(ctx context.Context, status *domain.BulkJobStatus, limit, offset int) ([]domain.BulkJob, error)
	// MarkProcessing moves PENDING -> PROCESSING.
	MarkProcessing(ctx context.Context, id string) error
	// RecordRowProcessed advances the cursor and one of the
	// classification counters.
	RecordRowProcessed(ctx context.Context, id string, auto bool) (JobCounters, error)
	// RecordRowError advances the cursor and appends a row error.
	RecordRowError(ctx context.Context, id string, rowErr domain.RowError) (JobCounters, error)
	// MarkCompleted stamps completion once every row is processed.
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

type bulkJobRepository struct {
	pool *pgxpool.Pool
}

// NewBulkJobRepository instantiates the repository.
func NewBulkJobRepository(pool *pgxpool.Pool) BulkJobRepository {
	return &bulkJobRepository{pool: pool}
}

func (r *bulkJobRepository) Create(ctx context.Context, job *domain.BulkJob) error {
	const query = `
        INSERT INTO bulk_jobs (id, name, status, rows, total_cases)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		job.ID,
		job.Name,
		job.Status,
		job.Rows,
		job.TotalCases,
	).Scan(&job.ID, &job.CreatedAt)
}

func (r *bulkJobRepository) GetByID(ctx context.Context, id string) (*domain.BulkJob, error) {
	const query = `
        SELECT id, name, status, rows, total_cases, processed_cases, auto_completed,
               manual_review, errors, created_at, completed_at
        FROM bulk_jobs WHERE id=$1`
	var job domain.BulkJob
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.Name,
		&job.Status,
		&job.Rows,
		&job.TotalCases,
		&job.ProcessedCases,
		&job.AutoCompleted,
		&job.ManualReview,
		&job.Errors,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *bulkJobRepository) ListByStatus(ctx context.Context, status *domain.BulkJobStatus, limit, offset int) ([]domain.BulkJob, error) {
	query := `
        SELECT id, name, status, rows, total_cases, processed_cases, auto_completed,
               manual_review, errors, created_at, completed_at
        FROM bulk_jobs`
	args := []any{}
	if status != nil {
		args = append(args, *status)
		query += " WHERE status=$1"
	}
	query += " ORDER BY created_at DESC"
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BulkJob
	for rows.Next() {
		var job domain.BulkJob
		if err := rows.Scan(
			&job.ID,
			&job.Name,
			&job.Status,
			&job.Rows,
			&job.TotalCases,
			&job.ProcessedCases,
			&job.AutoCompleted,
			&job.ManualReview,
			&job.Errors,
			&job.CreatedAt,
			&job.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func (r *bulkJobRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE bulk_jobs SET status=$1 WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, domain.JobStatusProcessing, id, domain.JobStatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.statusConflict(ctx, id)
	}
	return nil
}

func (r *bulkJobRepository) RecordRowProcessed(ctx context.Context, id string, auto bool) (JobCounters, error) {
	query := `
        UPDATE bulk_jobs
        SET processed_cases = processed_cases + 1, auto_completed = auto_completed + 1
        WHERE id=$1 AND status=$2 AND processed_cases < total_cases
        RETURNING processed_cases, auto_completed, manual_review, jsonb_array_length(errors)`
	if !auto {
		query = `
        UPDATE bulk_jobs
        SET processed_cases = processed_cases + 1, manual_review = manual_review + 1
        WHERE id=$1 AND status=$2 AND processed_cases < total_cases
        RETURNING processed_cases, auto_completed, manual_review, jsonb_array_length(errors)`
	}
	return r.scanCounters(ctx, query, id)
}

func (r *bulkJobRepository) RecordRowError(ctx context.Context, id string, rowErr domain.RowError) (JobCounters, error) {
	payload, err := json.Marshal(rowErr)
	if err != nil {
		return JobCounters{}, err
	}
	const query = `
        UPDATE bulk_jobs
        SET processed_cases = processed_cases + 1, errors = errors || $3::jsonb
        WHERE id=$1 AND status=$2 AND processed_cases < total_cases
        RETURNING processed_cases, auto_completed, manual_review, jsonb_array_length(errors)`
	var counters JobCounters
	if err := r.pool.QueryRow(ctx, query, id, domain.JobStatusProcessing, payload).Scan(
		&counters.ProcessedCases,
		&counters.AutoCompleted,
		&counters.ManualReview,
		&counters.ErrorCount,
	); err != nil {
		if err == pgx.ErrNoRows {
			return counters, r.statusConflict(ctx, id)
		}
		return counters, err
	}
	return counters, nil
}

func (r *bulkJobRepository) MarkCompleted(ctx context.Context, id string) error {
	const query = `
        UPDATE bulk_jobs SET status=$1, completed_at=NOW()
        WHERE id=$2 AND status=$3 AND processed_cases = total_cases`
	cmd, err := r.pool.Exec(ctx, query, domain.JobStatusCompleted, id, domain.JobStatusProcessing)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.statusConflict(ctx, id)
	}
	return nil
}

func (r *bulkJobRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE bulk_jobs SET status=$1, completed_at=NOW() WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, domain.JobStatusFailed, id, domain.JobStatusProcessing)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.statusConflict(ctx, id)
	}
	return nil
}

func (r *bulkJobRepository) scanCounters(ctx context.Context, query, id string) (JobCounters, error) {
	var counters JobCounters
	if err := r.pool.QueryRow(ctx, query, id, domain.JobStatusProcessing).Scan(
		&counters.ProcessedCases,
		&counters.AutoCompleted,
		&counters.ManualReview,
		&counters.ErrorCount,
	); err != nil {
		if err == pgx.ErrNoRows {
			return counters, r.statusConflict(ctx, id)
		}
		return counters, err
	}
	return counters, nil
}

func (r *bulkJobRepository) statusConflict(ctx context.Context, id string) error {
	var status domain.BulkJobStatus
	if err := r.pool.QueryRow(ctx, `SELECT status FROM bulk_jobs WHERE id=$1`, id).Scan(&status); err != nil {
		return err
	}
	return apperrors.NewConflict("bulk job not in expected status", map[string]any{
		"job_id": id,
		"status": status,
	})
}
