package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/hra-case-service/internal/domain"
	"github.com/spec-kit/hra-case-service/internal/repository"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

// In-memory repositories mirroring the conditional-update semantics of the
// Postgres implementations, so service tests exercise the same conflict
// paths the real stack produces.

type fakeCaseRepo struct {
	mu    sync.Mutex
	cases map[string]*domain.Case
	seq   map[int]int
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{cases: make(map[string]*domain.Case), seq: make(map[int]int)}
}

func (r *fakeCaseRepo) Create(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cases[c.ID]; exists {
		return apperrors.NewConflict("case already exists", map[string]any{"case_id": c.ID})
	}
	c.Version = 1
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.cases[c.ID] = cloneCase(c)
	return nil
}

func (r *fakeCaseRepo) GetByID(_ context.Context, id string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneCase(stored), nil
}

func (r *fakeCaseRepo) UpdateVersioned(_ context.Context, c *domain.Case, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.cases[c.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != expectedVersion {
		return apperrors.NewConflict("case modified concurrently", map[string]any{
			"case_id":          c.ID,
			"expected_version": expectedVersion,
		})
	}
	updated := cloneCase(c)
	updated.Version = expectedVersion + 1
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now()
	r.cases[c.ID] = updated
	c.Version = updated.Version
	return nil
}

func (r *fakeCaseRepo) ListWithFilter(_ context.Context, filter repository.CaseFilter) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Case
	for _, c := range r.cases {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, c.Status) {
			continue
		}
		if filter.LOB != nil && c.LOB != *filter.LOB {
			continue
		}
		if filter.AssigneeID != nil && (c.AssigneeID == nil || *c.AssigneeID != *filter.AssigneeID) {
			continue
		}
		out = append(out, *cloneCase(c))
	}
	return out, nil
}

func (r *fakeCaseRepo) NextCaseID(_ context.Context, year int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[year]++
	return fmt.Sprintf("HRA-%d-%04d", year, r.seq[year]), nil
}

func containsStatus(statuses []domain.CaseStatus, s domain.CaseStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func cloneCase(c *domain.Case) *domain.Case {
	copied := *c
	copied.AssigneeID = cloneStr(c.AssigneeID)
	copied.PriorAssigneeID = cloneStr(c.PriorAssigneeID)
	if c.Outcome != nil {
		outcome := *c.Outcome
		copied.Outcome = &outcome
	}
	if c.CompletedAt != nil {
		at := *c.CompletedAt
		copied.CompletedAt = &at
	}
	copied.ReviewReasons = append([]string(nil), c.ReviewReasons...)
	if c.Indicators != nil {
		copied.Indicators = make(domain.Indicators, len(c.Indicators))
		for k, v := range c.Indicators {
			copied.Indicators[k] = v
		}
	}
	return &copied
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.CaseHistory
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{}
}

func (r *fakeHistoryRepo) Create(_ context.Context, entry *domain.CaseHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByCase(_ context.Context, caseID string, limit, offset int) ([]domain.CaseHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CaseHistory
	for _, entry := range r.entries {
		if entry.CaseID == caseID {
			out = append(out, entry)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeDirectoryRepo struct {
	mu    sync.Mutex
	order []string
	users map[string]*domain.User
}

func newFakeDirectoryRepo(users ...*domain.User) *fakeDirectoryRepo {
	r := &fakeDirectoryRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.order = append(r.order, u.ID)
		copied := *u
		r.users[u.ID] = &copied
	}
	return r
}

func (r *fakeDirectoryRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (r *fakeDirectoryRepo) List(_ context.Context, filter repository.DirectoryFilter) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, id := range r.order {
		u := r.users[id]
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.LOB != nil && u.LOB != *filter.LOB && u.LOB != domain.AllLOBs {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (r *fakeDirectoryRepo) AcquireCase(_ context.Context, userID string, enforceCapacity bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || !u.Active {
		return false, nil
	}
	if enforceCapacity && u.ActiveCaseCount >= u.Capacity {
		return false, nil
	}
	u.ActiveCaseCount++
	return true, nil
}

func (r *fakeDirectoryRepo) ReleaseCase(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok && u.ActiveCaseCount > 0 {
		u.ActiveCaseCount--
	}
	return nil
}

func (r *fakeDirectoryRepo) load(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		return u.ActiveCaseCount
	}
	return -1
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.BulkJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*domain.BulkJob)}
}

func (r *fakeJobRepo) Create(_ context.Context, job *domain.BulkJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.CreatedAt = time.Now()
	copied := *job
	copied.Rows = append([]domain.IntakeRow(nil), job.Rows...)
	copied.Errors = append([]domain.RowError(nil), job.Errors...)
	r.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id string) (*domain.BulkJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *job
	copied.Rows = append([]domain.IntakeRow(nil), job.Rows...)
	copied.Errors = append([]domain.RowError(nil), job.Errors...)
	return &copied, nil
}

func (r *fakeJobRepo) ListByStatus(_ context.Context, status *domain.BulkJobStatus, _, _ int) ([]domain.BulkJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BulkJob
	for _, job := range r.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		out = append(out, *job)
	}
	return out, nil
}

func (r *fakeJobRepo) MarkProcessing(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if job.Status != domain.JobStatusPending {
		return apperrors.NewConflict("job not pending", map[string]any{"status": job.Status})
	}
	job.Status = domain.JobStatusProcessing
	return nil
}

func (r *fakeJobRepo) RecordRowProcessed(_ context.Context, id string, auto bool) (repository.JobCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.JobCounters{}, pgx.ErrNoRows
	}
	if job.Status != domain.JobStatusProcessing || job.ProcessedCases >= job.TotalCases {
		return repository.JobCounters{}, apperrors.NewConflict("job not processing", map[string]any{"status": job.Status})
	}
	job.ProcessedCases++
	if auto {
		job.AutoCompleted++
	} else {
		job.ManualReview++
	}
	return r.counters(job), nil
}

func (r *fakeJobRepo) RecordRowError(_ context.Context, id string, rowErr domain.RowError) (repository.JobCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.JobCounters{}, pgx.ErrNoRows
	}
	if job.Status != domain.JobStatusProcessing || job.ProcessedCases >= job.TotalCases {
		return repository.JobCounters{}, apperrors.NewConflict("job not processing", map[string]any{"status": job.Status})
	}
	job.ProcessedCases++
	job.Errors = append(job.Errors, rowErr)
	return r.counters(job), nil
}

func (r *fakeJobRepo) MarkCompleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if job.Status != domain.JobStatusProcessing || job.ProcessedCases < job.TotalCases {
		return apperrors.NewConflict("job not finished", map[string]any{"status": job.Status})
	}
	job.Status = domain.JobStatusCompleted
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

func (r *fakeJobRepo) MarkFailed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if job.Status != domain.JobStatusProcessing {
		return apperrors.NewConflict("job not processing", map[string]any{"status": job.Status})
	}
	job.Status = domain.JobStatusFailed
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

func (r *fakeJobRepo) counters(job *domain.BulkJob) repository.JobCounters {
	return repository.JobCounters{
		ProcessedCases: job.ProcessedCases,
		AutoCompleted:  job.AutoCompleted,
		ManualReview:   job.ManualReview,
		ErrorCount:     len(job.Errors),
	}
}
