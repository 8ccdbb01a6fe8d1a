package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/hra-case-service/internal/config"
	"github.com/spec-kit/hra-case-service/internal/domain"
	"github.com/spec-kit/hra-case-service/internal/events"
	"github.com/spec-kit/hra-case-service/internal/observability"
	"github.com/spec-kit/hra-case-service/internal/repository"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

type bulkFixture struct {
	svc   *BulkService
	jobs  *fakeJobRepo
	cases *fakeCaseRepo
}

func newBulkFixture(t *testing.T, cfg config.BulkConfig) *bulkFixture {
	t.Helper()
	caseRepo := newFakeCaseRepo()
	workflow := NewWorkflowService(config.WorkflowConfig{}, WorkflowDependencies{
		CaseRepo:    caseRepo,
		HistoryRepo: newFakeHistoryRepo(),
		Assignment:  NewAssignmentService(newFakeDirectoryRepo(), 3),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Metrics:     observability.NewMetrics(),
	})
	jobRepo := newFakeJobRepo()
	svc := NewBulkService(cfg, jobRepo, workflow, events.NewInMemoryDispatcher(), observability.NewMetrics(), zap.NewNop())
	return &bulkFixture{svc: svc, jobs: jobRepo, cases: caseRepo}
}

func cleanRow(ref string) domain.IntakeRow {
	return domain.IntakeRow{
		ClientRef:  ref,
		LOB:        "Retail",
		Priority:   domain.CasePriorityLow,
		RiskRating: domain.RiskRatingLow,
		Indicators: domain.Indicators{},
	}
}

func flaggedRow(ref string) domain.IntakeRow {
	return domain.IntakeRow{
		ClientRef:  ref,
		LOB:        "Retail",
		Priority:   domain.CasePriorityHigh,
		RiskRating: domain.RiskRatingHigh,
		Indicators: domain.Indicators{"gfcIntelligenceYes": true},
	}
}

func invalidRow() domain.IntakeRow {
	return domain.IntakeRow{
		LOB:        "Retail",
		Priority:   domain.CasePriorityLow,
		RiskRating: domain.RiskRatingLow,
	}
}

func drainJob(t *testing.T, fix *bulkFixture, jobID string) error {
	t.Helper()
	_, err := fix.svc.Begin(context.Background(), jobID)
	require.NoError(t, err)
	for {
		done, err := fix.svc.ProcessNextRow(context.Background(), jobID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func TestSubmitRejectsEmptyBatch(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.5})
	_, err := fix.svc.Submit(context.Background(), "empty", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))
}

func TestBulkJobSplitsCleanAndFlaggedRows(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.5})

	rows := make([]domain.IntakeRow, 0, 100)
	for i := 0; i < 70; i++ {
		rows = append(rows, cleanRow("CL-CLEAN"))
	}
	for i := 0; i < 30; i++ {
		rows = append(rows, flaggedRow("CL-FLAG"))
	}

	job, err := fix.svc.Submit(context.Background(), "quarterly refresh", rows)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 100, job.TotalCases)

	require.NoError(t, drainJob(t, fix, job.ID))

	final, err := fix.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.ProcessedCases)
	assert.Equal(t, 70, final.AutoCompleted)
	assert.Equal(t, 30, final.ManualReview)
	assert.Empty(t, final.Errors)
	assert.NotNil(t, final.CompletedAt)

	completed, err := fix.cases.ListWithFilter(context.Background(), caseStatusFilter(domain.CaseStatusCompleted))
	require.NoError(t, err)
	assert.Len(t, completed, 70)
	unassigned, err := fix.cases.ListWithFilter(context.Background(), caseStatusFilter(domain.CaseStatusUnassigned))
	require.NoError(t, err)
	assert.Len(t, unassigned, 30)
}

func TestCountersBalanceAfterEveryRow(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.9})

	rows := []domain.IntakeRow{
		cleanRow("CL-1"), invalidRow(), flaggedRow("CL-2"), cleanRow("CL-3"), invalidRow(),
	}
	job, err := fix.svc.Submit(context.Background(), "mixed", rows)
	require.NoError(t, err)
	_, err = fix.svc.Begin(context.Background(), job.ID)
	require.NoError(t, err)

	for processed := 1; processed <= len(rows); processed++ {
		_, err := fix.svc.ProcessNextRow(context.Background(), job.ID)
		require.NoError(t, err)
		current, err := fix.svc.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, processed, current.ProcessedCases)
		assert.Equal(t, current.ProcessedCases, current.AutoCompleted+current.ManualReview+len(current.Errors))
	}

	final, err := fix.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.AutoCompleted)
	assert.Equal(t, 1, final.ManualReview)
	require.Len(t, final.Errors, 2)
	assert.Equal(t, 1, final.Errors[0].RowIndex)
	assert.Equal(t, 4, final.Errors[1].RowIndex)
}

func TestInvalidRowsDoNotAbortBatch(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.5})

	rows := []domain.IntakeRow{cleanRow("CL-1"), invalidRow(), cleanRow("CL-2")}
	job, err := fix.svc.Submit(context.Background(), "partial", rows)
	require.NoError(t, err)
	require.NoError(t, drainJob(t, fix, job.ID))

	final, err := fix.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Equal(t, 3, final.ProcessedCases)
	assert.Equal(t, 2, final.AutoCompleted)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, 1, final.Errors[0].RowIndex)
}

func TestErrorThresholdFailsJob(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.5})

	rows := []domain.IntakeRow{
		invalidRow(), invalidRow(), invalidRow(), cleanRow("CL-1"),
	}
	job, err := fix.svc.Submit(context.Background(), "bad batch", rows)
	require.NoError(t, err)

	err = drainJob(t, fix, job.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeJobFailed))

	final, err := fix.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, final.Status)
	// Two errors are within the 50% threshold of four rows; the third crosses it.
	assert.Equal(t, 3, final.ProcessedCases)
	require.Len(t, final.Errors, 3)
}

func TestBeginIsIdempotentWhileProcessing(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.5})

	job, err := fix.svc.Submit(context.Background(), "resume", []domain.IntakeRow{cleanRow("CL-1"), cleanRow("CL-2")})
	require.NoError(t, err)

	_, err = fix.svc.Begin(context.Background(), job.ID)
	require.NoError(t, err)
	_, err = fix.svc.ProcessNextRow(context.Background(), job.ID)
	require.NoError(t, err)

	// A restarted worker begins again and picks up at the cursor.
	resumed, err := fix.svc.Begin(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, resumed.Status)
	assert.Equal(t, 1, resumed.ProcessedCases)

	done, err := fix.svc.ProcessNextRow(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, done)

	final, err := fix.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.ProcessedCases)
}

func TestBeginRejectsFinishedJob(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.5})

	job, err := fix.svc.Submit(context.Background(), "oneshot", []domain.IntakeRow{cleanRow("CL-1")})
	require.NoError(t, err)
	require.NoError(t, drainJob(t, fix, job.ID))

	_, err = fix.svc.Begin(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestProcessNextRowNoopsOutsideProcessing(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.5})

	job, err := fix.svc.Submit(context.Background(), "pending", []domain.IntakeRow{cleanRow("CL-1")})
	require.NoError(t, err)

	done, err := fix.svc.ProcessNextRow(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, done)

	current, err := fix.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, current.Status)
	assert.Equal(t, 0, current.ProcessedCases)
}

func TestRowCaseCreationFailureIsRecorded(t *testing.T) {
	fix := newBulkFixture(t, config.BulkConfig{FatalErrorRate: 0.9})

	// Two rows naming the same explicit case id; the second insert conflicts.
	first := cleanRow("CL-1")
	first.CaseID = "HRA-2026-9999"
	second := flaggedRow("CL-2")
	second.CaseID = "HRA-2026-9999"

	job, err := fix.svc.Submit(context.Background(), "dupes", []domain.IntakeRow{first, second})
	require.NoError(t, err)
	require.NoError(t, drainJob(t, fix, job.ID))

	final, err := fix.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Equal(t, 1, final.AutoCompleted)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, 1, final.Errors[0].RowIndex)
}

func caseStatusFilter(status domain.CaseStatus) repository.CaseFilter {
	return repository.CaseFilter{Statuses: []domain.CaseStatus{status}}
}
