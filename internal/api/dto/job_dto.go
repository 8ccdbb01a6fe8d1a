package dto

import (
	"time"

	"github.com/spec-kit/hra-case-service/internal/domain"
)

// SubmitJobRequest payload.
type SubmitJobRequest struct {
	Name string           `json:"name"`
	Rows []IntakeRowInput `json:"rows"`
}

// IntakeRowInput is one intake record inside a batch.
type IntakeRowInput struct {
	CaseID     string              `json:"case_id,omitempty"`
	ClientRef  string              `json:"client_ref"`
	ClientName string              `json:"client_name,omitempty"`
	LOB        string              `json:"lob"`
	Priority   domain.CasePriority `json:"priority"`
	RiskRating domain.RiskRating   `json:"risk_rating"`
	Indicators map[string]bool     `json:"indicators"`
}

// JobResponse reports batch progress.
type JobResponse struct {
	ID             string               `json:"id"`
	Name           string               `json:"name,omitempty"`
	Status         domain.BulkJobStatus `json:"status"`
	TotalCases     int                  `json:"total_cases"`
	ProcessedCases int                  `json:"processed_cases"`
	AutoCompleted  int                  `json:"auto_completed"`
	ManualReview   int                  `json:"manual_review"`
	Errors         []RowErrorResponse   `json:"errors,omitempty"`
	Paused         bool                 `json:"paused,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

// RowErrorResponse is one skipped intake row.
type RowErrorResponse struct {
	RowIndex int    `json:"row_index"`
	Reason   string `json:"reason"`
}

// JobProgressResponse is the cached lightweight progress view.
type JobProgressResponse struct {
	JobID          string               `json:"job_id"`
	Status         domain.BulkJobStatus `json:"status"`
	TotalCases     int                  `json:"total_cases"`
	ProcessedCases int                  `json:"processed_cases"`
	AutoCompleted  int                  `json:"auto_completed"`
	ManualReview   int                  `json:"manual_review"`
	ErrorCount     int                  `json:"error_count"`
	Paused         bool                 `json:"paused,omitempty"`
	UpdatedAt      time.Time            `json:"updated_at"`
}
