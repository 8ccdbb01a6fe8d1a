package dto

import (
	"time"

	"github.com/spec-kit/hra-case-service/internal/domain"
)

// CreateCaseRequest payload.
type CreateCaseRequest struct {
	CaseID     string              `json:"case_id,omitempty"`
	ClientRef  string              `json:"client_ref"`
	ClientName string              `json:"client_name,omitempty"`
	LOB        string              `json:"lob"`
	Priority   domain.CasePriority `json:"priority"`
	RiskRating domain.RiskRating   `json:"risk_rating"`
	Indicators map[string]bool     `json:"indicators"`
}

// AssignCaseRequest payload. Target "self" takes the case for the caller;
// an explicit user id is a manager override; empty pulls from the pool.
type AssignCaseRequest struct {
	Target string `json:"target,omitempty"`
}

// ReturnCaseRequest payload.
type ReturnCaseRequest struct {
	Reason string `json:"reason"`
}

// CompleteCaseRequest payload.
type CompleteCaseRequest struct {
	Outcome domain.CaseOutcome `json:"outcome"`
}

// ReassignCaseRequest payload.
type ReassignCaseRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// CaseListQuery captures reporting filters.
type CaseListQuery struct {
	Statuses    []domain.CaseStatus
	Priorities  []domain.CasePriority
	LOB         string
	AssigneeID  string
	ClientRef   string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
}

// CaseSummary response.
type CaseSummary struct {
	ID            string              `json:"id"`
	ClientRef     string              `json:"client_ref"`
	ClientName    string              `json:"client_name,omitempty"`
	LOB           string              `json:"lob"`
	Priority      domain.CasePriority `json:"priority"`
	RiskRating    domain.RiskRating   `json:"risk_rating"`
	Status        domain.CaseStatus   `json:"status"`
	AssigneeID    *string             `json:"assignee_id,omitempty"`
	Outcome       *domain.CaseOutcome `json:"outcome,omitempty"`
	ReviewReasons []string            `json:"review_reasons,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

// CaseDetailResponse provides full case info including the audit trail.
type CaseDetailResponse struct {
	CaseSummary
	Indicators      map[string]bool    `json:"indicators,omitempty"`
	PriorAssigneeID *string            `json:"prior_assignee_id,omitempty"`
	Version         int64              `json:"version"`
	History         []CaseHistoryEntry `json:"history,omitempty"`
}

// CaseHistoryEntry is one audit trail record.
type CaseHistoryEntry struct {
	ID            string            `json:"id"`
	ActorID       string            `json:"actor_id"`
	ActorRole     domain.Role       `json:"actor_role,omitempty"`
	Tag           domain.HistoryTag `json:"tag"`
	FromStatus    domain.CaseStatus `json:"from_status"`
	ToStatus      domain.CaseStatus `json:"to_status"`
	OldAssigneeID *string           `json:"old_assignee_id,omitempty"`
	NewAssigneeID *string           `json:"new_assignee_id,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
