package events

import (
	"time"

	"github.com/spec-kit/hra-case-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCaseCreated       EventType = "case_created"
	EventCaseStatusChanged EventType = "case_status_changed"
	EventCaseAssigned      EventType = "case_assigned"
	EventCaseReassigned    EventType = "case_reassigned"
	EventCaseCompleted     EventType = "case_completed"
	EventJobSubmitted      EventType = "job_submitted"
	EventJobProgress       EventType = "job_progress"
	EventJobFinished       EventType = "job_finished"
	EventJobStalled        EventType = "job_stalled"
)

// Actor identifies who caused an event. System-driven events (bulk
// classification) carry an empty UserID.
type Actor struct {
	UserID string      `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseCreatedPayload payload.
type CaseCreatedPayload struct {
	LOB           string              `json:"lob"`
	Priority      domain.CasePriority `json:"priority"`
	RiskRating    domain.RiskRating   `json:"risk_rating"`
	Status        domain.CaseStatus   `json:"status"`
	ReviewReasons []string            `json:"review_reasons,omitempty"`
}

// CaseStatusChangedPayload payload.
type CaseStatusChangedPayload struct {
	OldStatus domain.CaseStatus `json:"old_status"`
	NewStatus domain.CaseStatus `json:"new_status"`
	Reason    string            `json:"reason,omitempty"`
}

// CaseAssignedPayload payload.
type CaseAssignedPayload struct {
	AssigneeID string `json:"assignee_id"`
	LOB        string `json:"lob"`
	Override   bool   `json:"override,omitempty"`
}

// CaseReassignedPayload payload.
type CaseReassignedPayload struct {
	OldAssigneeID *string `json:"old_assignee_id,omitempty"`
	NewAssigneeID string  `json:"new_assignee_id"`
}

// CaseCompletedPayload payload.
type CaseCompletedPayload struct {
	Outcome domain.CaseOutcome `json:"outcome"`
}

// JobProgressPayload payload.
type JobProgressPayload struct {
	Status         domain.BulkJobStatus `json:"status"`
	TotalCases     int                  `json:"total_cases"`
	ProcessedCases int                  `json:"processed_cases"`
	AutoCompleted  int                  `json:"auto_completed"`
	ManualReview   int                  `json:"manual_review"`
	ErrorCount     int                  `json:"error_count"`
	Paused         bool                 `json:"paused,omitempty"`
}

// JobStalledPayload payload.
type JobStalledPayload struct {
	ProcessedCases int           `json:"processed_cases"`
	Idle           time.Duration `json:"idle"`
}
