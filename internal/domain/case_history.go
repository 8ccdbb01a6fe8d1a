package domain

import "time"

// HistoryTag distinguishes ordinary transitions from assignee-only changes.
type HistoryTag string

const (
	HistoryTagTransition   HistoryTag = "TRANSITION"
	HistoryTagReassignment HistoryTag = "REASSIGNMENT"
)

// CaseHistory is an immutable audit trail entry. The case status always
// equals the ToStatus of its latest entry.
type CaseHistory struct {
	ID            string
	CaseID        string
	ActorID       string
	ActorRole     Role
	Tag           HistoryTag
	FromStatus    CaseStatus
	ToStatus      CaseStatus
	OldAssigneeID *string
	NewAssigneeID *string
	Reason        string
	CreatedAt     time.Time
}
