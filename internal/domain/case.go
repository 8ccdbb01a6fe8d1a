package domain

import "time"

// CaseStatus enumerates lifecycle states for HRA cases.
type CaseStatus string

const (
	CaseStatusUnassigned CaseStatus = "UNASSIGNED"
	CaseStatusAssigned   CaseStatus = "ASSIGNED"
	CaseStatusInProgress CaseStatus = "IN_PROGRESS"
	CaseStatusEscalated  CaseStatus = "ESCALATED"
	CaseStatusReturned   CaseStatus = "RETURNED"
	CaseStatusCompleted  CaseStatus = "COMPLETED"
)

// ValidStatus reports whether the value is a defined status.
func ValidStatus(s CaseStatus) bool {
	switch s {
	case CaseStatusUnassigned, CaseStatusAssigned, CaseStatusInProgress,
		CaseStatusEscalated, CaseStatusReturned, CaseStatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leads out of the status.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusCompleted
}

// CasePriority enumerates review urgency.
type CasePriority string

const (
	CasePriorityLow      CasePriority = "LOW"
	CasePriorityMedium   CasePriority = "MEDIUM"
	CasePriorityHigh     CasePriority = "HIGH"
	CasePriorityCritical CasePriority = "CRITICAL"
)

// ValidPriority reports whether the value is a defined priority.
func ValidPriority(p CasePriority) bool {
	switch p {
	case CasePriorityLow, CasePriorityMedium, CasePriorityHigh, CasePriorityCritical:
		return true
	}
	return false
}

// RiskRating is the customer risk rating carried on a case.
type RiskRating string

const (
	RiskRatingLow    RiskRating = "Low"
	RiskRatingMedium RiskRating = "Medium"
	RiskRatingHigh   RiskRating = "High"
)

// ValidRiskRating reports whether the value is a defined rating.
func ValidRiskRating(r RiskRating) bool {
	switch r {
	case RiskRatingLow, RiskRatingMedium, RiskRatingHigh:
		return true
	}
	return false
}

// CaseOutcome enumerates dispositions recorded at completion.
type CaseOutcome string

const (
	OutcomeRetain        CaseOutcome = "RETAIN"
	OutcomeEscalateToFLU CaseOutcome = "ESCALATE_TO_FLU"
	OutcomeEscalateToGFC CaseOutcome = "ESCALATE_TO_GFC"
	OutcomeExit          CaseOutcome = "EXIT"
	OutcomeRejected      CaseOutcome = "REJECTED"
)

// ValidOutcome reports whether the value is a defined outcome.
func ValidOutcome(o CaseOutcome) bool {
	switch o {
	case OutcomeRetain, OutcomeEscalateToFLU, OutcomeEscalateToGFC, OutcomeExit, OutcomeRejected:
		return true
	}
	return false
}

// Indicators is a set of named boolean review flags. Unknown or unset
// keys read as false.
type Indicators map[string]bool

// Set returns true when the named flag is present and true.
func (i Indicators) Set(name string) bool {
	if i == nil {
		return false
	}
	return i[name]
}

// Case is the aggregate for a high-risk assessment under compliance review.
type Case struct {
	ID              string
	ClientRef       string
	ClientName      string
	LOB             string
	Priority        CasePriority
	RiskRating      RiskRating
	Indicators      Indicators
	ReviewReasons   []string
	Status          CaseStatus
	AssigneeID      *string
	PriorAssigneeID *string
	Outcome         *CaseOutcome
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Held reports whether the case currently has an active holder.
func (c *Case) Held() bool {
	return c.AssigneeID != nil && !c.Status.IsTerminal() && c.Status != CaseStatusUnassigned
}

// HeldBy reports whether userID is the current assignee.
func (c *Case) HeldBy(userID string) bool {
	return c.AssigneeID != nil && *c.AssigneeID == userID
}
