package domain

import "time"

// BulkJobStatus enumerates batch lifecycle states.
type BulkJobStatus string

const (
	JobStatusPending    BulkJobStatus = "PENDING"
	JobStatusProcessing BulkJobStatus = "PROCESSING"
	JobStatusCompleted  BulkJobStatus = "COMPLETED"
	JobStatusFailed     BulkJobStatus = "FAILED"
)

// IntakeRow is one case-intake record inside a bulk job.
type IntakeRow struct {
	CaseID     string       `json:"case_id,omitempty"`
	ClientRef  string       `json:"client_ref"`
	ClientName string       `json:"client_name,omitempty"`
	LOB        string       `json:"lob"`
	Priority   CasePriority `json:"priority"`
	RiskRating RiskRating   `json:"risk_rating"`
	Indicators Indicators   `json:"indicators"`
}

// RowError records a skipped intake row.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Reason   string `json:"reason"`
}

// BulkJob tracks one ingested batch through classification. A single
// sequential worker owns each job, so ProcessedCases doubles as the cursor
// of the next row to handle.
type BulkJob struct {
	ID             string
	Name           string
	Status         BulkJobStatus
	Rows           []IntakeRow
	TotalCases     int
	ProcessedCases int
	AutoCompleted  int
	ManualReview   int
	Errors         []RowError
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// Done reports whether every row has been handled.
func (j *BulkJob) Done() bool {
	return j.ProcessedCases >= j.TotalCases
}
