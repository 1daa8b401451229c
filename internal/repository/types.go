package repository

import (
	"time"

	"github.com/pesio-ai/be-payroll-review/internal/review"
)

// ── Domain types for persisted reviews ───────────────────────────────────────

// Dataset types. A review compares one baseline with one current dataset.
const (
	DatasetBaseline = "baseline"
	DatasetCurrent  = "current"
)

// PayrollDataset is one uploaded payroll snapshot.
type PayrollDataset struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	DatasetType    string    `json:"dataset_type"` // baseline | current
	PayPeriod      string    `json:"pay_period"`
	FileName       *string   `json:"file_name,omitempty"`
	RecordCount    int       `json:"record_count"`
	CreatedBy      *string   `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// StoredSession is a persisted review run. Session carries the deltas,
// judgements and per-employee failures; the counters are denormalized for
// listing without loading the detail rows.
type StoredSession struct {
	ID                string
	OrganizationID    string
	BaselineDatasetID string
	CurrentDatasetID  string
	Tier              string
	Status            string // derived status at run time
	DeltaCount        int
	MaterialCount     int
	BlockerCount      int
	CreatedBy         *string
	CreatedAt         time.Time
	Session           *review.Session
}

// ApprovalDecision is a human approve/reject on a review session. Decisions
// are append-only; the latest one is effective.
type ApprovalDecision struct {
	ID              string    `json:"id"`
	ReviewSessionID string    `json:"review_session_id"`
	OrganizationID  string    `json:"organization_id"`
	Status          string    `json:"status"` // approved | rejected
	Notes           *string   `json:"notes,omitempty"`
	DecidedBy       string    `json:"decided_by"`
	DecidedAt       time.Time `json:"decided_at"`
}

// Audit actions.
const (
	AuditReviewRun    = "review_run"
	AuditApproved     = "approved"
	AuditRejected     = "rejected"
	AuditNotesUpdated = "notes_updated"
)

// AuditEntry is one immutable record in the review audit log.
type AuditEntry struct {
	ID              string                 `json:"id"`
	ReviewSessionID string                 `json:"review_session_id"`
	OrganizationID  string                 `json:"organization_id"`
	Action          string                 `json:"action"` // review_run | approved | rejected | notes_updated
	PerformedBy     string                 `json:"performed_by"`
	PerformedAt     time.Time              `json:"performed_at"`
	StatusBefore    *string                `json:"status_before,omitempty"`
	StatusAfter     *string                `json:"status_after,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"` // arbitrary JSON context
}
