package service

import (
	"context"

	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/repository"
	"github.com/pesio-ai/be-payroll-review/internal/review"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// DatasetStore persists uploaded payroll datasets.
type DatasetStore interface {
	Create(ctx context.Context, ds *repository.PayrollDataset, records []payroll.Record) error
	GetByID(ctx context.Context, id, organizationID string) (*repository.PayrollDataset, error)
	ListRecords(ctx context.Context, datasetID string) ([]payroll.Record, error)
}

// SessionStore persists review sessions with their deltas and judgements.
type SessionStore interface {
	Create(ctx context.Context, s *repository.StoredSession) error
	GetByID(ctx context.Context, id, organizationID string) (*repository.StoredSession, error)
	List(ctx context.Context, organizationID string, limit int) ([]*repository.StoredSession, error)
	UpdateReviewerNotes(ctx context.Context, sessionID string, seq uint64, notes string) error
}

// DecisionStore persists approval decisions.
type DecisionStore interface {
	Create(ctx context.Context, d *repository.ApprovalDecision) error
	GetLatest(ctx context.Context, sessionID, organizationID string) (*repository.ApprovalDecision, error)
}

// AuditStore appends to and reads the review audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	ListBySession(ctx context.Context, sessionID, organizationID string) ([]*repository.AuditEntry, error)
}

// TierStore resolves an organization's subscription tier.
type TierStore interface {
	GetTier(ctx context.Context, organizationID string) (rules.Tier, error)
}

// Notifier announces sessions that need approval and the decisions taken
// on them. Implementations never fail the caller.
type Notifier interface {
	PublishReviewRequiresApproval(ctx context.Context, s *review.Session, actorID string)
	PublishReviewApproved(ctx context.Context, s *review.Session, decidedBy string)
	PublishReviewRejected(ctx context.Context, s *review.Session, decidedBy, notes string)
}

// WebhookPoster forwards review output to the external automation engine.
type WebhookPoster interface {
	PostDiff(ctx context.Context, s *review.Session) error
	PostJudgement(ctx context.Context, s *review.Session) error
}
