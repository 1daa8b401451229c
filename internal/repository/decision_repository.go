package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-payroll-review/internal/database"
	"github.com/pesio-ai/be-payroll-review/internal/errors"
)

// ApprovalDecisionRepository records approve/reject decisions on review
// sessions. Rows are never updated; a new decision supersedes the old one.
type ApprovalDecisionRepository struct {
	db *database.DB
}

// NewApprovalDecisionRepository creates a new ApprovalDecisionRepository.
func NewApprovalDecisionRepository(db *database.DB) *ApprovalDecisionRepository {
	return &ApprovalDecisionRepository{db: db}
}

// Create inserts a decision and mirrors its status onto the session header
// in the same transaction.
func (r *ApprovalDecisionRepository) Create(ctx context.Context, d *ApprovalDecision) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO review_decisions
			    (review_session_id, organization_id, status, notes, decided_by)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, decided_at
		`
		err := tx.QueryRow(ctx, query,
			d.ReviewSessionID,
			d.OrganizationID,
			d.Status,
			d.Notes,
			d.DecidedBy,
		).Scan(&d.ID, &d.DecidedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create review decision")
		}

		tag, err := tx.Exec(ctx, `
			UPDATE review_sessions
			SET status = $3
			WHERE id = $1 AND organization_id = $2
		`, d.ReviewSessionID, d.OrganizationID, d.Status)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update review session status")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFound("review_session", d.ReviewSessionID)
		}
		return nil
	})
}

// GetLatest returns the effective decision for a session.
func (r *ApprovalDecisionRepository) GetLatest(ctx context.Context, sessionID, organizationID string) (*ApprovalDecision, error) {
	if err := checkID("review_session", sessionID); err != nil {
		return nil, err
	}
	query := `
		SELECT id, review_session_id, organization_id, status, notes,
		       decided_by, decided_at
		FROM review_decisions
		WHERE review_session_id = $1 AND organization_id = $2
		ORDER BY decided_at DESC, id DESC
		LIMIT 1
	`

	d := &ApprovalDecision{}
	err := r.db.QueryRow(ctx, query, sessionID, organizationID).Scan(
		&d.ID,
		&d.ReviewSessionID,
		&d.OrganizationID,
		&d.Status,
		&d.Notes,
		&d.DecidedBy,
		&d.DecidedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("review_decision", sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get review decision")
	}
	return d, nil
}
