package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-payroll-review/internal/database"
	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/review"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// ReviewSessionRepository persists review runs. A session header, its
// deltas and its judgements are always written together in one transaction.
type ReviewSessionRepository struct {
	db *database.DB
}

// NewReviewSessionRepository creates a new ReviewSessionRepository.
func NewReviewSessionRepository(db *database.DB) *ReviewSessionRepository {
	return &ReviewSessionRepository{db: db}
}

// Create inserts the session header, deltas and judgements.
func (r *ReviewSessionRepository) Create(ctx context.Context, s *StoredSession) error {
	if s.Session == nil {
		return errors.New(errors.ErrCodeInternal, "stored session has no review outcome")
	}
	failuresJSON, err := json.Marshal(s.Session.Failures)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal review failures")
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		sessionQuery := `
			INSERT INTO review_sessions
			    (id, organization_id, baseline_dataset_id, current_dataset_id,
			     tier, status, delta_count, material_count, blocker_count,
			     failures, created_by)
			VALUES ($1, $2, $3, $4,
			        $5, $6, $7, $8, $9,
			        $10, $11)
			RETURNING created_at
		`
		err := tx.QueryRow(ctx, sessionQuery,
			s.ID,
			s.OrganizationID,
			s.BaselineDatasetID,
			s.CurrentDatasetID,
			s.Tier,
			s.Status,
			s.DeltaCount,
			s.MaterialCount,
			s.BlockerCount,
			failuresJSON,
			s.CreatedBy,
		).Scan(&s.CreatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create review session")
		}

		deltaQuery := `
			INSERT INTO payroll_deltas
			    (review_session_id, seq, employee_id, pay_period, field,
			     prior_value, current_value, change_type,
			     delta_absolute, delta_percentage)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7, $8,
			        $9, $10)
		`
		judgementQuery := `
			INSERT INTO material_judgements
			    (review_session_id, seq, rule_id, rule_name, category,
			     severity, is_material, is_blocker, reasoning, user_action,
			     fired_rules, reviewer_notes)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7, $8, $9, $10,
			        $11, $12)
		`

		batch := &pgx.Batch{}
		for i, d := range s.Session.Deltas {
			args, err := deltaRow(s.ID, d)
			if err != nil {
				return err
			}
			batch.Queue(deltaQuery, args...)
			batch.Queue(judgementQuery, judgementRow(s.ID, s.Session.Judgements[i])...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert deltas and judgements")
		}
		return nil
	})
}

// GetByID loads a session with its deltas and judgements in sequence order.
func (r *ReviewSessionRepository) GetByID(ctx context.Context, id, organizationID string) (*StoredSession, error) {
	if err := checkID("review_session", id); err != nil {
		return nil, err
	}
	query := `
		SELECT id, organization_id, baseline_dataset_id, current_dataset_id,
		       tier, status, delta_count, material_count, blocker_count,
		       failures, created_by, created_at
		FROM review_sessions
		WHERE id = $1 AND organization_id = $2
	`

	s := &StoredSession{}
	var failuresJSON []byte
	err := r.db.QueryRow(ctx, query, id, organizationID).Scan(
		&s.ID,
		&s.OrganizationID,
		&s.BaselineDatasetID,
		&s.CurrentDatasetID,
		&s.Tier,
		&s.Status,
		&s.DeltaCount,
		&s.MaterialCount,
		&s.BlockerCount,
		&failuresJSON,
		&s.CreatedBy,
		&s.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("review_session", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get review session")
	}

	sess := &review.Session{
		ID:             s.ID,
		OrganizationID: s.OrganizationID,
		Context:        rules.Context{OrganizationID: s.OrganizationID, Tier: rules.Tier(s.Tier)},
	}
	if len(failuresJSON) > 0 {
		if err := json.Unmarshal(failuresJSON, &sess.Failures); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal review failures")
		}
	}
	if sess.Deltas, err = r.listDeltas(ctx, id); err != nil {
		return nil, err
	}
	if sess.Judgements, err = r.listJudgements(ctx, id); err != nil {
		return nil, err
	}
	s.Session = sess
	return s, nil
}

// List returns session headers for an organization, newest first. Detail
// rows are not loaded.
func (r *ReviewSessionRepository) List(ctx context.Context, organizationID string, limit int) ([]*StoredSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, organization_id, baseline_dataset_id, current_dataset_id,
		       tier, status, delta_count, material_count, blocker_count,
		       created_by, created_at
		FROM review_sessions
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, organizationID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list review sessions")
	}
	defer rows.Close()

	var out []*StoredSession
	for rows.Next() {
		s := &StoredSession{}
		if err := rows.Scan(
			&s.ID, &s.OrganizationID, &s.BaselineDatasetID, &s.CurrentDatasetID,
			&s.Tier, &s.Status, &s.DeltaCount, &s.MaterialCount, &s.BlockerCount,
			&s.CreatedBy, &s.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan review session")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateReviewerNotes sets the notes on one judgement. Notes are the only
// judgement column that changes after a run.
func (r *ReviewSessionRepository) UpdateReviewerNotes(ctx context.Context, sessionID string, seq uint64, notes string) error {
	if err := checkID("review_session", sessionID); err != nil {
		return err
	}
	query := `
		UPDATE material_judgements
		SET reviewer_notes = $3,
		    updated_at     = NOW()
		WHERE review_session_id = $1 AND seq = $2
		RETURNING seq
	`

	var returned int64
	err := r.db.QueryRow(ctx, query, sessionID, int64(seq), nullable(notes)).Scan(&returned)
	if err == pgx.ErrNoRows {
		return errors.Newf(errors.ErrCodeNotFound, "judgement %d not found in review session %s", seq, sessionID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update reviewer notes")
	}
	return nil
}

// ── row helpers ───────────────────────────────────────────────────────────────

// deltaRow returns the payroll_deltas insert arguments for d.
func deltaRow(sessionID string, d payroll.Delta) ([]any, error) {
	prior, err := json.Marshal(d.Prior)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal prior value")
	}
	current, err := json.Marshal(d.Current)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal current value")
	}
	return []any{
		sessionID, int64(d.Seq), d.EmployeeID, d.PayPeriod, d.Field,
		prior, current, string(d.ChangeType),
		d.AbsChange.Ptr(), d.PctChange.Ptr(),
	}, nil
}

// judgementRow returns the material_judgements insert arguments for j.
// fired_rules is NOT NULL, and pgx encodes a nil slice as NULL.
func judgementRow(sessionID string, j rules.Judgement) []any {
	fired := j.Fired
	if fired == nil {
		fired = []string{}
	}
	return []any{
		sessionID, int64(j.Seq), nullable(j.RuleID), j.RuleName, j.Category,
		j.Severity.String(), j.Material, j.IsBlocker(), j.Reason, j.UserAction,
		fired, nullable(j.ReviewerNotes),
	}
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ReviewSessionRepository) listDeltas(ctx context.Context, sessionID string) ([]payroll.Delta, error) {
	query := `
		SELECT seq, employee_id, pay_period, field,
		       prior_value, current_value, change_type,
		       delta_absolute, delta_percentage
		FROM payroll_deltas
		WHERE review_session_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list deltas")
	}
	defer rows.Close()

	deltas := []payroll.Delta{}
	for rows.Next() {
		var (
			d              payroll.Delta
			seq            int64
			prior, current []byte
			changeType     string
			abs, pct       *float64
		)
		if err := rows.Scan(&seq, &d.EmployeeID, &d.PayPeriod, &d.Field,
			&prior, &current, &changeType, &abs, &pct); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan delta")
		}
		if err := unmarshalValue(prior, &d.Prior); err != nil {
			return nil, err
		}
		if err := unmarshalValue(current, &d.Current); err != nil {
			return nil, err
		}
		d.Seq = uint64(seq)
		d.ChangeType = payroll.ChangeType(changeType)
		d.AbsChange = payroll.AmountFromPtr(abs)
		d.PctChange = payroll.AmountFromPtr(pct)
		deltas = append(deltas, d)
	}
	return deltas, rows.Err()
}

func (r *ReviewSessionRepository) listJudgements(ctx context.Context, sessionID string) ([]rules.Judgement, error) {
	query := `
		SELECT j.seq, d.employee_id, d.field, d.change_type,
		       j.rule_id, j.rule_name, j.category, j.severity, j.is_material,
		       j.reasoning, j.user_action, j.fired_rules, j.reviewer_notes
		FROM material_judgements j
		JOIN payroll_deltas d
		  ON d.review_session_id = j.review_session_id AND d.seq = j.seq
		WHERE j.review_session_id = $1
		ORDER BY j.seq ASC
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list judgements")
	}
	defer rows.Close()

	judgements := []rules.Judgement{}
	for rows.Next() {
		var (
			j              rules.Judgement
			seq            int64
			changeType     string
			ruleID, notes  *string
			severity       string
		)
		if err := rows.Scan(&seq, &j.EmployeeID, &j.Field, &changeType,
			&ruleID, &j.RuleName, &j.Category, &severity, &j.Material,
			&j.Reason, &j.UserAction, &j.Fired, &notes); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan judgement")
		}
		sev, err := rules.ParseSeverity(severity)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "stored judgement has bad severity")
		}
		j.Seq = uint64(seq)
		j.ChangeType = payroll.ChangeType(changeType)
		j.Severity = sev
		if ruleID != nil {
			j.RuleID = *ruleID
		}
		if notes != nil {
			j.ReviewerNotes = *notes
		}
		judgements = append(judgements, j)
	}
	return judgements, rows.Err()
}

func unmarshalValue(data []byte, v *payroll.Value) error {
	if len(data) == 0 {
		*v = payroll.Absent
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal delta value")
	}
	return nil
}

// checkID rejects ids that are not UUIDs before they reach a uuid column,
// where Postgres would fail the cast. Such ids cannot exist, so they are
// reported as not found.
func checkID(resource, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NotFound(resource, id)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

