package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/logger"
	"github.com/pesio-ai/be-payroll-review/internal/repository"
	"github.com/pesio-ai/be-payroll-review/internal/review"
)

// MinRejectionNotes is the shortest rejection explanation accepted.
const MinRejectionNotes = 10

// ApprovalService records human decisions on review sessions and the
// reviewer notes attached to individual judgements.
type ApprovalService struct {
	sessions  SessionStore
	decisions DecisionStore
	audit     AuditStore
	notifier  Notifier
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	sessions SessionStore,
	decisions DecisionStore,
	audit AuditStore,
	notifier Notifier,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		sessions:  sessions,
		decisions: decisions,
		audit:     audit,
		notifier:  notifier,
		log:       log,
	}
}

// DecisionRequest approves or rejects a review session.
type DecisionRequest struct {
	ReviewSessionID string
	OrganizationID  string
	Status          string
	Notes           string
	DecidedBy       string
}

// ── Decide ────────────────────────────────────────────────────────────────────

// Decide records an approval decision. Approval is refused while any blocker
// remains or when there is nothing to approve; rejection needs an
// explanation.
func (s *ApprovalService) Decide(ctx context.Context, req *DecisionRequest) (*repository.ApprovalDecision, error) {
	if req.ReviewSessionID == "" {
		return nil, errors.InvalidInput("review_session_id", "review_session_id is required")
	}
	if strings.TrimSpace(req.DecidedBy) == "" {
		return nil, errors.InvalidInput("approved_by", "approved_by is required")
	}
	status, err := review.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		return nil, err
	}
	if status != review.StatusApproved && status != review.StatusRejected {
		return nil, errors.InvalidInput("approval_status", "approval_status must be approved or rejected")
	}
	notes := strings.TrimSpace(req.Notes)

	stored, err := s.sessions.GetByID(ctx, req.ReviewSessionID, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	sess := stored.Session

	switch status {
	case review.StatusApproved:
		if v := sess.Verdict(); v.Blockers > 0 {
			return nil, errors.Newf(errors.ErrCodeConflict,
				"cannot approve: %d blocking judgement(s) must be resolved first", v.Blockers)
		}
		if len(sess.Deltas) == 0 {
			return nil, errors.New(errors.ErrCodeConflict, "cannot approve: review has no deltas")
		}
	case review.StatusRejected:
		if utf8.RuneCountInString(notes) < MinRejectionNotes {
			return nil, errors.InvalidInput("approval_notes",
				"rejection requires notes of at least 10 characters")
		}
	}

	statusBefore := stored.Status
	if latest, err := s.decisions.GetLatest(ctx, stored.ID, stored.OrganizationID); err == nil {
		statusBefore = latest.Status
	} else if !errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	d := &repository.ApprovalDecision{
		ReviewSessionID: stored.ID,
		OrganizationID:  stored.OrganizationID,
		Status:          string(status),
		Notes:           optional(notes),
		DecidedBy:       strings.TrimSpace(req.DecidedBy),
	}
	if err := s.decisions.Create(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("review_session_id", d.ReviewSessionID).
		Str("status", d.Status).
		Str("decided_by", d.DecidedBy).
		Msg("Review decision recorded")

	action := repository.AuditApproved
	if status == review.StatusRejected {
		action = repository.AuditRejected
	}
	statusAfter := d.Status
	appendAudit(ctx, s.audit, s.log, &repository.AuditEntry{
		ReviewSessionID: d.ReviewSessionID,
		OrganizationID:  d.OrganizationID,
		Action:          action,
		PerformedBy:     d.DecidedBy,
		StatusBefore:    &statusBefore,
		StatusAfter:     &statusAfter,
		Metadata:        map[string]interface{}{"notes": notes},
	})

	if s.notifier != nil {
		if status == review.StatusApproved {
			s.notifier.PublishReviewApproved(ctx, sess, d.DecidedBy)
		} else {
			s.notifier.PublishReviewRejected(ctx, sess, d.DecidedBy, notes)
		}
	}

	return d, nil
}

// ── Reviewer notes ────────────────────────────────────────────────────────────

// SaveNotes sets the reviewer notes on one judgement.
func (s *ApprovalService) SaveNotes(ctx context.Context, sessionID, organizationID string, seq uint64, notes, by string) error {
	if sessionID == "" {
		return errors.InvalidInput("review_session_id", "review_session_id is required")
	}
	if seq == 0 {
		return errors.InvalidInput("seq", "seq must be positive")
	}

	stored, err := s.sessions.GetByID(ctx, sessionID, organizationID)
	if err != nil {
		return err
	}
	notes = strings.TrimSpace(notes)
	if err := stored.Session.SetReviewerNotes(seq, notes); err != nil {
		return err
	}
	if err := s.sessions.UpdateReviewerNotes(ctx, sessionID, seq, notes); err != nil {
		return err
	}

	appendAudit(ctx, s.audit, s.log, &repository.AuditEntry{
		ReviewSessionID: sessionID,
		OrganizationID:  stored.OrganizationID,
		Action:          repository.AuditNotesUpdated,
		PerformedBy:     actor(by),
		Metadata:        map[string]interface{}{"seq": seq},
	})
	return nil
}

// AuditTrail returns the session's audit log, oldest first.
func (s *ApprovalService) AuditTrail(ctx context.Context, sessionID, organizationID string) ([]*repository.AuditEntry, error) {
	if sessionID == "" {
		return nil, errors.InvalidInput("review_session_id", "review_session_id is required")
	}
	return s.audit.ListBySession(ctx, sessionID, organizationID)
}
