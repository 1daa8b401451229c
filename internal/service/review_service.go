package service

import (
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/logger"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/repository"
	"github.com/pesio-ai/be-payroll-review/internal/review"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
	"github.com/pesio-ai/be-payroll-review/internal/workflow"
)

// ReviewService loads datasets, runs reviews against the active rule
// registry, persists the outcome and notifies collaborators.
type ReviewService struct {
	datasets  DatasetStore
	sessions  SessionStore
	decisions DecisionStore
	audit     AuditStore
	tiers     TierStore
	notifier  Notifier
	webhooks  WebhookPoster
	rules     atomic.Pointer[rules.Set]
	log       *logger.Logger
}

// NewReviewService creates a new ReviewService. notifier and webhooks may
// be nil.
func NewReviewService(
	datasets DatasetStore,
	sessions SessionStore,
	decisions DecisionStore,
	audit AuditStore,
	tiers TierStore,
	notifier Notifier,
	webhooks WebhookPoster,
	set *rules.Set,
	log *logger.Logger,
) *ReviewService {
	s := &ReviewService{
		datasets:  datasets,
		sessions:  sessions,
		decisions: decisions,
		audit:     audit,
		tiers:     tiers,
		notifier:  notifier,
		webhooks:  webhooks,
		log:       log,
	}
	s.rules.Store(set)
	return s
}

// Rules returns the active rule registry.
func (s *ReviewService) Rules() *rules.Set { return s.rules.Load() }

// ReplaceRules swaps the active registry. Runs already in flight keep the
// registry they started with.
func (s *ReviewService) ReplaceRules(set *rules.Set) error {
	if set == nil {
		return errors.RuleConfiguration("", "rule registry is required")
	}
	s.rules.Store(set)
	s.log.Info().Int("rules", set.Len()).Msg("Rule registry replaced")
	return nil
}

// ── Datasets ──────────────────────────────────────────────────────────────────

// UploadDatasetRequest carries one payroll snapshot.
type UploadDatasetRequest struct {
	OrganizationID string
	DatasetType    string
	PayPeriod      string
	FileName       *string
	Records        []payroll.Record
	CreatedBy      string
}

// UploadDataset stores a dataset. Record-level problems such as blank or
// duplicate employee ids are reported by the review, not rejected here.
func (s *ReviewService) UploadDataset(ctx context.Context, req *UploadDatasetRequest) (*repository.PayrollDataset, error) {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return nil, errors.InvalidInput("organization_id", "organization_id is required")
	}
	dsType := strings.ToLower(strings.TrimSpace(req.DatasetType))
	if dsType != repository.DatasetBaseline && dsType != repository.DatasetCurrent {
		return nil, errors.InvalidInput("dataset_type", "dataset_type must be baseline or current")
	}
	if strings.TrimSpace(req.PayPeriod) == "" {
		return nil, errors.InvalidInput("pay_period", "pay_period is required")
	}
	if len(req.Records) == 0 {
		return nil, errors.InvalidInput("records", "at least one record is required")
	}

	ds := &repository.PayrollDataset{
		OrganizationID: req.OrganizationID,
		DatasetType:    dsType,
		PayPeriod:      req.PayPeriod,
		FileName:       req.FileName,
		CreatedBy:      optional(req.CreatedBy),
	}
	if err := s.datasets.Create(ctx, ds, req.Records); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("dataset_id", ds.ID).
		Str("organization_id", ds.OrganizationID).
		Str("dataset_type", ds.DatasetType).
		Int("records", ds.RecordCount).
		Msg("Payroll dataset stored")

	return ds, nil
}

// ImportCSVRequest carries one uploaded payroll file.
type ImportCSVRequest struct {
	OrganizationID string
	DatasetType    string
	PayPeriod      string
	FileName       string
	CreatedBy      string
	Body           io.Reader
}

// ImportCSVResult is the stored dataset plus how the file's columns were read.
type ImportCSVResult struct {
	Dataset *repository.PayrollDataset
	Import  *payroll.CSVImport
}

// ImportCSV maps a CSV file's headers onto record fields and stores the rows
// as a dataset.
func (s *ReviewService) ImportCSV(ctx context.Context, req *ImportCSVRequest) (*ImportCSVResult, error) {
	if req.Body == nil {
		return nil, errors.InvalidInput("file", "file is required")
	}
	imp, err := payroll.ParseCSV(req.Body, req.PayPeriod)
	if err != nil {
		return nil, err
	}

	ds, err := s.UploadDataset(ctx, &UploadDatasetRequest{
		OrganizationID: req.OrganizationID,
		DatasetType:    req.DatasetType,
		PayPeriod:      req.PayPeriod,
		FileName:       optional(req.FileName),
		Records:        imp.Records,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	if len(imp.Unmapped) > 0 || len(imp.Warnings) > 0 {
		s.log.Warn().
			Str("dataset_id", ds.ID).
			Strs("unmapped", imp.Unmapped).
			Int("warnings", len(imp.Warnings)).
			Msg("CSV import dropped or kept suspect cells")
	}
	return &ImportCSVResult{Dataset: ds, Import: imp}, nil
}

// ── Review run ────────────────────────────────────────────────────────────────

// RunReviewRequest names the two datasets to compare.
type RunReviewRequest struct {
	OrganizationID    string
	BaselineDatasetID string
	CurrentDatasetID  string
	RequestedBy       string
}

// RunReview compares the baseline dataset with the current one, stores the
// session and notifies collaborators. Notification and audit failures are
// logged, never returned.
func (s *ReviewService) RunReview(ctx context.Context, req *RunReviewRequest) (*repository.StoredSession, error) {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return nil, errors.InvalidInput("organization_id", "organization_id is required")
	}
	if req.BaselineDatasetID == "" {
		return nil, errors.InvalidInput("baseline_dataset_id", "baseline_dataset_id is required")
	}
	if req.CurrentDatasetID == "" {
		return nil, errors.InvalidInput("current_dataset_id", "current_dataset_id is required")
	}
	if req.BaselineDatasetID == req.CurrentDatasetID {
		return nil, errors.InvalidInput("current_dataset_id", "baseline and current datasets must differ")
	}

	prior, err := s.loadDataset(ctx, req.BaselineDatasetID, req.OrganizationID, repository.DatasetBaseline)
	if err != nil {
		return nil, err
	}
	current, err := s.loadDataset(ctx, req.CurrentDatasetID, req.OrganizationID, repository.DatasetCurrent)
	if err != nil {
		return nil, err
	}

	tier, err := s.tiers.GetTier(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	sess, err := review.Run(prior, current, s.rules.Load(), review.Options{
		SessionID:      uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Context:        rules.Context{OrganizationID: req.OrganizationID, Tier: tier},
	})
	if err != nil {
		return nil, err
	}

	verdict := sess.Verdict()
	stored := &repository.StoredSession{
		ID:                sess.ID,
		OrganizationID:    sess.OrganizationID,
		BaselineDatasetID: req.BaselineDatasetID,
		CurrentDatasetID:  req.CurrentDatasetID,
		Tier:              string(tier),
		Status:            string(sess.Status()),
		DeltaCount:        len(sess.Deltas),
		MaterialCount:     len(sess.Material()),
		BlockerCount:      verdict.Blockers,
		CreatedBy:         optional(req.RequestedBy),
		Session:           sess,
	}
	if err := s.sessions.Create(ctx, stored); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("review_session_id", stored.ID).
		Str("organization_id", stored.OrganizationID).
		Str("status", stored.Status).
		Int("deltas", stored.DeltaCount).
		Int("material", stored.MaterialCount).
		Int("blockers", stored.BlockerCount).
		Int("failures", len(sess.Failures)).
		Msg("Review session completed")

	statusAfter := stored.Status
	appendAudit(ctx, s.audit, s.log, &repository.AuditEntry{
		ReviewSessionID: stored.ID,
		OrganizationID:  stored.OrganizationID,
		Action:          repository.AuditReviewRun,
		PerformedBy:     actor(req.RequestedBy),
		StatusAfter:     &statusAfter,
		Metadata: map[string]interface{}{
			"baseline_dataset_id": req.BaselineDatasetID,
			"current_dataset_id":  req.CurrentDatasetID,
			"tier":                stored.Tier,
			"delta_count":         stored.DeltaCount,
			"verdict":             verdict.Status,
		},
	})

	s.notify(ctx, sess, req.RequestedBy)
	return stored, nil
}

func (s *ReviewService) loadDataset(ctx context.Context, id, organizationID, wantType string) ([]payroll.Record, error) {
	ds, err := s.datasets.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if ds.DatasetType != wantType {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "dataset %s is a %s dataset, want %s", id, ds.DatasetType, wantType)
	}
	return s.datasets.ListRecords(ctx, id)
}

func (s *ReviewService) notify(ctx context.Context, sess *review.Session, actorID string) {
	if s.webhooks != nil {
		if err := s.webhooks.PostDiff(ctx, sess); err != nil {
			s.log.Warn().Err(err).Str("review_session_id", sess.ID).Msg("Diff webhook failed (non-fatal)")
		}
	}
	if sess.Status() != review.StatusRequiresApproval {
		return
	}
	if s.webhooks != nil {
		if err := s.webhooks.PostJudgement(ctx, sess); err != nil {
			s.log.Warn().Err(err).Str("review_session_id", sess.ID).Msg("Judgement webhook failed (non-fatal)")
		}
	}
	if s.notifier != nil {
		s.notifier.PublishReviewRequiresApproval(ctx, sess, actorID)
	}
}

// ── Queries ───────────────────────────────────────────────────────────────────

// ReviewDetail is a stored session with its effective status. The derived
// status never changes; a decision, when present, overrides it.
type ReviewDetail struct {
	*repository.StoredSession
	Decision        *repository.ApprovalDecision
	EffectiveStatus review.Status
}

// GetReview loads a session with its latest decision.
func (s *ReviewService) GetReview(ctx context.Context, id, organizationID string) (*ReviewDetail, error) {
	stored, err := s.sessions.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	detail := &ReviewDetail{StoredSession: stored, EffectiveStatus: stored.Session.Status()}

	decision, err := s.decisions.GetLatest(ctx, id, organizationID)
	switch {
	case err == nil:
		detail.Decision = decision
		if st, perr := review.ParseStatus(decision.Status); perr == nil {
			detail.EffectiveStatus = st
		}
	case errors.HasCode(err, errors.ErrCodeNotFound):
	default:
		return nil, err
	}
	return detail, nil
}

// ListReviews returns recent session headers for an organization.
func (s *ReviewService) ListReviews(ctx context.Context, organizationID string, limit int) ([]*repository.StoredSession, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, errors.InvalidInput("organization_id", "organization_id is required")
	}
	return s.sessions.List(ctx, organizationID, limit)
}

// ExportWorkflow exports the active registry as a workflow graph.
func (s *ReviewService) ExportWorkflow(name string) (*workflow.Graph, error) {
	return workflow.Export(name, s.rules.Load())
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func appendAudit(ctx context.Context, store AuditStore, log *logger.Logger, entry *repository.AuditEntry) {
	if store == nil {
		return
	}
	if err := store.Append(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("review_session_id", entry.ReviewSessionID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func actor(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "system"
	}
	return s
}
