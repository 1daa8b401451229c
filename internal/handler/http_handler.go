package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pesio-ai/be-payroll-review/internal/config"
	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/logger"
	"github.com/pesio-ai/be-payroll-review/internal/middleware"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/repository"
	"github.com/pesio-ai/be-payroll-review/internal/review"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
	"github.com/pesio-ai/be-payroll-review/internal/service"
	"github.com/pesio-ai/be-payroll-review/internal/workflow"
)

// maxBodyBytes bounds dataset uploads.
const maxBodyBytes = 32 << 20

// maxCSVBytes bounds a single uploaded payroll file.
const maxCSVBytes = 10 << 20

// maxRulesBytes bounds a rule registry upload.
const maxRulesBytes = 1 << 20

// ReviewAPI is the review service surface the transports use.
type ReviewAPI interface {
	UploadDataset(ctx context.Context, req *service.UploadDatasetRequest) (*repository.PayrollDataset, error)
	ImportCSV(ctx context.Context, req *service.ImportCSVRequest) (*service.ImportCSVResult, error)
	RunReview(ctx context.Context, req *service.RunReviewRequest) (*repository.StoredSession, error)
	GetReview(ctx context.Context, id, organizationID string) (*service.ReviewDetail, error)
	ListReviews(ctx context.Context, organizationID string, limit int) ([]*repository.StoredSession, error)
	ExportWorkflow(name string) (*workflow.Graph, error)
	Rules() *rules.Set
	ReplaceRules(set *rules.Set) error
}

// ApprovalAPI is the approval service surface the transports use.
type ApprovalAPI interface {
	Decide(ctx context.Context, req *service.DecisionRequest) (*repository.ApprovalDecision, error)
	SaveNotes(ctx context.Context, sessionID, organizationID string, seq uint64, notes, by string) error
	AuditTrail(ctx context.Context, sessionID, organizationID string) ([]*repository.AuditEntry, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	reviews   ReviewAPI
	approvals ApprovalAPI
	db        HealthChecker
	webhooks  config.WebhookStatus
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler. db may be nil, in which case
// health reports liveness only.
func NewHTTPHandler(
	reviews ReviewAPI,
	approvals ApprovalAPI,
	db HealthChecker,
	webhooks config.WebhookStatus,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		reviews:   reviews,
		approvals: approvals,
		db:        db,
		webhooks:  webhooks,
		log:       log,
	}
}

// Routes registers every endpoint on mux.
func (h *HTTPHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/api/v1/datasets", h.UploadDataset)
	mux.HandleFunc("/api/v1/datasets/csv", h.ImportCSV)
	mux.HandleFunc("/api/v1/datasets/template", h.Template)
	mux.HandleFunc("/api/v1/reviews", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListReviews(w, r)
		case http.MethodPost:
			h.RunReview(w, r)
		default:
			h.methodNotAllowed(w, r)
		}
	})
	mux.HandleFunc("/api/v1/reviews/get", h.GetReview)
	mux.HandleFunc("/api/v1/reviews/decision", h.Decide)
	mux.HandleFunc("/api/v1/reviews/audit", h.AuditTrail)
	mux.HandleFunc("/api/v1/judgements/notes", h.SaveNotes)
	mux.HandleFunc("/api/v1/workflow/export", h.ExportWorkflow)
	mux.HandleFunc("/api/v1/integrations/status", h.IntegrationStatus)
	mux.HandleFunc("/api/v1/rules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListRules(w, r)
		case http.MethodPut:
			h.ReplaceRules(w, r)
		default:
			h.methodNotAllowed(w, r)
		}
	})
}

// ── Request and response bodies ───────────────────────────────────────────────

type uploadDatasetBody struct {
	OrganizationID string           `json:"organization_id"`
	DatasetType    string           `json:"dataset_type"`
	PayPeriod      string           `json:"pay_period"`
	FileName       *string          `json:"file_name"`
	CreatedBy      string           `json:"created_by"`
	Records        []payroll.Record `json:"records"`
}

type runReviewBody struct {
	OrganizationID    string `json:"organization_id"`
	BaselineDatasetID string `json:"baseline_dataset_id"`
	CurrentDatasetID  string `json:"current_dataset_id"`
	RequestedBy       string `json:"requested_by"`
}

type decisionBody struct {
	ReviewSessionID string `json:"review_session_id"`
	OrganizationID  string `json:"organization_id"`
	ApprovalStatus  string `json:"approval_status"`
	ApprovalNotes   string `json:"approval_notes"`
	ApprovedBy      string `json:"approved_by"`
}

type notesBody struct {
	ReviewSessionID string `json:"review_session_id"`
	OrganizationID  string `json:"organization_id"`
	Seq             uint64 `json:"seq"`
	Notes           string `json:"notes"`
	UpdatedBy       string `json:"updated_by"`
}

// SessionResponse is the wire form of a stored review.
type SessionResponse struct {
	ID                string                       `json:"id"`
	OrganizationID    string                       `json:"organization_id"`
	BaselineDatasetID string                       `json:"baseline_dataset_id"`
	CurrentDatasetID  string                       `json:"current_dataset_id"`
	Tier              string                       `json:"tier"`
	Status            review.Status                `json:"status"`
	EffectiveStatus   review.Status                `json:"effective_status"`
	Verdict           review.Verdict               `json:"verdict"`
	DeltaCount        int                          `json:"delta_count"`
	MaterialCount     int                          `json:"material_count"`
	BlockerCount      int                          `json:"blocker_count"`
	Deltas            []payroll.Delta              `json:"deltas,omitempty"`
	Judgements        []rules.Judgement            `json:"judgements,omitempty"`
	Failures          []review.EmployeeError       `json:"failures,omitempty"`
	Decision          *repository.ApprovalDecision `json:"decision,omitempty"`
	CreatedBy         *string                      `json:"created_by,omitempty"`
	CreatedAt         time.Time                    `json:"created_at"`
}

func sessionResponse(s *repository.StoredSession, d *repository.ApprovalDecision, effective review.Status) *SessionResponse {
	resp := &SessionResponse{
		ID:                s.ID,
		OrganizationID:    s.OrganizationID,
		BaselineDatasetID: s.BaselineDatasetID,
		CurrentDatasetID:  s.CurrentDatasetID,
		Tier:              s.Tier,
		Status:            review.Status(s.Status),
		EffectiveStatus:   effective,
		DeltaCount:        s.DeltaCount,
		MaterialCount:     s.MaterialCount,
		BlockerCount:      s.BlockerCount,
		Decision:          d,
		CreatedBy:         s.CreatedBy,
		CreatedAt:         s.CreatedAt,
	}
	if s.Session != nil {
		resp.Status = s.Session.Status()
		resp.Verdict = s.Session.Verdict()
		resp.Deltas = s.Session.Deltas
		resp.Judgements = s.Session.Judgements
		resp.Failures = s.Session.Failures
	}
	if resp.EffectiveStatus == "" {
		resp.EffectiveStatus = resp.Status
	}
	return resp
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// Health reports liveness and, when a database is configured, whether it
// answers a ping.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Health check: database unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "ok"})
}

// UploadDataset handles POST /api/v1/datasets.
func (h *HTTPHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r)
		return
	}
	var body uploadDatasetBody
	if !h.decode(w, r, &body) {
		return
	}

	ds, err := h.reviews.UploadDataset(r.Context(), &service.UploadDatasetRequest{
		OrganizationID: body.OrganizationID,
		DatasetType:    body.DatasetType,
		PayPeriod:      body.PayPeriod,
		FileName:       body.FileName,
		Records:        body.Records,
		CreatedBy:      body.CreatedBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":              ds.ID,
		"organization_id": ds.OrganizationID,
		"dataset_type":    ds.DatasetType,
		"pay_period":      ds.PayPeriod,
		"record_count":    ds.RecordCount,
		"created_at":      ds.CreatedAt,
	})
}

// ImportCSV handles POST /api/v1/datasets/csv, a multipart form with a
// "file" part and the dataset fields as form values.
func (h *HTTPHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVBytes+1<<20)
	if err := r.ParseMultipartForm(maxCSVBytes); err != nil {
		h.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, errors.InvalidInput("file", "file is required"))
		return
	}
	defer file.Close()
	if header.Size > maxCSVBytes {
		h.writeError(w, r, errors.InvalidInput("file", "file exceeds 10MB"))
		return
	}

	res, err := h.reviews.ImportCSV(r.Context(), &service.ImportCSVRequest{
		OrganizationID: r.FormValue("organization_id"),
		DatasetType:    r.FormValue("dataset_type"),
		PayPeriod:      r.FormValue("pay_period"),
		FileName:       header.Filename,
		CreatedBy:      r.FormValue("created_by"),
		Body:           file,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ds := res.Dataset
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":              ds.ID,
		"organization_id": ds.OrganizationID,
		"dataset_type":    ds.DatasetType,
		"pay_period":      ds.PayPeriod,
		"record_count":    ds.RecordCount,
		"created_at":      ds.CreatedAt,
		"mappings":        res.Import.Mappings,
		"unmapped":        res.Import.Unmapped,
		"warnings":        res.Import.Warnings,
	})
}

// Template handles GET /api/v1/datasets/template?dataset_type=.
func (h *HTTPHandler) Template(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	name := "payroll"
	switch t := r.URL.Query().Get("dataset_type"); t {
	case "":
	case repository.DatasetBaseline, repository.DatasetCurrent:
		name = t
	default:
		h.writeError(w, r, errors.InvalidInput("dataset_type", "dataset_type must be baseline or current"))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`_template.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := payroll.WriteTemplate(w); err != nil {
		h.log.Error().Err(err).Msg("Failed to write template")
	}
}

// RunReview handles POST /api/v1/reviews.
func (h *HTTPHandler) RunReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r)
		return
	}
	var body runReviewBody
	if !h.decode(w, r, &body) {
		return
	}

	stored, err := h.reviews.RunReview(r.Context(), &service.RunReviewRequest{
		OrganizationID:    body.OrganizationID,
		BaselineDatasetID: body.BaselineDatasetID,
		CurrentDatasetID:  body.CurrentDatasetID,
		RequestedBy:       body.RequestedBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(stored, nil, ""))
}

// GetReview handles GET /api/v1/reviews/get?id=&organization_id=.
func (h *HTTPHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	id := r.URL.Query().Get("id")
	org := r.URL.Query().Get("organization_id")
	if id == "" || org == "" {
		h.writeError(w, r, errors.InvalidInput("id", "id and organization_id are required"))
		return
	}

	detail, err := h.reviews.GetReview(r.Context(), id, org)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(detail.StoredSession, detail.Decision, detail.EffectiveStatus))
}

// ListReviews handles GET /api/v1/reviews?organization_id=&limit=.
func (h *HTTPHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	org := r.URL.Query().Get("organization_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := h.reviews.ListReviews(r.Context(), org, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse(s, nil, ""))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reviews": out, "total": len(out)})
}

// Decide handles POST /api/v1/reviews/decision.
func (h *HTTPHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r)
		return
	}
	var body decisionBody
	if !h.decode(w, r, &body) {
		return
	}

	d, err := h.approvals.Decide(r.Context(), &service.DecisionRequest{
		ReviewSessionID: body.ReviewSessionID,
		OrganizationID:  body.OrganizationID,
		Status:          body.ApprovalStatus,
		Notes:           body.ApprovalNotes,
		DecidedBy:       body.ApprovedBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SaveNotes handles PATCH /api/v1/judgements/notes.
func (h *HTTPHandler) SaveNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		h.methodNotAllowed(w, r)
		return
	}
	var body notesBody
	if !h.decode(w, r, &body) {
		return
	}

	err := h.approvals.SaveNotes(r.Context(), body.ReviewSessionID, body.OrganizationID, body.Seq, body.Notes, body.UpdatedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"review_session_id": body.ReviewSessionID,
		"seq":               body.Seq,
		"updated":           true,
	})
}

// AuditTrail handles GET /api/v1/reviews/audit?id=&organization_id=.
func (h *HTTPHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	entries, err := h.approvals.AuditTrail(r.Context(), r.URL.Query().Get("id"), r.URL.Query().Get("organization_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*repository.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// ExportWorkflow handles GET /api/v1/workflow/export?name=.
func (h *HTTPHandler) ExportWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	g, err := h.reviews.ExportWorkflow(r.URL.Query().Get("name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// IntegrationStatus handles GET /api/v1/integrations/status. Only
// configured flags are exposed, never the endpoints themselves.
func (h *HTTPHandler) IntegrationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.webhooks)
}

// ListRules handles GET /api/v1/rules.
func (h *HTTPHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	set := h.reviews.Rules()
	out := []rules.Rule{}
	if set != nil {
		out = set.Rules()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": out, "total": len(out)})
}

// ReplaceRules handles PUT /api/v1/rules with a YAML rule registry body. An
// invalid registry leaves the active one in place.
func (h *HTTPHandler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRulesBytes))
	if err != nil {
		h.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	set, err := rules.ParseRegistryYAML(data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.reviews.ReplaceRules(set); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"replaced": true, "total": set.Len()})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// ErrorEnvelope is the JSON body of every error response.
type ErrorEnvelope struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Path      string `json:"path"`
	Method    string `json:"method"`
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

func (h *HTTPHandler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorEnvelope{
		Code:      "METHOD_NOT_ALLOWED",
		Message:   "method not allowed",
		RequestID: middleware.RequestIDFrom(r.Context()),
		Path:      r.URL.Path,
		Method:    r.Method,
	})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	env := ErrorEnvelope{
		Code:      string(errors.CodeOf(err)),
		Message:   err.Error(),
		RequestID: middleware.RequestIDFrom(r.Context()),
		Path:      r.URL.Path,
		Method:    r.Method,
	}
	var e *errors.Error
	if errors.As(err, &e) {
		env.Message = e.Message
		env.Field = e.Field
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", env.RequestID).Msg("Request failed")
		env.Message = "internal error"
	}
	writeJSON(w, status, env)
}

func httpStatus(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeRuleConfiguration, errors.ErrCodeExportEquivalence:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
