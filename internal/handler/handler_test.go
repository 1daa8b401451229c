package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-payroll-review/internal/config"
	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/logger"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/repository"
	"github.com/pesio-ai/be-payroll-review/internal/review"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
	"github.com/pesio-ai/be-payroll-review/internal/service"
	"github.com/pesio-ai/be-payroll-review/internal/workflow"
)

type fakeReviews struct {
	uploaded *service.UploadDatasetRequest
	imported *service.ImportCSVRequest
	csvBody  string
	run      *service.RunReviewRequest
	rules    *rules.Set
	err      error
}

func storedSession() *repository.StoredSession {
	sess := &review.Session{
		ID:             "S1",
		OrganizationID: "ORG",
		Deltas: []payroll.Delta{{
			Seq: 1, EmployeeID: "E1", Field: "net_pay",
			Prior: payroll.Number(1000), Current: payroll.Number(700),
			ChangeType: payroll.ChangeDecrease,
			AbsChange:  payroll.DefinedAmount(-300), PctChange: payroll.DefinedAmount(-30),
		}},
		Judgements: []rules.Judgement{{
			Seq: 1, EmployeeID: "E1", Field: "net_pay", ChangeType: payroll.ChangeDecrease,
			RuleID: "NET_PAY_DROP", Material: true, Severity: rules.SeverityBlock, Reason: "net pay dropped",
		}},
	}
	return &repository.StoredSession{
		ID: "S1", OrganizationID: "ORG", BaselineDatasetID: "B", CurrentDatasetID: "C",
		Tier: "starter", Status: string(review.StatusRequiresApproval),
		DeltaCount: 1, MaterialCount: 1, BlockerCount: 1, Session: sess,
	}
}

func (f *fakeReviews) UploadDataset(_ context.Context, req *service.UploadDatasetRequest) (*repository.PayrollDataset, error) {
	f.uploaded = req
	if f.err != nil {
		return nil, f.err
	}
	return &repository.PayrollDataset{ID: "DS1", OrganizationID: req.OrganizationID, DatasetType: req.DatasetType,
		PayPeriod: req.PayPeriod, RecordCount: len(req.Records)}, nil
}

func (f *fakeReviews) ImportCSV(_ context.Context, req *service.ImportCSVRequest) (*service.ImportCSVResult, error) {
	f.imported = req
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.csvBody = string(body)
	if f.err != nil {
		return nil, f.err
	}
	imp, err := payroll.ParseCSV(bytes.NewReader(body), req.PayPeriod)
	if err != nil {
		return nil, err
	}
	return &service.ImportCSVResult{
		Dataset: &repository.PayrollDataset{ID: "DS2", OrganizationID: req.OrganizationID, DatasetType: req.DatasetType,
			PayPeriod: req.PayPeriod, RecordCount: len(imp.Records)},
		Import: imp,
	}, nil
}

func (f *fakeReviews) Rules() *rules.Set { return f.rules }

func (f *fakeReviews) ReplaceRules(set *rules.Set) error {
	if f.err != nil {
		return f.err
	}
	f.rules = set
	return nil
}

func (f *fakeReviews) RunReview(_ context.Context, req *service.RunReviewRequest) (*repository.StoredSession, error) {
	f.run = req
	if f.err != nil {
		return nil, f.err
	}
	return storedSession(), nil
}

func (f *fakeReviews) GetReview(_ context.Context, id, org string) (*service.ReviewDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id != "S1" || org != "ORG" {
		return nil, errors.NotFound("review_session", id)
	}
	return &service.ReviewDetail{StoredSession: storedSession(), EffectiveStatus: review.StatusRejected,
		Decision: &repository.ApprovalDecision{ID: "D1", Status: "rejected", DecidedBy: "M1"}}, nil
}

func (f *fakeReviews) ListReviews(_ context.Context, org string, _ int) ([]*repository.StoredSession, error) {
	if org == "" {
		return nil, errors.InvalidInput("organization_id", "organization_id is required")
	}
	return []*repository.StoredSession{storedSession()}, nil
}

func (f *fakeReviews) ExportWorkflow(name string) (*workflow.Graph, error) {
	if f.err != nil {
		return nil, f.err
	}
	set := rules.MustNewSet([]rules.Rule{{ID: "SWING", Severity: rules.SeverityWarn, Kind: rules.KindThresholdAbs, Min: 100}})
	return workflow.Export(name, set)
}

type fakeApprovals struct {
	decision *service.DecisionRequest
	notes    string
	err      error
}

func (f *fakeApprovals) Decide(_ context.Context, req *service.DecisionRequest) (*repository.ApprovalDecision, error) {
	f.decision = req
	if f.err != nil {
		return nil, f.err
	}
	return &repository.ApprovalDecision{ID: "D1", ReviewSessionID: req.ReviewSessionID, Status: req.Status, DecidedBy: req.DecidedBy}, nil
}

func (f *fakeApprovals) SaveNotes(_ context.Context, _, _ string, _ uint64, notes, _ string) error {
	f.notes = notes
	return f.err
}

func (f *fakeApprovals) AuditTrail(context.Context, string, string) ([]*repository.AuditEntry, error) {
	return nil, f.err
}

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

func newServer(reviews *fakeReviews, approvals *fakeApprovals) *http.ServeMux {
	return newServerWithDB(reviews, approvals, nil)
}

func newServerWithDB(reviews *fakeReviews, approvals *fakeApprovals, db HealthChecker) *http.ServeMux {
	h := NewHTTPHandler(reviews, approvals, db, config.WebhookStatus{DiffConfigured: true}, logger.Nop())
	mux := http.NewServeMux()
	h.Routes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHTTP_UploadDataset(t *testing.T) {
	reviews := &fakeReviews{}
	mux := newServer(reviews, &fakeApprovals{})

	rec, out := do(t, mux, http.MethodPost, "/api/v1/datasets", `{
		"organization_id": "ORG", "dataset_type": "baseline", "pay_period": "2026-10",
		"records": [{"employee_id": "E1", "pay_period": "2026-10", "fields": {"net_pay": 1000, "pay_group": "weekly", "bonus": null}}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "DS1", out["id"])
	assert.EqualValues(t, 1, out["record_count"])

	require.Len(t, reviews.uploaded.Records, 1)
	fields := reviews.uploaded.Records[0].Fields
	assert.True(t, fields["net_pay"].Equal(payroll.Number(1000)))
	assert.True(t, fields["pay_group"].Equal(payroll.Text("weekly")))
	assert.True(t, fields["bonus"].IsAbsent())
}

func TestHTTP_RunReview(t *testing.T) {
	reviews := &fakeReviews{}
	mux := newServer(reviews, &fakeApprovals{})

	rec, out := do(t, mux, http.MethodPost, "/api/v1/reviews",
		`{"organization_id":"ORG","baseline_dataset_id":"B","current_dataset_id":"C","requested_by":"U1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "S1", out["id"])
	assert.Equal(t, "requires_approval", out["status"])
	assert.Equal(t, "requires_approval", out["effective_status"])
	verdict := out["verdict"].(map[string]any)
	assert.Equal(t, "blocked", verdict["status"])
	assert.EqualValues(t, 1, verdict["blockers_count"])
	js := out["judgements"].([]any)
	require.Len(t, js, 1)
	assert.Equal(t, "block", js[0].(map[string]any)["severity"])
	assert.Equal(t, "U1", reviews.run.RequestedBy)
}

func TestHTTP_GetReview(t *testing.T) {
	mux := newServer(&fakeReviews{}, &fakeApprovals{})

	rec, out := do(t, mux, http.MethodGet, "/api/v1/reviews/get?id=S1&organization_id=ORG", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "requires_approval", out["status"])
	assert.Equal(t, "rejected", out["effective_status"])
	assert.NotNil(t, out["decision"])

	rec, out = do(t, mux, http.MethodGet, "/api/v1/reviews/get?id=S9&organization_id=ORG", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", out["code"])

	rec, _ = do(t, mux, http.MethodGet, "/api/v1/reviews/get?id=S1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_ListReviews(t *testing.T) {
	mux := newServer(&fakeReviews{}, &fakeApprovals{})
	rec, out := do(t, mux, http.MethodGet, "/api/v1/reviews?organization_id=ORG", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["total"])

	rec, _ = do(t, mux, http.MethodGet, "/api/v1/reviews", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, mux, http.MethodDelete, "/api/v1/reviews", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTP_Decide(t *testing.T) {
	approvals := &fakeApprovals{}
	mux := newServer(&fakeReviews{}, approvals)

	rec, out := do(t, mux, http.MethodPost, "/api/v1/reviews/decision",
		`{"review_session_id":"S1","organization_id":"ORG","approval_status":"rejected","approval_notes":"wrong period loaded","approved_by":"M1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", out["status"])
	assert.Equal(t, "wrong period loaded", approvals.decision.Notes)
	assert.Equal(t, "M1", approvals.decision.DecidedBy)
}

func TestHTTP_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", errors.InvalidInput("approval_notes", "too short"), http.StatusBadRequest},
		{"validation", errors.Validation("employee_id", "missing"), http.StatusBadRequest},
		{"not found", errors.NotFound("review_session", "S1"), http.StatusNotFound},
		{"conflict", errors.New(errors.ErrCodeConflict, "blockers remain"), http.StatusConflict},
		{"rule configuration", errors.RuleConfiguration("R1", "bad"), http.StatusUnprocessableEntity},
		{"export equivalence", errors.ExportEquivalence("diverged"), http.StatusUnprocessableEntity},
		{"unauthorized", errors.New(errors.ErrCodeUnauthorized, "no"), http.StatusUnauthorized},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newServer(&fakeReviews{}, &fakeApprovals{err: tt.err})
			rec, out := do(t, mux, http.MethodPost, "/api/v1/reviews/decision",
				`{"review_session_id":"S1","approval_status":"approved","approved_by":"M1"}`)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, string(errors.CodeOf(tt.err)), out["code"])
			assert.Equal(t, "/api/v1/reviews/decision", out["path"])
			if tt.want == http.StatusInternalServerError {
				assert.Equal(t, "internal error", out["message"])
			}
		})
	}
}

func TestHTTP_InvalidBody(t *testing.T) {
	mux := newServer(&fakeReviews{}, &fakeApprovals{})

	rec, out := do(t, mux, http.MethodPost, "/api/v1/reviews", `{"organization_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", out["code"])

	rec, _ = do(t, mux, http.MethodPost, "/api/v1/reviews", `{"organization":"ORG"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_SaveNotes(t *testing.T) {
	approvals := &fakeApprovals{}
	mux := newServer(&fakeReviews{}, approvals)

	rec, out := do(t, mux, http.MethodPatch, "/api/v1/judgements/notes",
		`{"review_session_id":"S1","organization_id":"ORG","seq":1,"notes":"checked"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["updated"])
	assert.Equal(t, "checked", approvals.notes)

	rec, _ = do(t, mux, http.MethodPost, "/api/v1/judgements/notes", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTP_AuditTrailEmpty(t *testing.T) {
	mux := newServer(&fakeReviews{}, &fakeApprovals{})
	rec, out := do(t, mux, http.MethodGet, "/api/v1/reviews/audit?id=S1&organization_id=ORG", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, out["entries"])
}

func TestHTTP_ExportWorkflow(t *testing.T) {
	mux := newServer(&fakeReviews{}, &fakeApprovals{})
	rec, _ := do(t, mux, http.MethodGet, "/api/v1/workflow/export?name=nightly", "")
	require.Equal(t, http.StatusOK, rec.Code)

	g, err := workflow.ParseGraph(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "nightly", g.Name)
	_, ok := g.Node(workflow.RuleNodeID("SWING"))
	assert.True(t, ok)
}

func TestHTTP_IntegrationStatusAndHealth(t *testing.T) {
	mux := newServer(&fakeReviews{}, &fakeApprovals{})

	rec, out := do(t, mux, http.MethodGet, "/api/v1/integrations/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"diff_webhook_configured": true, "judgement_webhook_configured": false}, out)

	rec, out = do(t, mux, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", out["status"])
}

func TestHTTP_HealthChecksDatabase(t *testing.T) {
	rec, out := do(t, newServerWithDB(&fakeReviews{}, &fakeApprovals{}, fakeDB{}), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "ok", out["database"])

	down := fakeDB{err: errors.New(errors.ErrCodeInternal, "connection refused")}
	rec, out = do(t, newServerWithDB(&fakeReviews{}, &fakeApprovals{}, down), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", out["status"])
	assert.Equal(t, "unreachable", out["database"])
}

func multipartCSV(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doMultipart(t *testing.T, mux http.Handler, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/csv", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestHTTP_ImportCSV(t *testing.T) {
	reviews := &fakeReviews{}
	mux := newServer(reviews, &fakeApprovals{})

	csvBody := "EMP #,Gross Wages,Deductions,Take Home Pay,Shoe Size\nE1,5000,1200,3800,9\nE2,4000,900,3100,10\n"
	body, ct := multipartCSV(t, map[string]string{
		"organization_id": "ORG", "dataset_type": "current", "pay_period": "2026-10", "created_by": "U1",
	}, "october.csv", csvBody)

	rec, out := doMultipart(t, mux, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "DS2", out["id"])
	assert.EqualValues(t, 2, out["record_count"])
	assert.Equal(t, []any{"Shoe Size"}, out["unmapped"])

	mappings := out["mappings"].([]any)
	require.Len(t, mappings, 5)
	first := mappings[0].(map[string]any)
	assert.Equal(t, "EMP #", first["column"])
	assert.Equal(t, "employee_id", first["field"])

	require.NotNil(t, reviews.imported)
	assert.Equal(t, "october.csv", reviews.imported.FileName)
	assert.Equal(t, "current", reviews.imported.DatasetType)
	assert.Equal(t, "U1", reviews.imported.CreatedBy)
	assert.Equal(t, csvBody, reviews.csvBody)
}

func TestHTTP_ImportCSVErrors(t *testing.T) {
	mux := newServer(&fakeReviews{}, &fakeApprovals{})
	fields := map[string]string{"organization_id": "ORG", "dataset_type": "current", "pay_period": "2026-10"}

	body, ct := multipartCSV(t, fields, "", "")
	rec, out := doMultipart(t, mux, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file", out["field"])

	body, ct = multipartCSV(t, fields, "bad.csv", "Shoe Size,Colour\n9,blue\n")
	rec, out = doMultipart(t, mux, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", out["code"])
	assert.Contains(t, out["message"], "missing required columns")

	rec, _ = do(t, mux, http.MethodGet, "/api/v1/datasets/csv", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTP_Template(t *testing.T) {
	mux := newServer(&fakeReviews{}, &fakeApprovals{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/template?dataset_type=baseline", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="baseline_template.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, strings.Join(payroll.TemplateHeaders(), ",")+"\n", rec.Body.String())

	rec, _ = do(t, mux, http.MethodGet, "/api/v1/datasets/template?dataset_type=weekly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_Rules(t *testing.T) {
	reviews := &fakeReviews{rules: rules.MustNewSet([]rules.Rule{
		{ID: "SWING", Severity: rules.SeverityWarn, Kind: rules.KindThresholdAbs, Min: 100},
	})}
	mux := newServer(reviews, &fakeApprovals{})

	rec, out := do(t, mux, http.MethodGet, "/api/v1/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["total"])

	registry := `version: 1
rules:
  - id: NET_DROP
    severity: block
    kind: threshold_pct
    fields: [net_pay]
    direction: decrease
    min: 10
  - id: SWING
    severity: warn
    kind: threshold_abs
    min: 250
`
	rec, out = do(t, mux, http.MethodPut, "/api/v1/rules", registry)
	require.Equal(t, http.StatusOK, rec.Code, out)
	assert.EqualValues(t, 2, out["total"])
	require.NotNil(t, reviews.rules)
	_, ok := reviews.rules.Lookup("NET_DROP")
	assert.True(t, ok)

	before := reviews.rules
	rec, out = do(t, mux, http.MethodPut, "/api/v1/rules", "version: 1\nrules:\n  - id: X\n    thresold: 5\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "RULE_CONFIGURATION_ERROR", out["code"])
	assert.Same(t, before, reviews.rules)

	rec, _ = do(t, mux, http.MethodDelete, "/api/v1/rules", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ── gRPC ──────────────────────────────────────────────────────────────────────

func dialBufconn(t *testing.T, reviews *fakeReviews) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogging(zerolog.Nop())))
	RegisterReviewServiceServer(srv, NewGRPCHandler(reviews, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+ReviewServiceName+"/"+method, req, out)
	return out, err
}

func TestGRPC_RunReviewUsesMetadataUser(t *testing.T) {
	reviews := &fakeReviews{}
	conn := dialBufconn(t, reviews)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-user-id", "U7")

	out, err := invoke(t, conn, ctx, "RunReview", map[string]any{
		"organization_id": "ORG", "baseline_dataset_id": "B", "current_dataset_id": "C",
	})
	require.NoError(t, err)
	assert.Equal(t, "S1", out.AsMap()["id"])
	assert.Equal(t, "U7", reviews.run.RequestedBy)
}

func TestGRPC_GetReviewAndErrors(t *testing.T) {
	conn := dialBufconn(t, &fakeReviews{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := invoke(t, conn, ctx, "GetReview", map[string]any{"id": "S1", "organization_id": "ORG"})
	require.NoError(t, err)
	assert.Equal(t, "rejected", out.AsMap()["effective_status"])

	_, err = invoke(t, conn, ctx, "GetReview", map[string]any{"id": "S9", "organization_id": "ORG"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = invoke(t, conn, ctx, "GetReview", map[string]any{"id": "S1"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_ExportWorkflow(t *testing.T) {
	conn := dialBufconn(t, &fakeReviews{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := invoke(t, conn, ctx, "ExportWorkflow", map[string]any{})
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, workflow.DefaultName, m["name"])
	assert.Len(t, m["nodes"], 1+workflow.ScaffoldNodes)
}

func TestMapErrorToGRPC(t *testing.T) {
	assert.NoError(t, mapErrorToGRPC(nil))
	assert.Equal(t, codes.FailedPrecondition, status.Code(mapErrorToGRPC(errors.New(errors.ErrCodeConflict, "x"))))
	assert.Equal(t, codes.FailedPrecondition, status.Code(mapErrorToGRPC(errors.ExportEquivalence("x"))))
	assert.Equal(t, codes.InvalidArgument, status.Code(mapErrorToGRPC(errors.Validation("f", "x"))))
	assert.Equal(t, codes.Internal, status.Code(mapErrorToGRPC(assert.AnError)))
}
