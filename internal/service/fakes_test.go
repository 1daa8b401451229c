package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/repository"
	"github.com/pesio-ai/be-payroll-review/internal/review"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

type memDatasets struct {
	mu      sync.Mutex
	next    int
	headers map[string]*repository.PayrollDataset
	records map[string][]payroll.Record
}

func newMemDatasets() *memDatasets {
	return &memDatasets{headers: map[string]*repository.PayrollDataset{}, records: map[string][]payroll.Record{}}
}

func (m *memDatasets) Create(_ context.Context, ds *repository.PayrollDataset, records []payroll.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	ds.ID = fmt.Sprintf("DS%d", m.next)
	ds.RecordCount = len(records)
	ds.CreatedAt = time.Now()
	cp := *ds
	m.headers[ds.ID] = &cp
	m.records[ds.ID] = append([]payroll.Record(nil), records...)
	return nil
}

func (m *memDatasets) GetByID(_ context.Context, id, org string) (*repository.PayrollDataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.headers[id]
	if !ok || ds.OrganizationID != org {
		return nil, errors.NotFound("payroll_dataset", id)
	}
	cp := *ds
	return &cp, nil
}

func (m *memDatasets) ListRecords(_ context.Context, id string) ([]payroll.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payroll.Record(nil), m.records[id]...), nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*repository.StoredSession
	notes    map[string]map[uint64]string
	err      error
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*repository.StoredSession{}, notes: map[string]map[uint64]string{}}
}

func (m *memSessions) Create(_ context.Context, s *repository.StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	s.CreatedAt = time.Now()
	m.sessions[s.ID] = s
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id, org string) (*repository.StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.OrganizationID != org {
		return nil, errors.NotFound("review_session", id)
	}
	return s, nil
}

func (m *memSessions) List(_ context.Context, org string, _ int) ([]*repository.StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.StoredSession
	for _, s := range m.sessions {
		if s.OrganizationID == org {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSessions) UpdateReviewerNotes(_ context.Context, id string, seq uint64, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notes[id] == nil {
		m.notes[id] = map[uint64]string{}
	}
	m.notes[id][seq] = notes
	return nil
}

type memDecisions struct {
	mu        sync.Mutex
	decisions []*repository.ApprovalDecision
	sessions  *memSessions
}

func (m *memDecisions) Create(_ context.Context, d *repository.ApprovalDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = fmt.Sprintf("D%d", len(m.decisions)+1)
	d.DecidedAt = time.Now()
	m.decisions = append(m.decisions, d)
	if m.sessions != nil {
		if s, ok := m.sessions.sessions[d.ReviewSessionID]; ok {
			s.Status = d.Status
		}
	}
	return nil
}

func (m *memDecisions) GetLatest(_ context.Context, id, org string) (*repository.ApprovalDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.decisions) - 1; i >= 0; i-- {
		if d := m.decisions[i]; d.ReviewSessionID == id && d.OrganizationID == org {
			return d, nil
		}
	}
	return nil, errors.NotFound("review_decision", id)
}

type memAudit struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
	err     error
}

func (m *memAudit) Append(_ context.Context, e *repository.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) ListBySession(_ context.Context, id, org string) ([]*repository.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.AuditEntry
	for _, e := range m.entries {
		if e.ReviewSessionID == id && e.OrganizationID == org {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}

type staticTiers map[string]rules.Tier

func (t staticTiers) GetTier(_ context.Context, org string) (rules.Tier, error) {
	if tier, ok := t[org]; ok {
		return tier, nil
	}
	return rules.TierStarter, nil
}

type recordingNotifier struct {
	sessions  []string
	decisions []string
}

func (n *recordingNotifier) PublishReviewRequiresApproval(_ context.Context, s *review.Session, _ string) {
	n.sessions = append(n.sessions, s.ID)
}

func (n *recordingNotifier) PublishReviewApproved(_ context.Context, s *review.Session, by string) {
	n.decisions = append(n.decisions, "approved:"+s.ID+":"+by)
}

func (n *recordingNotifier) PublishReviewRejected(_ context.Context, s *review.Session, by, notes string) {
	n.decisions = append(n.decisions, "rejected:"+s.ID+":"+by+":"+notes)
}

type recordingWebhooks struct {
	diffs, judgements int
	err               error
}

func (w *recordingWebhooks) PostDiff(context.Context, *review.Session) error {
	w.diffs++
	return w.err
}

func (w *recordingWebhooks) PostJudgement(context.Context, *review.Session) error {
	w.judgements++
	return w.err
}
