package review

import (
	"encoding/json"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// Status is the overall state of a review session.
type Status string

const (
	StatusPending          Status = "pending"
	StatusRequiresApproval Status = "requires_approval"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
)

// ParseStatus validates a stored or requested status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusRequiresApproval, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", errors.InvalidInput("status", "unknown review status "+s)
}

// DeriveStatus is requires_approval iff any judgement is warn or above.
func DeriveStatus(js []rules.Judgement) Status {
	for _, j := range js {
		if j.Severity >= rules.SeverityWarn {
			return StatusRequiresApproval
		}
	}
	return StatusPending
}

// EmployeeError records an employee whose records could not be compared.
// The rest of the batch is still reviewed.
type EmployeeError struct {
	EmployeeID string `json:"employee_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e EmployeeError) Error() string {
	return "employee " + e.EmployeeID + ": " + e.Message
}

func (e EmployeeError) Unwrap() error { return e.Err }

// Session is the outcome of one batch comparison. Deltas and Judgements
// are parallel: Judgements[i] judges Deltas[i], both in sequence order.
type Session struct {
	ID             string
	OrganizationID string
	Context        rules.Context
	Deltas         []payroll.Delta
	Judgements     []rules.Judgement
	Failures       []EmployeeError
}

// Status is derived from the judgement severities on every call.
func (s *Session) Status() Status { return DeriveStatus(s.Judgements) }

// Material returns the judgements that need human sign-off, in order.
func (s *Session) Material() []rules.Judgement {
	var out []rules.Judgement
	for _, j := range s.Judgements {
		if j.Material {
			out = append(out, j)
		}
	}
	return out
}

// Judgement finds the judgement for a delta sequence index.
func (s *Session) Judgement(seq uint64) (*rules.Judgement, bool) {
	for i := range s.Judgements {
		if s.Judgements[i].Seq == seq {
			return &s.Judgements[i], true
		}
	}
	return nil, false
}

// SetReviewerNotes updates the notes on one judgement.
func (s *Session) SetReviewerNotes(seq uint64, notes string) error {
	j, ok := s.Judgement(seq)
	if !ok {
		return errors.Newf(errors.ErrCodeNotFound, "no judgement with seq %d in session %s", seq, s.ID)
	}
	j.SetReviewerNotes(notes)
	return nil
}

// VerdictStatus is the banner-level summary of a session.
type VerdictStatus string

const (
	VerdictBlocked        VerdictStatus = "blocked"
	VerdictReviewRequired VerdictStatus = "review_required"
	VerdictReadyToApprove VerdictStatus = "ready_to_approve"
)

// Verdict counts triggered judgements by severity.
type Verdict struct {
	Status       VerdictStatus `json:"status"`
	Blockers     int           `json:"blockers_count"`
	Reviews      int           `json:"reviews_count"`
	Info         int           `json:"info_count"`
	TotalFlagged int           `json:"total_flagged"`
}

// Verdict summarizes the session for approvers.
func (s *Session) Verdict() Verdict {
	return VerdictOf(s.Judgements)
}

// VerdictOf summarizes a judgement list.
func VerdictOf(js []rules.Judgement) Verdict {
	var v Verdict
	for _, j := range js {
		switch {
		case j.Severity == rules.SeverityBlock:
			v.Blockers++
		case j.Severity == rules.SeverityWarn:
			v.Reviews++
		case j.Triggered():
			v.Info++
		}
	}
	v.TotalFlagged = v.Blockers + v.Reviews
	switch {
	case v.Blockers > 0:
		v.Status = VerdictBlocked
	case v.Reviews > 0:
		v.Status = VerdictReviewRequired
	default:
		v.Status = VerdictReadyToApprove
	}
	return v
}

func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string            `json:"id"`
		OrganizationID string            `json:"organization_id"`
		Status         Status            `json:"status"`
		Verdict        Verdict           `json:"verdict"`
		Deltas         []payroll.Delta   `json:"deltas"`
		Judgements     []rules.Judgement `json:"judgements"`
		Failures       []EmployeeError   `json:"failures,omitempty"`
	}{s.ID, s.OrganizationID, s.Status(), s.Verdict(), s.Deltas, s.Judgements, s.Failures})
}
