// Package review runs a full payroll batch comparison: it pairs employees,
// computes their deltas and judges each one against a rule set.
package review

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// Options identifies the session being run.
type Options struct {
	SessionID      string
	OrganizationID string
	Context        rules.Context
}

// Run compares the prior and current batches. Employees present on only one
// side are compared against an absent record. Employees whose records are
// malformed are reported in Session.Failures and skipped; Run itself only
// fails when it has no rule set to evaluate with.
//
// Run is pure and deterministic: employees are processed in ascending id
// order regardless of batch order.
func Run(prior, current []payroll.Record, set *rules.Set, opts Options) (*Session, error) {
	if set == nil {
		return nil, errors.RuleConfiguration("", "review requires a rule set")
	}
	if opts.Context.OrganizationID == "" {
		opts.Context.OrganizationID = opts.OrganizationID
	}

	s := &Session{
		ID:             opts.SessionID,
		OrganizationID: opts.OrganizationID,
		Context:        opts.Context,
		Deltas:         []payroll.Delta{},
		Judgements:     []rules.Judgement{},
	}

	priorByID, priorFailures := index(prior, "prior")
	currentByID, currentFailures := index(current, "current")
	failed := make(map[string]struct{})
	for _, f := range append(priorFailures, currentFailures...) {
		s.Failures = append(s.Failures, f)
		failed[f.EmployeeID] = struct{}{}
	}

	var seq payroll.Sequence
	for _, id := range employeeIDs(priorByID, currentByID) {
		if _, ok := failed[id]; ok {
			continue
		}
		p, inPrior := priorByID[id]
		c, inCurrent := currentByID[id]
		switch {
		case !inPrior:
			p = payroll.AbsentRecord(id, c.PayPeriod)
		case !inCurrent:
			c = payroll.AbsentRecord(id, p.PayPeriod)
		}

		deltas, err := payroll.ComputeDeltasWith(&seq, p, c)
		if err != nil {
			s.Failures = append(s.Failures, employeeError(id, err))
			continue
		}
		for _, d := range deltas {
			s.Deltas = append(s.Deltas, d)
			s.Judgements = append(s.Judgements, rules.Evaluate(d, set, opts.Context))
		}
	}
	return s, nil
}

// index maps records by employee id. Blank and duplicate ids are failures:
// a duplicated employee cannot be paired unambiguously.
func index(batch []payroll.Record, side string) (map[string]payroll.Record, []EmployeeError) {
	byID := make(map[string]payroll.Record, len(batch))
	dups := make(map[string]bool)
	var failures []EmployeeError
	for i, r := range batch {
		id := strings.TrimSpace(r.EmployeeID)
		if id == "" {
			failures = append(failures, employeeError("", errors.Validation("employee_id",
				side+" batch record "+strconv.Itoa(i)+" has no employee id")))
			continue
		}
		if _, seen := byID[id]; seen {
			dups[id] = true
			continue
		}
		r.EmployeeID = id
		byID[id] = r
	}
	ids := make([]string, 0, len(dups))
	for id := range dups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		failures = append(failures, employeeError(id, errors.Validation("employee_id",
			"duplicate records in "+side+" batch")))
	}
	return byID, failures
}

func employeeIDs(a, b map[string]payroll.Record) []string {
	ids := make([]string, 0, len(a)+len(b))
	for id := range a {
		ids = append(ids, id)
	}
	for id := range b {
		if _, ok := a[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func employeeError(id string, err error) EmployeeError {
	return EmployeeError{EmployeeID: id, Code: string(errors.CodeOf(err)), Message: err.Error(), Err: err}
}
