package payroll

import (
	"math"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
)

// ChangeType describes how a field moved between the two records.
type ChangeType string

const (
	ChangeIncrease        ChangeType = "increase"
	ChangeDecrease        ChangeType = "decrease"
	ChangeChanged         ChangeType = "changed" // non-numeric or mixed-kind change
	ChangeAdded           ChangeType = "added"
	ChangeRemoved         ChangeType = "removed"
	ChangeNewEmployee     ChangeType = "new_employee"
	ChangeRemovedEmployee ChangeType = "removed_employee"
)

// ChangeTypes lists every change type in a stable order.
func ChangeTypes() []ChangeType {
	return []ChangeType{
		ChangeIncrease, ChangeDecrease, ChangeChanged,
		ChangeAdded, ChangeRemoved, ChangeNewEmployee, ChangeRemovedEmployee,
	}
}

// Delta is the comparison of one field across two records for the same
// employee. Seq orders deltas within a review session.
type Delta struct {
	Seq        uint64     `json:"seq"`
	EmployeeID string     `json:"employee_id"`
	PayPeriod  string     `json:"pay_period"`
	Field      string     `json:"field"`
	Prior      Value      `json:"prior"`
	Current    Value      `json:"current"`
	ChangeType ChangeType `json:"change_type"`
	AbsChange  Amount     `json:"abs_change"`
	PctChange  Amount     `json:"pct_change"`
}

// Sequence hands out strictly increasing delta indices, starting at 1.
// It is not safe for concurrent use; one session owns one sequence.
type Sequence struct {
	last uint64
}

// Next returns the next index.
func (s *Sequence) Next() uint64 {
	s.last++
	return s.last
}

// ComputeDeltas compares prior and current for one employee and returns one
// delta per differing field, in canonical field order. Indices start at 1.
func ComputeDeltas(prior, current Record) ([]Delta, error) {
	return ComputeDeltasWith(&Sequence{}, prior, current)
}

// ComputeDeltasWith is ComputeDeltas drawing indices from a caller-owned
// sequence, so indices stay unique across a whole batch.
func ComputeDeltasWith(seq *Sequence, prior, current Record) ([]Delta, error) {
	if err := prior.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid prior record")
	}
	if err := current.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid current record")
	}
	if prior.EmployeeID != current.EmployeeID {
		return nil, errors.Validation("employee_id",
			"cannot compare records of different employees: "+prior.EmployeeID+" and "+current.EmployeeID)
	}
	if prior.Absent && current.Absent {
		return nil, errors.Validation("employee_id", "both records are absent for "+prior.EmployeeID)
	}

	names := fieldUnion(prior, current)
	SortFields(names)

	period := current.PayPeriod
	if current.Absent {
		period = prior.PayPeriod
	}

	deltas := make([]Delta, 0, len(names))
	for _, name := range names {
		p := prior.Field(name)
		c := current.Field(name)
		if p.Equal(c) {
			continue
		}
		d := Delta{
			EmployeeID: current.EmployeeID,
			PayPeriod:  period,
			Field:      name,
			Prior:      p,
			Current:    c,
			ChangeType: classify(prior, current, p, c),
			AbsChange:  Undefined,
			PctChange:  Undefined,
		}
		if diff := c.Num - p.Num; p.IsNumber() && c.IsNumber() && !math.IsInf(diff, 0) {
			d.AbsChange = DefinedAmount(diff)
			if p.Num != 0 {
				pct := diff / math.Abs(p.Num) * 100
				if !math.IsInf(pct, 0) && !math.IsNaN(pct) {
					d.PctChange = DefinedAmount(pct)
				}
			}
		}
		d.Seq = seq.Next()
		deltas = append(deltas, d)
	}
	return deltas, nil
}

func fieldUnion(prior, current Record) []string {
	seen := make(map[string]struct{}, len(prior.Fields)+len(current.Fields))
	var names []string
	for _, r := range []Record{prior, current} {
		if r.Absent {
			continue
		}
		for name := range r.Fields {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

func classify(prior, current Record, p, c Value) ChangeType {
	switch {
	case prior.Absent:
		return ChangeNewEmployee
	case current.Absent:
		return ChangeRemovedEmployee
	case p.IsAbsent():
		return ChangeAdded
	case c.IsAbsent():
		return ChangeRemoved
	case p.IsNumber() && c.IsNumber():
		if c.Num > p.Num {
			return ChangeIncrease
		}
		return ChangeDecrease
	default:
		return ChangeChanged
	}
}
