package workflow

import (
	"encoding/json"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// loweredRule is a rule with every Go-specific type replaced by a JSON
// scalar. Severity becomes its name and the optional Max becomes an absent
// key instead of a nil pointer.
type loweredRule struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Category      string   `json:"category,omitempty"`
	Priority      int      `json:"priority"`
	Severity      string   `json:"severity"`
	Kind          string   `json:"kind"`
	Fields        []string `json:"fields,omitempty"`
	ChangeTypes   []string `json:"change_types,omitempty"`
	Min           float64  `json:"min"`
	Max           *float64 `json:"max,omitempty"`
	Direction     string   `json:"direction,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	PatternTarget string   `json:"pattern_target,omitempty"`
	ShortCircuit  bool     `json:"short_circuit"`
	MinTier       string   `json:"min_tier"`
	Reason        string   `json:"reason,omitempty"`
	UserAction    string   `json:"user_action,omitempty"`
}

// LowerRule converts a rule into plain node parameters. The result contains
// only strings, numbers, booleans and arrays, so any engine can read it.
func LowerRule(r rules.Rule) (map[string]any, error) {
	lr := loweredRule{
		ID:            r.ID,
		Name:          r.Name,
		Category:      r.Category,
		Priority:      r.Priority,
		Severity:      r.Severity.String(),
		Kind:          string(r.Kind),
		Fields:        r.Fields,
		ChangeTypes:   r.ChangeTypes,
		Min:           r.Min,
		Max:           r.Max,
		Direction:     string(r.Direction),
		Pattern:       r.Pattern,
		PatternTarget: string(r.PatternTarget),
		ShortCircuit:  r.ShortCircuit,
		MinTier:       string(r.MinTier),
		Reason:        r.Reason,
		UserAction:    r.UserAction,
	}
	data, err := json.Marshal(lr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "lower rule "+r.ID)
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "lower rule "+r.ID)
	}
	return params, nil
}

// RaiseRule rebuilds a rule from node parameters. Keys that are not rule
// attributes, such as the emitted condition, are ignored.
func RaiseRule(params map[string]any) (rules.Rule, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return rules.Rule{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "encode node params")
	}
	var lr loweredRule
	if err := json.Unmarshal(data, &lr); err != nil {
		return rules.Rule{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "decode node params")
	}
	sev, err := rules.ParseSeverity(lr.Severity)
	if err != nil {
		return rules.Rule{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "rule "+lr.ID)
	}
	return rules.Rule{
		ID:            lr.ID,
		Name:          lr.Name,
		Category:      lr.Category,
		Priority:      lr.Priority,
		Severity:      sev,
		Kind:          rules.PredicateKind(lr.Kind),
		Fields:        lr.Fields,
		ChangeTypes:   lr.ChangeTypes,
		Min:           lr.Min,
		Max:           lr.Max,
		Direction:     rules.Direction(lr.Direction),
		Pattern:       lr.Pattern,
		PatternTarget: rules.PatternTarget(lr.PatternTarget),
		ShortCircuit:  lr.ShortCircuit,
		MinTier:       rules.Tier(lr.MinTier),
		Reason:        lr.Reason,
		UserAction:    lr.UserAction,
	}, nil
}
