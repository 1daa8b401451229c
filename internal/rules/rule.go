// Package rules holds the materiality rules and the engine that applies
// them to payroll deltas. Rules are plain configuration records over a
// closed set of predicate kinds, so the same definition can be evaluated
// in-process and lowered into an exported workflow graph.
package rules

import (
	"fmt"
	"slices"
	"strings"
)

// Severity orders judgements: info < warn < block.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityBlock
)

var severityNames = []string{"info", "warn", "block"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityBlock {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// Valid reports whether s is one of the known levels.
func (s Severity) Valid() bool { return s >= SeverityInfo && s <= SeverityBlock }

// ParseSeverity accepts the canonical names. "review" and "blocker" are
// accepted as aliases used by older rule catalogues.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "info":
		return SeverityInfo, nil
	case "warn", "warning", "review":
		return SeverityWarn, nil
	case "block", "blocker":
		return SeverityBlock, nil
	}
	return 0, fmt.Errorf("unknown severity %q", v)
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// PredicateKind selects how a rule tests a delta.
type PredicateKind string

const (
	KindThresholdAbs PredicateKind = "threshold_abs"
	KindThresholdPct PredicateKind = "threshold_pct"
	KindFieldMatch   PredicateKind = "field_match"
	KindPatternMatch PredicateKind = "pattern_match"
)

func (k PredicateKind) valid() bool {
	switch k {
	case KindThresholdAbs, KindThresholdPct, KindFieldMatch, KindPatternMatch:
		return true
	}
	return false
}

// Direction restricts threshold rules to one sign of change.
type Direction string

const (
	DirectionAny      Direction = "any"
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// PatternTarget names the delta attribute a pattern rule matches against.
type PatternTarget string

const (
	TargetField   PatternTarget = "field"
	TargetCurrent PatternTarget = "current"
	TargetPrior   PatternTarget = "prior"
)

// Tier is the subscription level of the organization under review.
type Tier string

const (
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Rank orders tiers. Unknown and empty tiers rank as starter.
func (t Tier) Rank() int {
	switch t {
	case TierPro:
		return 1
	case TierEnterprise:
		return 2
	default:
		return 0
	}
}

func (t Tier) valid() bool {
	return t == TierStarter || t == TierPro || t == TierEnterprise
}

// Rule is one materiality rule. Rules carry no code: the engine and the
// workflow exporter both interpret them by Kind.
type Rule struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Category string   `json:"category,omitempty" yaml:"category"`
	Priority int      `json:"priority" yaml:"priority"`
	Severity Severity `json:"severity" yaml:"severity"`

	Kind PredicateKind `json:"kind" yaml:"kind"`
	// Fields and ChangeTypes are allow-lists; empty means any.
	Fields      []string `json:"fields,omitempty" yaml:"fields"`
	ChangeTypes []string `json:"change_types,omitempty" yaml:"change_types"`

	// Min is an exclusive lower bound on the magnitude of the change.
	// Max, when set, is an inclusive upper bound.
	Min       float64   `json:"min,omitempty" yaml:"min"`
	Max       *float64  `json:"max,omitempty" yaml:"max"`
	Direction Direction `json:"direction,omitempty" yaml:"direction"`

	Pattern       string        `json:"pattern,omitempty" yaml:"pattern"`
	PatternTarget PatternTarget `json:"pattern_target,omitempty" yaml:"pattern_target"`

	ShortCircuit bool `json:"short_circuit" yaml:"short_circuit"`
	MinTier      Tier `json:"min_tier,omitempty" yaml:"min_tier"`

	Reason     string `json:"reason,omitempty" yaml:"reason"`
	UserAction string `json:"user_action,omitempty" yaml:"user_action"`
}

// clone returns a deep copy so callers can never reach a registered rule's slices.
func (r Rule) clone() Rule {
	c := r
	c.Fields = slices.Clone(r.Fields)
	c.ChangeTypes = slices.Clone(r.ChangeTypes)
	if r.Max != nil {
		m := *r.Max
		c.Max = &m
	}
	return c
}

// normalized fills defaults for optional attributes.
func (r Rule) normalized() Rule {
	c := r.clone()
	c.ID = strings.TrimSpace(c.ID)
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Direction == "" {
		c.Direction = DirectionAny
	}
	if c.Kind == KindPatternMatch && c.PatternTarget == "" {
		c.PatternTarget = TargetField
	}
	if c.MinTier == "" {
		c.MinTier = TierStarter
	}
	if c.Reason == "" {
		c.Reason = c.Name
	}
	if len(c.Fields) == 0 {
		c.Fields = nil
	}
	if len(c.ChangeTypes) == 0 {
		c.ChangeTypes = nil
	}
	return c
}

// Float is a helper for setting Rule.Max in literals.
func Float(v float64) *float64 { return &v }
