package rules

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
)

var ruleIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Set is a validated, immutable, priority-ordered rule registry. It is safe
// for concurrent use by any number of review sessions.
type Set struct {
	rules    []Rule
	patterns []*regexp.Regexp // parallel to rules; nil unless pattern_match
}

// NewSet validates defs and orders them by ascending priority. Rules with
// equal priority keep their definition order. Any invalid rule rejects the
// whole set.
func NewSet(defs []Rule) (*Set, error) {
	seen := make(map[string]struct{}, len(defs))
	normalized := make([]Rule, 0, len(defs))
	for i, def := range defs {
		r := def.normalized()
		if err := validateRule(r); err != nil {
			if r.ID == "" {
				return nil, errors.Wrap(err, errors.ErrCodeRuleConfiguration, fmt.Sprintf("rule at index %d", i))
			}
			return nil, err
		}
		if _, dup := seen[r.ID]; dup {
			return nil, errors.RuleConfiguration(r.ID, "duplicate rule id")
		}
		seen[r.ID] = struct{}{}
		normalized = append(normalized, r)
	}

	slices.SortStableFunc(normalized, func(a, b Rule) int { return a.Priority - b.Priority })

	s := &Set{rules: normalized, patterns: make([]*regexp.Regexp, len(normalized))}
	for i, r := range normalized {
		if r.Kind == KindPatternMatch {
			s.patterns[i] = regexp.MustCompile(r.Pattern) // validated above
		}
	}
	return s, nil
}

// MustNewSet is NewSet for rule sets known to be valid, e.g. in tests.
func MustNewSet(defs []Rule) *Set {
	s, err := NewSet(defs)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.rules) }

// Rules returns a copy of the rules in evaluation order.
func (s *Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.clone()
	}
	return out
}

// Lookup returns a copy of the rule with the given id.
func (s *Set) Lookup(id string) (Rule, bool) {
	for _, r := range s.rules {
		if r.ID == id {
			return r.clone(), true
		}
	}
	return Rule{}, false
}

func validateRule(r Rule) error {
	if r.ID == "" {
		return errors.RuleConfiguration("", "rule id is required")
	}
	if !ruleIDPattern.MatchString(r.ID) {
		return errors.RuleConfiguration(r.ID, "rule id may only contain letters, digits, '_', '.' and '-'")
	}
	if !r.Severity.Valid() {
		return errors.RuleConfiguration(r.ID, fmt.Sprintf("invalid severity %d", int(r.Severity)))
	}
	if !r.MinTier.valid() {
		return errors.RuleConfiguration(r.ID, fmt.Sprintf("unknown min_tier %q", r.MinTier))
	}
	for _, f := range r.Fields {
		if strings.TrimSpace(f) == "" {
			return errors.RuleConfiguration(r.ID, "empty field name in fields")
		}
	}
	for _, ct := range r.ChangeTypes {
		if !slices.Contains(payroll.ChangeTypes(), payroll.ChangeType(ct)) {
			return errors.RuleConfiguration(r.ID, fmt.Sprintf("unknown change type %q", ct))
		}
	}

	switch r.Kind {
	case KindThresholdAbs, KindThresholdPct:
		return validateThreshold(r)
	case KindFieldMatch:
		if len(r.Fields) == 0 && len(r.ChangeTypes) == 0 {
			return errors.RuleConfiguration(r.ID, "field_match needs fields or change_types")
		}
		if r.Pattern != "" || r.PatternTarget != "" {
			return errors.RuleConfiguration(r.ID, "field_match rules take no pattern")
		}
	case KindPatternMatch:
		if r.Pattern == "" {
			return errors.RuleConfiguration(r.ID, "pattern_match needs a pattern")
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return errors.Wrap(err, errors.ErrCodeRuleConfiguration, "rule "+r.ID+": invalid pattern")
		}
		switch r.PatternTarget {
		case TargetField, TargetCurrent, TargetPrior:
		default:
			return errors.RuleConfiguration(r.ID, fmt.Sprintf("unknown pattern_target %q", r.PatternTarget))
		}
	default:
		return errors.RuleConfiguration(r.ID, fmt.Sprintf("unknown predicate kind %q", r.Kind))
	}

	if r.Min != 0 || r.Max != nil || r.Direction != DirectionAny {
		return errors.RuleConfiguration(r.ID, fmt.Sprintf("%s rules take no thresholds or direction", r.Kind))
	}
	return nil
}

func validateThreshold(r Rule) error {
	if math.IsNaN(r.Min) || math.IsInf(r.Min, 0) || r.Min < 0 {
		return errors.RuleConfiguration(r.ID, fmt.Sprintf("min must be a finite non-negative number, got %v", r.Min))
	}
	if r.Max != nil {
		m := *r.Max
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return errors.RuleConfiguration(r.ID, fmt.Sprintf("max must be finite, got %v", m))
		}
		if m <= r.Min {
			return errors.RuleConfiguration(r.ID, fmt.Sprintf("max (%v) must be greater than min (%v)", m, r.Min))
		}
	}
	switch r.Direction {
	case DirectionAny, DirectionIncrease, DirectionDecrease:
	default:
		return errors.RuleConfiguration(r.ID, fmt.Sprintf("unknown direction %q", r.Direction))
	}
	if r.Pattern != "" || r.PatternTarget != "" {
		return errors.RuleConfiguration(r.ID, "threshold rules take no pattern")
	}
	return nil
}
