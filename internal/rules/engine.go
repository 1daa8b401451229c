package rules

import (
	"math"
	"regexp"
	"slices"

	"github.com/pesio-ai/be-payroll-review/internal/payroll"
)

// Context carries per-session inputs a rule may depend on.
type Context struct {
	OrganizationID string
	Tier           Tier
}

// Evaluate applies set to d in ascending priority order. The first firing
// short-circuit rule decides the judgement and stops evaluation. Otherwise
// the highest-severity firing rule wins, ties going to the earlier rule.
// Evaluate never fails: sets are validated when built.
func Evaluate(d payroll.Delta, set *Set, ctx Context) Judgement {
	j := Judgement{
		Seq:        d.Seq,
		EmployeeID: d.EmployeeID,
		Field:      d.Field,
		ChangeType: d.ChangeType,
		Severity:   SeverityInfo,
		Reason:     NoRuleReason,
		Fired:      []string{},
	}
	if set == nil {
		return j
	}

	winner := -1
	for i, r := range set.rules {
		if !matches(r, set.patterns[i], d, ctx) {
			continue
		}
		j.Fired = append(j.Fired, r.ID)
		if r.ShortCircuit {
			winner = i
			break
		}
		if winner < 0 || r.Severity > set.rules[winner].Severity {
			winner = i
		}
	}
	if winner < 0 {
		return j
	}

	r := set.rules[winner]
	j.RuleID = r.ID
	j.RuleName = r.Name
	j.Category = r.Category
	j.Severity = r.Severity
	j.Material = r.Severity >= SeverityWarn
	j.Reason = r.Reason
	j.UserAction = r.UserAction
	return j
}

func matches(r Rule, re *regexp.Regexp, d payroll.Delta, ctx Context) bool {
	if ctx.Tier.Rank() < r.MinTier.Rank() {
		return false
	}
	if len(r.Fields) > 0 && !slices.Contains(r.Fields, d.Field) {
		return false
	}
	if len(r.ChangeTypes) > 0 && !slices.Contains(r.ChangeTypes, string(d.ChangeType)) {
		return false
	}

	switch r.Kind {
	case KindThresholdAbs:
		return d.AbsChange.Defined && inRange(r, d.AbsChange.Value)
	case KindThresholdPct:
		// An undefined percentage never satisfies a percentage threshold.
		return d.PctChange.Defined && inRange(r, d.PctChange.Value)
	case KindFieldMatch:
		return true
	case KindPatternMatch:
		return re != nil && re.MatchString(patternSubject(r.PatternTarget, d))
	}
	return false
}

// inRange applies the exclusive Min / inclusive Max bounds to x according
// to the rule's direction.
func inRange(r Rule, x float64) bool {
	switch r.Direction {
	case DirectionIncrease:
		return x > r.Min && (r.Max == nil || x <= *r.Max)
	case DirectionDecrease:
		return x < -r.Min && (r.Max == nil || x >= -*r.Max)
	default:
		m := math.Abs(x)
		return m > r.Min && (r.Max == nil || m <= *r.Max)
	}
}

func patternSubject(t PatternTarget, d payroll.Delta) string {
	switch t {
	case TargetCurrent:
		return d.Current.String()
	case TargetPrior:
		return d.Prior.String()
	default:
		return d.Field
	}
}
