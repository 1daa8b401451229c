package workflow

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// Condition renders the firing predicate of r as a CEL expression over the
// delta and ctx variables. It mirrors rules.Evaluate clause for clause.
func Condition(r rules.Rule) string {
	var parts []string
	if rank := r.MinTier.Rank(); rank > 0 {
		parts = append(parts, "ctx.tier_rank >= "+strconv.Itoa(rank))
	}
	if len(r.Fields) > 0 {
		parts = append(parts, "delta.field in "+stringList(r.Fields))
	}
	if len(r.ChangeTypes) > 0 {
		parts = append(parts, "delta.change_type in "+stringList(r.ChangeTypes))
	}

	switch r.Kind {
	case rules.KindThresholdAbs:
		parts = append(parts, "delta.abs_defined")
		parts = append(parts, rangeClauses(r, "delta.abs_change")...)
	case rules.KindThresholdPct:
		parts = append(parts, "delta.pct_defined")
		parts = append(parts, rangeClauses(r, "delta.pct_change")...)
	case rules.KindPatternMatch:
		target := "delta.field"
		switch r.PatternTarget {
		case rules.TargetCurrent:
			target = "delta.current"
		case rules.TargetPrior:
			target = "delta.prior"
		}
		parts = append(parts, target+".matches("+strconv.Quote(r.Pattern)+")")
	}

	if len(parts) == 0 {
		return GuardAlways
	}
	return strings.Join(parts, " && ")
}

// Negate wraps a condition for the fall-through edge of a branch.
func Negate(cond string) string { return "!(" + cond + ")" }

func rangeClauses(r rules.Rule, x string) []string {
	switch r.Direction {
	case rules.DirectionIncrease:
		out := []string{x + " > " + floatLit(r.Min)}
		if r.Max != nil {
			out = append(out, x+" <= "+floatLit(*r.Max))
		}
		return out
	case rules.DirectionDecrease:
		out := []string{x + " < " + floatLit(-r.Min)}
		if r.Max != nil {
			out = append(out, x+" >= "+floatLit(-*r.Max))
		}
		return out
	default:
		out := []string{"(" + x + " > " + floatLit(r.Min) + " || " + x + " < " + floatLit(-r.Min) + ")"}
		if r.Max != nil {
			out = append(out, "("+x+" <= "+floatLit(*r.Max)+" && "+x+" >= "+floatLit(-*r.Max)+")")
		}
		return out
	}
}

// floatLit formats v as a CEL double literal that parses back to exactly v.
// CEL reads "100" as an int, so integral values get a ".0" suffix.
func floatLit(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func stringList(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Activation builds the CEL variables for one delta.
func Activation(d payroll.Delta, ctx rules.Context) map[string]any {
	return map[string]any{
		"delta": map[string]any{
			"field":       d.Field,
			"change_type": string(d.ChangeType),
			"abs_defined": d.AbsChange.Defined,
			"abs_change":  d.AbsChange.Value,
			"pct_defined": d.PctChange.Defined,
			"pct_change":  d.PctChange.Value,
			"prior":       d.Prior.String(),
			"current":     d.Current.String(),
		},
		"ctx": map[string]any{
			"tier_rank": int64(ctx.Tier.Rank()),
		},
	}
}

func newGuardEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("delta", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// guardCache compiles each distinct guard once.
type guardCache struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

func newGuardCache() (*guardCache, error) {
	env, err := newGuardEnv()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "build guard environment")
	}
	return &guardCache{env: env}, nil
}

func (c *guardCache) program(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "guard expression required")
	}
	if cached, ok := c.programs.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), errors.ErrCodeInvalidInput, "compile guard "+strconv.Quote(expr))
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "plan guard "+strconv.Quote(expr))
	}
	c.programs.Store(expr, prg)
	return prg, nil
}

func (c *guardCache) eval(expr string, vars map[string]any) (bool, error) {
	prg, err := c.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInvalidInput, "evaluate guard "+strconv.Quote(expr))
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.Newf(errors.ErrCodeInvalidInput, "guard %q is not boolean", expr)
	}
	return v, nil
}
