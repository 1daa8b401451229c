package workflow

import (
	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// DefaultName names graphs exported without an explicit name.
const DefaultName = "payroll-review"

// ResolutionPolicy is how the output node assembles a judgement from the
// rules that fired along the traced path.
const ResolutionPolicy = "short_circuit_else_max_severity_earliest"

// Export lowers set into a graph: input, diff, one node per rule in
// evaluation order, then output. Short-circuit rules become branch nodes
// whose condition edge jumps straight to output.
func Export(name string, set *rules.Set) (*Graph, error) {
	if set == nil {
		return nil, errors.RuleConfiguration("", "export requires a rule set")
	}
	if name == "" {
		name = DefaultName
	}

	rs := set.Rules()
	g := &Graph{
		Name:  name,
		Nodes: make([]Node, 0, len(rs)+ScaffoldNodes),
		Edges: make([]Edge, 0, len(rs)+3),
	}

	g.Nodes = append(g.Nodes,
		Node{ID: InputID, Kind: NodeInput, Params: map[string]any{
			"accepts": []any{"prior", "current"},
		}},
		Node{ID: DiffID, Kind: NodeDiff, Params: map[string]any{
			"field_order":          stringsToAny(payroll.CanonicalFields()),
			"unknown_fields":       "lexical",
			"pct_when_prior_zero":  "undefined",
			"skip_equal_values":    true,
			"abs_requires_numbers": true,
		}},
	)
	g.Edges = append(g.Edges, Edge{From: InputID, To: DiffID, Guard: GuardAlways})

	prev := DiffID
	prevCond := ""
	for _, r := range rs {
		params, err := LowerRule(r)
		if err != nil {
			return nil, err
		}
		cond := Condition(r)
		params["condition"] = cond

		id := RuleNodeID(r.ID)
		kind := NodeRule
		if r.ShortCircuit {
			kind = NodeBranch
		}
		g.Nodes = append(g.Nodes, Node{ID: id, Kind: kind, Params: params})
		g.Edges = append(g.Edges, fallThrough(prev, prevCond, id)...)
		prev, prevCond = id, ""
		if kind == NodeBranch {
			prevCond = cond
		}
	}

	g.Nodes = append(g.Nodes, Node{ID: OutputID, Kind: NodeOutput, Params: map[string]any{
		"policy":               ResolutionPolicy,
		"default_severity":     rules.SeverityInfo.String(),
		"default_reason":       rules.NoRuleReason,
		"material_at_or_above": rules.SeverityWarn.String(),
	}})
	g.Edges = append(g.Edges, fallThrough(prev, prevCond, OutputID)...)
	return g, nil
}

// fallThrough links from to the next node. A branch node gets two edges:
// its condition to output and the negation onward.
func fallThrough(from, branchCond, to string) []Edge {
	if branchCond == "" {
		return []Edge{{From: from, To: to, Guard: GuardAlways}}
	}
	if to == OutputID {
		// Both outcomes lead to output; keep one edge per outcome so
		// the trace still records which way the branch went.
		return []Edge{
			{From: from, To: OutputID, Guard: branchCond},
			{From: from, To: OutputID, Guard: Negate(branchCond)},
		}
	}
	return []Edge{
		{From: from, To: OutputID, Guard: branchCond},
		{From: from, To: to, Guard: Negate(branchCond)},
	}
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
