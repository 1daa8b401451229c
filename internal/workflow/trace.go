package workflow

import (
	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// Outcome is what a graph traversal decided for one delta.
type Outcome struct {
	RuleID   string         `json:"rule_id,omitempty"`
	Severity rules.Severity `json:"severity"`
	Fired    []string       `json:"fired,omitempty"`
	Path     []string       `json:"path"`
}

// Tracer walks exported graphs the way an automation engine would: from
// input, follow the first outgoing edge whose guard holds, until output.
// Compiled guards are cached, so one Tracer should serve many traces.
type Tracer struct {
	guards *guardCache
}

// NewTracer builds a tracer with an empty guard cache.
func NewTracer() (*Tracer, error) {
	gc, err := newGuardCache()
	if err != nil {
		return nil, err
	}
	return &Tracer{guards: gc}, nil
}

type firing struct {
	ruleID   string
	severity rules.Severity
}

// Trace runs d through g under ctx.
func (t *Tracer) Trace(g *Graph, d payroll.Delta, ctx rules.Context) (Outcome, error) {
	nodes := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.ID] = n
	}
	out := make(map[string][]Edge, len(g.Nodes))
	for _, e := range g.Edges {
		out[e.From] = append(out[e.From], e)
	}
	vars := Activation(d, ctx)

	var (
		outcome Outcome
		best    *firing
		decided *firing
	)
	cur, ok := nodes[InputID]
	if !ok {
		return Outcome{}, errors.New(errors.ErrCodeInvalidInput, "graph has no input node")
	}
	for steps := 0; ; steps++ {
		if steps > len(g.Nodes) {
			return Outcome{}, errors.New(errors.ErrCodeInvalidInput, "graph traversal did not reach output")
		}
		outcome.Path = append(outcome.Path, cur.ID)

		switch cur.Kind {
		case NodeOutput:
			outcome.Severity = rules.SeverityInfo
			winner := best
			if decided != nil {
				winner = decided
			}
			if winner != nil {
				outcome.RuleID = winner.ruleID
				outcome.Severity = winner.severity
			}
			return outcome, nil

		case NodeRule, NodeBranch:
			f, fired, err := t.fires(cur, vars)
			if err != nil {
				return Outcome{}, err
			}
			if fired {
				outcome.Fired = append(outcome.Fired, f.ruleID)
				switch {
				case cur.Kind == NodeBranch && decided == nil:
					decided = &f
				case best == nil || f.severity > best.severity:
					best = &f
				}
			}
		}

		next, err := t.follow(cur.ID, out[cur.ID], vars)
		if err != nil {
			return Outcome{}, err
		}
		if cur, ok = nodes[next]; !ok {
			return Outcome{}, errors.Newf(errors.ErrCodeInvalidInput, "edge to unknown node %q", next)
		}
	}
}

func (t *Tracer) fires(n Node, vars map[string]any) (firing, bool, error) {
	cond, _ := n.Params["condition"].(string)
	ok, err := t.guards.eval(cond, vars)
	if err != nil || !ok {
		return firing{}, false, err
	}
	id, _ := n.Params["id"].(string)
	sevName, _ := n.Params["severity"].(string)
	sev, err := rules.ParseSeverity(sevName)
	if err != nil {
		return firing{}, false, errors.Wrap(err, errors.ErrCodeInvalidInput, "node "+n.ID)
	}
	return firing{ruleID: id, severity: sev}, true, nil
}

func (t *Tracer) follow(from string, edges []Edge, vars map[string]any) (string, error) {
	for _, e := range edges {
		ok, err := t.guards.eval(e.Guard, vars)
		if err != nil {
			return "", err
		}
		if ok {
			return e.To, nil
		}
	}
	return "", errors.Newf(errors.ErrCodeInvalidInput, "no outgoing guard holds at node %q", from)
}
