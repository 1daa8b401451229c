// Package workflow lowers a rule set into a portable execution graph for an
// external automation engine, and traces such graphs to prove they decide
// exactly as the in-process engine does.
package workflow

import (
	"encoding/json"
	"io"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
)

// NodeKind is the role of a node in the graph.
type NodeKind string

const (
	NodeInput  NodeKind = "input"
	NodeDiff   NodeKind = "diff"
	NodeRule   NodeKind = "rule"
	NodeBranch NodeKind = "branch" // short-circuit rule
	NodeOutput NodeKind = "output"
)

// Fixed scaffold node ids.
const (
	InputID  = "input"
	DiffID   = "diff"
	OutputID = "output"

	ruleIDPrefix = "rule:"
)

// ScaffoldNodes is the number of nodes every graph has besides its rules.
const ScaffoldNodes = 3

// GuardAlways is the guard of an unconditional edge.
const GuardAlways = "true"

// Node is one step of the graph. Params hold plain JSON values only.
type Node struct {
	ID     string         `json:"id"`
	Kind   NodeKind       `json:"kind"`
	Params map[string]any `json:"params"`
}

// Edge is a directed transition taken when Guard, a CEL boolean
// expression over delta and ctx, holds.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Guard string `json:"guard"`
}

// Graph is the exported artifact.
type Graph struct {
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// RuleNodeID is the node id for a rule id.
func RuleNodeID(ruleID string) string { return ruleIDPrefix + ruleID }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// WriteJSON writes the graph as indented JSON.
func (g *Graph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// ParseGraph decodes and validates an exported graph document.
func ParseGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "decode workflow graph")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks the structure: unique ids, one input and one output,
// edges between known nodes, and no cycles.
func (g *Graph) Validate() error {
	ids := make(map[string]NodeKind, len(g.Nodes))
	var inputs, outputs int
	for _, n := range g.Nodes {
		if n.ID == "" {
			return errors.New(errors.ErrCodeInvalidInput, "graph node without id")
		}
		if _, dup := ids[n.ID]; dup {
			return errors.Newf(errors.ErrCodeInvalidInput, "duplicate graph node %q", n.ID)
		}
		ids[n.ID] = n.Kind
		switch n.Kind {
		case NodeInput:
			inputs++
		case NodeOutput:
			outputs++
		case NodeDiff, NodeRule, NodeBranch:
		default:
			return errors.Newf(errors.ErrCodeInvalidInput, "node %q has unknown kind %q", n.ID, n.Kind)
		}
	}
	if inputs != 1 || outputs != 1 {
		return errors.Newf(errors.ErrCodeInvalidInput, "graph needs exactly one input and one output node, has %d and %d", inputs, outputs)
	}

	indegree := make(map[string]int, len(g.Nodes))
	next := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if _, ok := ids[e.From]; !ok {
			return errors.Newf(errors.ErrCodeInvalidInput, "edge from unknown node %q", e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return errors.Newf(errors.ErrCodeInvalidInput, "edge to unknown node %q", e.To)
		}
		if e.Guard == "" {
			return errors.Newf(errors.ErrCodeInvalidInput, "edge %s -> %s has no guard", e.From, e.To)
		}
		next[e.From] = append(next[e.From], e.To)
		indegree[e.To]++
	}

	// Kahn's algorithm; any node left unvisited sits on a cycle.
	var queue []string
	for _, n := range g.Nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, to := range next[id] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if visited != len(g.Nodes) {
		return errors.Newf(errors.ErrCodeInvalidInput, "graph has a cycle (%d of %d nodes ordered)", visited, len(g.Nodes))
	}
	return nil
}
