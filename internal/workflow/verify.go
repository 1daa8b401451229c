package workflow

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// Sample is one delta and context to check for equivalence.
type Sample struct {
	Delta   payroll.Delta
	Context rules.Context
}

// Verify checks that g is a faithful export of set: its structure matches
// the rule count, and tracing every sample selects the same rule, severity
// and firing sequence as rules.Evaluate. Any disagreement is an
// ExportEquivalence error.
func Verify(g *Graph, set *rules.Set, samples []Sample) error {
	if err := g.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportEquivalence, "exported graph is malformed")
	}
	if want := set.Len() + ScaffoldNodes; len(g.Nodes) != want {
		return errors.ExportEquivalence(fmt.Sprintf("graph has %d nodes, want %d", len(g.Nodes), want))
	}

	tracer, err := NewTracer()
	if err != nil {
		return err
	}
	for i, s := range samples {
		direct := rules.Evaluate(s.Delta, set, s.Context)
		traced, err := tracer.Trace(g, s.Delta, s.Context)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeExportEquivalence, fmt.Sprintf("sample %d: trace failed", i))
		}
		if direct.RuleID != traced.RuleID || direct.Severity != traced.Severity || !slices.Equal(direct.Fired, traced.Fired) {
			return errors.ExportEquivalence(fmt.Sprintf(
				"sample %d (field %s, %s, abs %v, pct %v): engine chose %q/%s fired %v, graph chose %q/%s fired %v",
				i, s.Delta.Field, s.Delta.ChangeType, s.Delta.AbsChange, s.Delta.PctChange,
				direct.RuleID, direct.Severity, direct.Fired, traced.RuleID, traced.Severity, traced.Fired))
		}
	}
	return nil
}

// RandomSamples generates n deltas aimed at the rule set's decision
// boundaries: thresholds, their negations, zero baselines, one-sided fields
// and whole-employee additions and removals, under random tiers.
func RandomSamples(rng *rand.Rand, set *rules.Set, n int) []Sample {
	fields, bounds, texts := sampleSpace(set)
	tiers := []rules.Tier{rules.TierStarter, rules.TierPro, rules.TierEnterprise}

	samples := make([]Sample, 0, n)
	for len(samples) < n {
		field := fields[rng.IntN(len(fields))]
		prior, current := randomPair(rng, field, bounds, texts)
		ds, err := payroll.ComputeDeltas(prior, current)
		if err != nil || len(ds) == 0 {
			continue
		}
		samples = append(samples, Sample{
			Delta:   ds[0],
			Context: rules.Context{Tier: tiers[rng.IntN(len(tiers))]},
		})
	}
	return samples
}

func sampleSpace(set *rules.Set) (fields []string, bounds []float64, texts []string) {
	fields = append(payroll.CanonicalFields(), "ssn", "custom_code")
	bounds = []float64{0, 1, 5, 100}
	texts = []string{"", "active", "terminated", "weekly", "cash", "-5", "0", "ssn"}
	for _, r := range set.Rules() {
		for _, f := range r.Fields {
			if !slices.Contains(fields, f) {
				fields = append(fields, f)
			}
		}
		bounds = append(bounds, r.Min)
		if r.Max != nil {
			bounds = append(bounds, *r.Max)
		}
	}
	return fields, bounds, texts
}

func randomPair(rng *rand.Rand, field string, bounds []float64, texts []string) (payroll.Record, payroll.Record) {
	const emp, period = "SAMPLE", "P"
	one := func(v payroll.Value) payroll.Record {
		return payroll.NewRecord(emp, period, map[string]payroll.Value{field: v})
	}
	none := payroll.NewRecord(emp, period, nil)

	switch rng.IntN(10) {
	case 0:
		return payroll.AbsentRecord(emp, period), one(randomNumber(rng, bounds))
	case 1:
		return one(randomNumber(rng, bounds)), payroll.AbsentRecord(emp, period)
	case 2:
		return none, one(randomNumber(rng, bounds))
	case 3:
		return one(randomText(rng, texts)), none
	case 4:
		return one(payroll.Text(texts[rng.IntN(len(texts))])), one(randomText(rng, texts))
	case 5:
		return one(payroll.Number(0)), one(randomNumber(rng, bounds))
	default:
		p := randomNumber(rng, bounds)
		return one(p), one(payroll.Number(p.Num + randomStep(rng, p.Num, bounds)))
	}
}

func randomNumber(rng *rand.Rand, bounds []float64) payroll.Value {
	switch rng.IntN(4) {
	case 0:
		return payroll.Number(bounds[rng.IntN(len(bounds))])
	case 1:
		return payroll.Number(-bounds[rng.IntN(len(bounds))])
	default:
		return payroll.Number(float64(rng.IntN(500000)) / 100)
	}
}

func randomText(rng *rand.Rand, texts []string) payroll.Value {
	if rng.IntN(3) == 0 {
		return randomNumber(rng, []float64{-12.5, 0, 7})
	}
	return payroll.Text(texts[rng.IntN(len(texts))])
}

// randomStep picks a change that lands on, just inside or just outside a
// bound, read either as an absolute amount or as a percentage of prior.
func randomStep(rng *rand.Rand, prior float64, bounds []float64) float64 {
	b := bounds[rng.IntN(len(bounds))]
	nudge := []float64{0, 0.01, -0.01}[rng.IntN(3)]
	sign := 1.0
	if rng.IntN(2) == 0 {
		sign = -1
	}
	if rng.IntN(2) == 0 && prior != 0 {
		abs := prior
		if abs < 0 {
			abs = -abs
		}
		return sign * (b + nudge) * abs / 100
	}
	return sign * (b + nudge)
}
