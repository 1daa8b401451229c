package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-payroll-review/internal/payroll"
)

func numericDelta(field string, prior, current float64) payroll.Delta {
	ds, err := payroll.ComputeDeltas(
		payroll.NewRecord("E1", "2026-09", map[string]payroll.Value{field: payroll.Number(prior)}),
		payroll.NewRecord("E1", "2026-09", map[string]payroll.Value{field: payroll.Number(current)}),
	)
	if err != nil || len(ds) != 1 {
		panic("bad fixture")
	}
	return ds[0]
}

func TestEvaluate_HighestSeverityWins(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "R1", Priority: 1, Severity: SeverityWarn, Kind: KindThresholdAbs, Min: 100},
		{ID: "R2", Priority: 2, Severity: SeverityBlock, Kind: KindThresholdAbs, Min: 1000},
	})

	j := Evaluate(numericDelta("gross_pay", 1000, 2500), set, Context{})
	assert.Equal(t, "R2", j.RuleID)
	assert.Equal(t, SeverityBlock, j.Severity)
	assert.True(t, j.Material)
	assert.Equal(t, []string{"R1", "R2"}, j.Fired)

	j = Evaluate(numericDelta("gross_pay", 1000, 1500), set, Context{})
	assert.Equal(t, "R1", j.RuleID)
	assert.Equal(t, SeverityWarn, j.Severity)
}

func TestEvaluate_TiesGoToEarliestRule(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "LATE", Priority: 5, Severity: SeverityWarn, Kind: KindFieldMatch, Fields: []string{"net_pay"}},
		{ID: "EARLY_A", Priority: 1, Severity: SeverityWarn, Kind: KindFieldMatch, Fields: []string{"net_pay"}},
		{ID: "EARLY_B", Priority: 1, Severity: SeverityWarn, Kind: KindFieldMatch, Fields: []string{"net_pay"}},
	})
	j := Evaluate(numericDelta("net_pay", 10, 20), set, Context{})
	assert.Equal(t, "EARLY_A", j.RuleID)
	assert.Equal(t, []string{"EARLY_A", "EARLY_B", "LATE"}, j.Fired)
}

func TestEvaluate_ShortCircuit(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "R1", Priority: 1, Severity: SeverityWarn, Kind: KindFieldMatch, Fields: []string{"ssn"}, ShortCircuit: true},
		{ID: "R2", Priority: 2, Severity: SeverityBlock, Kind: KindPatternMatch, Pattern: ".*"},
	})
	ssn := payroll.Delta{Seq: 1, EmployeeID: "E1", Field: "ssn",
		Prior: payroll.Text("111"), Current: payroll.Text("222"), ChangeType: payroll.ChangeChanged}

	j := Evaluate(ssn, set, Context{})
	assert.Equal(t, "R1", j.RuleID)
	assert.Equal(t, SeverityWarn, j.Severity)
	assert.Equal(t, []string{"R1"}, j.Fired)

	other := ssn
	other.Field = "pay_group"
	j = Evaluate(other, set, Context{})
	assert.Equal(t, "R2", j.RuleID)
	assert.Equal(t, SeverityBlock, j.Severity)
}

func TestEvaluate_ShortCircuitOverridesEarlierFiring(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "BLOCKER", Priority: 1, Severity: SeverityBlock, Kind: KindThresholdAbs, Min: 10},
		{ID: "MINOR", Priority: 2, Severity: SeverityInfo, Kind: KindThresholdAbs, Min: 0, ShortCircuit: true},
	})
	j := Evaluate(numericDelta("net_pay", 100, 200), set, Context{})
	assert.Equal(t, "MINOR", j.RuleID)
	assert.Equal(t, SeverityInfo, j.Severity)
	assert.False(t, j.Material)
	assert.Equal(t, []string{"BLOCKER", "MINOR"}, j.Fired)
}

func TestEvaluate_NoRuleFires(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "R1", Severity: SeverityBlock, Kind: KindThresholdAbs, Min: 1e6},
	})
	d := numericDelta("net_pay", 100, 200)
	j := Evaluate(d, set, Context{})
	assert.False(t, j.Triggered())
	assert.False(t, j.Material)
	assert.Equal(t, SeverityInfo, j.Severity)
	assert.Equal(t, NoRuleReason, j.Reason)
	assert.Equal(t, d.Seq, j.Seq)
	require.NotNil(t, j.Fired)
	assert.Empty(t, j.Fired)

	none := Evaluate(d, nil, Context{})
	assert.Equal(t, NoRuleReason, none.Reason)
	assert.NotNil(t, none.Fired)
}

func TestEvaluate_UndefinedAmountsNeverFire(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "PCT", Severity: SeverityBlock, Kind: KindThresholdPct, Min: 0},
		{ID: "ABS", Severity: SeverityBlock, Kind: KindThresholdAbs, Min: 0},
	})

	zeroBase := numericDelta("bonus_earnings", 0, 5)
	require.False(t, zeroBase.PctChange.Defined)
	j := Evaluate(zeroBase, set, Context{})
	assert.Equal(t, []string{"ABS"}, j.Fired)

	text := payroll.Delta{Field: "pay_group", Prior: payroll.Text("a"), Current: payroll.Text("b"),
		ChangeType: payroll.ChangeChanged, AbsChange: payroll.Undefined, PctChange: payroll.Undefined}
	assert.False(t, Evaluate(text, set, Context{}).Triggered())
}

func TestEvaluate_DirectionAndBounds(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "DROP", Severity: SeverityWarn, Kind: KindThresholdPct, Direction: DirectionDecrease, Min: 20},
		{ID: "BAND", Severity: SeverityInfo, Kind: KindThresholdPct, Min: 0, Max: Float(5)},
	})

	cases := []struct {
		name       string
		prior, cur float64
		fired      []string
	}{
		{"large drop", 100, 70, []string{"DROP"}},
		{"exactly twenty percent is not over", 100, 80, nil},
		{"large rise", 100, 150, nil},
		{"small rise within band", 100, 104, []string{"BAND"}},
		{"small drop within band", 100, 97, []string{"BAND"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := Evaluate(numericDelta("net_pay", tc.prior, tc.cur), set, Context{})
			assert.Equal(t, tc.fired, j.Fired)
		})
	}
}

func TestEvaluate_PatternTargets(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "NEG", Severity: SeverityBlock, Kind: KindPatternMatch, Pattern: `^-`, PatternTarget: TargetCurrent},
		{ID: "WAS_CASH", Severity: SeverityWarn, Kind: KindPatternMatch, Pattern: `^cash$`, PatternTarget: TargetPrior},
	})
	assert.Equal(t, "NEG", Evaluate(numericDelta("net_pay", 10, -4), set, Context{}).RuleID)

	d := payroll.Delta{Field: "pay_method", Prior: payroll.Text("cash"), Current: payroll.Text("direct"),
		ChangeType: payroll.ChangeChanged}
	assert.Equal(t, "WAS_CASH", Evaluate(d, set, Context{}).RuleID)
}

func TestEvaluate_TierGating(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "PRO_ONLY", Severity: SeverityWarn, Kind: KindFieldMatch, Fields: []string{"net_pay"}, MinTier: TierPro},
	})
	d := numericDelta("net_pay", 1, 2)
	assert.False(t, Evaluate(d, set, Context{Tier: TierStarter}).Triggered())
	assert.False(t, Evaluate(d, set, Context{}).Triggered())
	assert.True(t, Evaluate(d, set, Context{Tier: TierPro}).Triggered())
	assert.True(t, Evaluate(d, set, Context{Tier: TierEnterprise}).Triggered())
}

func TestEvaluate_ChangeTypeAllowList(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "NEW", Severity: SeverityWarn, Kind: KindFieldMatch, ChangeTypes: []string{"new_employee"}},
	})
	ds, err := payroll.ComputeDeltas(
		payroll.AbsentRecord("E2", "2026-08"),
		payroll.NewRecord("E2", "2026-09", map[string]payroll.Value{"net_pay": payroll.Number(900)}),
	)
	require.NoError(t, err)
	assert.Equal(t, "NEW", Evaluate(ds[0], set, Context{}).RuleID)
	assert.False(t, Evaluate(numericDelta("net_pay", 1, 2), set, Context{}).Triggered())
}

func TestEvaluate_Deterministic(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "A", Priority: 2, Severity: SeverityWarn, Kind: KindThresholdAbs, Min: 1},
		{ID: "B", Priority: 1, Severity: SeverityWarn, Kind: KindThresholdPct, Min: 1},
	})
	d := numericDelta("gross_pay", 100, 300)
	first := Evaluate(d, set, Context{Tier: TierPro})
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Evaluate(d, set, Context{Tier: TierPro}))
	}
}

func TestJudgement_SetReviewerNotes(t *testing.T) {
	j := Evaluate(numericDelta("net_pay", 1, 2), nil, Context{})
	j.SetReviewerNotes("checked with HR")
	assert.Equal(t, "checked with HR", j.ReviewerNotes)
}
