package rules

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
)

func TestNewSet_RejectsMalformedRules(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
	}{
		{"missing id", Rule{Kind: KindFieldMatch, Fields: []string{"x"}}},
		{"bad id characters", Rule{ID: "has space", Kind: KindFieldMatch, Fields: []string{"x"}}},
		{"unknown kind", Rule{ID: "R", Kind: "lambda"}},
		{"negative min", Rule{ID: "R", Kind: KindThresholdAbs, Min: -1}},
		{"nan min", Rule{ID: "R", Kind: KindThresholdPct, Min: math.NaN()}},
		{"infinite min", Rule{ID: "R", Kind: KindThresholdPct, Min: math.Inf(1)}},
		{"max below min", Rule{ID: "R", Kind: KindThresholdAbs, Min: 10, Max: Float(5)}},
		{"max equal to min", Rule{ID: "R", Kind: KindThresholdAbs, Min: 10, Max: Float(10)}},
		{"unknown direction", Rule{ID: "R", Kind: KindThresholdAbs, Direction: "sideways"}},
		{"threshold with pattern", Rule{ID: "R", Kind: KindThresholdAbs, Pattern: "x"}},
		{"bad regex", Rule{ID: "R", Kind: KindPatternMatch, Pattern: "("}},
		{"empty pattern", Rule{ID: "R", Kind: KindPatternMatch}},
		{"unknown pattern target", Rule{ID: "R", Kind: KindPatternMatch, Pattern: "x", PatternTarget: "employee"}},
		{"field match without selectors", Rule{ID: "R", Kind: KindFieldMatch}},
		{"field match with threshold", Rule{ID: "R", Kind: KindFieldMatch, Fields: []string{"x"}, Min: 3}},
		{"unknown change type", Rule{ID: "R", Kind: KindFieldMatch, ChangeTypes: []string{"moved"}}},
		{"empty field name", Rule{ID: "R", Kind: KindFieldMatch, Fields: []string{" "}}},
		{"invalid severity", Rule{ID: "R", Kind: KindFieldMatch, Fields: []string{"x"}, Severity: Severity(7)}},
		{"unknown tier", Rule{ID: "R", Kind: KindFieldMatch, Fields: []string{"x"}, MinTier: "gold"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := NewSet([]Rule{tc.rule})
			require.Error(t, err)
			assert.Nil(t, set)
			assert.Equal(t, errors.ErrCodeRuleConfiguration, errors.CodeOf(err))
		})
	}
}

func TestNewSet_RejectsDuplicateIDs(t *testing.T) {
	_, err := NewSet([]Rule{
		{ID: "R", Kind: KindFieldMatch, Fields: []string{"a"}},
		{ID: "R", Kind: KindFieldMatch, Fields: []string{"b"}},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRuleConfiguration))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewSet_OneBadRuleRejectsAll(t *testing.T) {
	_, err := NewSet([]Rule{
		{ID: "GOOD", Kind: KindFieldMatch, Fields: []string{"a"}},
		{ID: "BAD", Kind: KindThresholdAbs, Min: -5},
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "BAD"))
}

func TestNewSet_OrdersByPriorityStable(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "C", Priority: 3, Kind: KindFieldMatch, Fields: []string{"a"}},
		{ID: "A1", Priority: 1, Kind: KindFieldMatch, Fields: []string{"a"}},
		{ID: "B", Priority: 2, Kind: KindFieldMatch, Fields: []string{"a"}},
		{ID: "A2", Priority: 1, Kind: KindFieldMatch, Fields: []string{"a"}},
	})
	var ids []string
	for _, r := range set.Rules() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"A1", "A2", "B", "C"}, ids)
}

func TestNewSet_FillsDefaults(t *testing.T) {
	set := MustNewSet([]Rule{
		{ID: "P", Kind: KindPatternMatch, Pattern: "x"},
		{ID: "T", Kind: KindThresholdAbs},
	})
	p, ok := set.Lookup("P")
	require.True(t, ok)
	assert.Equal(t, TargetField, p.PatternTarget)
	assert.Equal(t, TierStarter, p.MinTier)
	assert.Equal(t, "P", p.Name)
	assert.Equal(t, "P", p.Reason)

	th, ok := set.Lookup("T")
	require.True(t, ok)
	assert.Equal(t, DirectionAny, th.Direction)

	_, ok = set.Lookup("missing")
	assert.False(t, ok)
}

func TestSet_IsImmutable(t *testing.T) {
	defs := []Rule{{ID: "R", Kind: KindFieldMatch, Fields: []string{"net_pay"}, Severity: SeverityWarn}}
	set := MustNewSet(defs)

	defs[0].Fields[0] = "gross_pay"
	got := set.Rules()
	got[0].Fields[0] = "hours"
	got[0].Severity = SeverityBlock

	again, _ := set.Lookup("R")
	assert.Equal(t, []string{"net_pay"}, again.Fields)
	assert.Equal(t, SeverityWarn, again.Severity)
}

func TestSeverity_TextRoundTrip(t *testing.T) {
	for _, name := range []string{"info", "warn", "block"} {
		var s Severity
		require.NoError(t, s.UnmarshalText([]byte(name)))
		b, err := s.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, name, string(b))
	}
	s, err := ParseSeverity("blocker")
	require.NoError(t, err)
	assert.Equal(t, SeverityBlock, s)
	s, err = ParseSeverity("review")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarn, s)

	_, err = ParseSeverity("catastrophic")
	assert.Error(t, err)
	assert.True(t, SeverityInfo < SeverityWarn && SeverityWarn < SeverityBlock)
}
