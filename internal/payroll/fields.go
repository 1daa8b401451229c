package payroll

import (
	"slices"
	"strings"
)

// canonicalFields is the fixed comparison order. It follows the canonical
// payroll schema: identity, hours, earnings, taxes, deductions, then the
// fundamental pay totals. Fields outside this list sort after it, lexically.
var canonicalFields = []string{
	// identity
	"employment_status",
	"pay_group",
	"pay_frequency",
	"deduction_code",
	// hours
	"regular_hours",
	"overtime_hours",
	"other_paid_hours",
	"total_hours_worked",
	"hours",
	// earnings
	"base_earnings",
	"overtime_pay",
	"bonus_earnings",
	"other_earnings",
	// taxes
	"federal_income_tax",
	"social_security_tax",
	"medicare_tax",
	"state_income_tax",
	"local_tax",
	// deductions and totals
	"total_deductions",
	"gross_pay",
	"net_pay",
}

var canonicalRank = func() map[string]int {
	m := make(map[string]int, len(canonicalFields))
	for i, f := range canonicalFields {
		m[f] = i
	}
	return m
}()

// CanonicalFields returns a copy of the known field order.
func CanonicalFields() []string {
	return slices.Clone(canonicalFields)
}

// IsCanonical reports whether name is part of the canonical schema.
func IsCanonical(name string) bool {
	_, ok := canonicalRank[name]
	return ok
}

// compareFields orders two field names canonically.
func compareFields(a, b string) int {
	ra, okA := canonicalRank[a]
	rb, okB := canonicalRank[b]
	switch {
	case okA && okB:
		return ra - rb
	case okA:
		return -1
	case okB:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// SortFields sorts names in place into canonical order.
func SortFields(names []string) {
	slices.SortFunc(names, compareFields)
}
