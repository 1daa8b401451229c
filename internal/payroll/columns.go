package payroll

import (
	"strings"
	"unicode"
)

// Column targets that are not comparison fields.
const (
	// ColumnEmployeeID carries the record's employee id.
	ColumnEmployeeID = "employee_id"
	// ColumnDepartment is compared like any other field but sorts after the
	// canonical ones.
	ColumnDepartment = "department"
)

// Mapping confidences, highest first.
const (
	ConfidenceCanonical = 0.98
	ConfidenceAlias     = 0.95
	ConfidencePartial   = 0.70
)

// minPartialMatch is the shortest normalized header or alias that may take
// part in a substring match.
const minPartialMatch = 3

type columnDef struct {
	target  string
	ignored bool // recognized, but not loaded into the record
	aliases []string
}

// columnDefs lists every upload target. Earlier targets win ambiguous
// matches.
var columnDefs = []columnDef{
	{target: ColumnEmployeeID, aliases: []string{
		"emp_id", "employeeid", "empid", "employee no", "employee number", "staff id",
		"staff number", "worker id", "id", "ee id", "personnel number", "badge number",
		"payroll id", "emp no", "emp #", "employee #",
	}},
	{target: "employee_name", ignored: true, aliases: []string{
		"employeename", "name", "full name", "fullname", "emp name", "empname",
		"worker name", "staff name", "employee full name",
	}},
	{target: "employment_status", aliases: []string{
		"status", "emp status", "employee status", "active status", "work status", "pay status",
	}},
	{target: "pay_group", aliases: []string{
		"paygroup", "payroll group", "group", "compensation group", "pay class",
	}},
	{target: "pay_frequency", aliases: []string{
		"payfrequency", "frequency", "pay cycle", "pay period type", "pay schedule",
	}},
	{target: "deduction_code", aliases: []string{"ded code", "deduction type"}},
	{target: "pay_period_start", ignored: true, aliases: []string{
		"payperiodstart", "period start", "period_start", "start date", "period begin", "pp start",
	}},
	{target: "pay_period_end", ignored: true, aliases: []string{
		"payperiodend", "period end", "period_end", "end date", "period ending", "pp end",
	}},
	{target: "pay_date", ignored: true, aliases: []string{
		"paydate", "check date", "payment date", "payday", "disbursement date",
	}},
	{target: ColumnDepartment, aliases: []string{
		"dept", "division", "cost center", "business unit", "org unit", "team",
	}},
	{target: "regular_hours", aliases: []string{
		"regularhours", "reg hours", "standard hours", "normal hours", "base hours",
	}},
	{target: "overtime_hours", aliases: []string{
		"overtimehours", "ot hours", "overtime", "extra hours",
	}},
	{target: "other_paid_hours", aliases: []string{
		"otherpaidhours", "pto hours", "vacation hours", "sick hours", "holiday hours", "other hours",
	}},
	{target: "total_hours_worked", aliases: []string{
		"totalhoursworked", "total hours", "total_hours", "hours worked", "hours_worked",
	}},
	{target: "hours", aliases: nil},
	{target: "base_earnings", aliases: []string{
		"baseearnings", "base pay", "base salary", "regular pay", "regular earnings", "salary",
	}},
	{target: "overtime_pay", aliases: []string{
		"overtimepay", "ot pay", "overtime earnings", "ot earnings",
	}},
	{target: "bonus_earnings", aliases: []string{
		"bonusearnings", "bonus", "bonus pay", "incentive", "incentive pay", "commission",
	}},
	{target: "other_earnings", aliases: []string{
		"otherearnings", "other pay", "misc earnings", "additional earnings", "supplemental pay",
	}},
	{target: "federal_income_tax", aliases: []string{
		"federalincometaxwithheld", "federal income tax withheld", "federal tax", "fed tax", "fit",
		"federal withholding", "fed income tax",
	}},
	{target: "social_security_tax", aliases: []string{
		"socialsecuritywithheld", "social security withheld", "social security", "ss tax",
		"fica ss", "oasdi",
	}},
	{target: "medicare_tax", aliases: []string{
		"medicarewithheld", "medicare withheld", "medicare", "fica medicare", "med tax", "fica_med",
	}},
	{target: "state_income_tax", aliases: []string{
		"stateincometaxwithheld", "state income tax withheld", "state tax", "sit", "state withholding",
	}},
	{target: "local_tax", aliases: []string{
		"localtaxwithheld", "local tax withheld", "city tax", "county tax", "municipal tax",
		"local withholding",
	}},
	{target: "total_deductions", aliases: []string{
		"totaldeductions", "deductions", "total deduction", "deduction total", "all deductions",
	}},
	{target: "gross_pay", aliases: []string{
		"grosspay", "gross", "gross earnings", "gross salary", "total earnings", "gross wages", "total pay",
	}},
	{target: "net_pay", aliases: []string{
		"netpay", "net", "take home", "take home pay", "net earnings", "net wages", "net amount",
	}},
}

// ColumnMapping records how one uploaded header was interpreted. Field is
// empty when the column is not loaded.
type ColumnMapping struct {
	Column     string  `json:"column"`
	Field      string  `json:"field,omitempty"`
	Ignored    bool    `json:"ignored,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Mapped reports whether the column feeds a record.
func (m ColumnMapping) Mapped() bool { return m.Field != "" && !m.Ignored }

// MapColumns matches uploaded headers to record fields: exact canonical
// names first, then known aliases, then substring matches against aliases.
// Matching ignores case and punctuation. A target claimed by an earlier
// column is not assigned twice.
func MapColumns(headers []string) []ColumnMapping {
	out := make([]ColumnMapping, len(headers))
	claimed := make(map[string]string, len(headers))
	for i, h := range headers {
		m := matchColumn(h)
		if m.Field != "" {
			if first, ok := claimed[m.Field]; ok {
				m = ColumnMapping{
					Column: h,
					Reason: "column " + first + " already maps to " + m.Field,
				}
			} else {
				claimed[m.Field] = h
			}
		}
		out[i] = m
	}
	return out
}

func matchColumn(header string) ColumnMapping {
	norm := normalizeHeader(header)
	if norm == "" {
		return ColumnMapping{Column: header, Reason: "empty header"}
	}

	for _, def := range columnDefs {
		if normalizeHeader(def.target) == norm {
			return ColumnMapping{Column: header, Field: def.target, Ignored: def.ignored,
				Confidence: ConfidenceCanonical, Reason: "exact match with field name"}
		}
	}
	for _, def := range columnDefs {
		for _, alias := range def.aliases {
			if normalizeHeader(alias) == norm {
				return ColumnMapping{Column: header, Field: def.target, Ignored: def.ignored,
					Confidence: ConfidenceAlias, Reason: "exact match with alias " + alias}
			}
		}
	}
	if len(norm) >= minPartialMatch {
		for _, def := range columnDefs {
			for _, alias := range def.aliases {
				a := normalizeHeader(alias)
				if len(a) < minPartialMatch {
					continue
				}
				if strings.Contains(norm, a) || strings.Contains(a, norm) {
					return ColumnMapping{Column: header, Field: def.target, Ignored: def.ignored,
						Confidence: ConfidencePartial, Reason: "partial match with alias " + alias}
				}
			}
		}
	}
	return ColumnMapping{Column: header, Reason: "no matching field"}
}

// normalizeHeader lowercases s and drops everything but letters and digits.
func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TemplateHeaders returns the column names of an upload template: the
// employee id followed by every loaded column.
func TemplateHeaders() []string {
	out := make([]string, 0, len(columnDefs))
	for _, def := range columnDefs {
		if !def.ignored {
			out = append(out, def.target)
		}
	}
	return out
}
