package rules

import "github.com/pesio-ai/be-payroll-review/internal/payroll"

// NoRuleReason is the reason recorded when nothing fires.
const NoRuleReason = "no rule triggered"

// Judgement is the materiality outcome for exactly one delta.
type Judgement struct {
	Seq        uint64             `json:"seq"`
	EmployeeID string             `json:"employee_id"`
	Field      string             `json:"field"`
	ChangeType payroll.ChangeType `json:"change_type"`

	// RuleID is empty when no rule fired.
	RuleID     string   `json:"rule_id,omitempty"`
	RuleName   string   `json:"rule_name,omitempty"`
	Category   string   `json:"category,omitempty"`
	Material   bool     `json:"material"`
	Severity   Severity `json:"severity"`
	Reason     string   `json:"reason"`
	UserAction string   `json:"user_action,omitempty"`
	// Fired lists every rule that fired before evaluation stopped, in
	// evaluation order. Never nil.
	Fired []string `json:"fired,omitempty"`

	ReviewerNotes string `json:"reviewer_notes,omitempty"`
}

// Triggered reports whether any rule fired.
func (j Judgement) Triggered() bool { return j.RuleID != "" }

// IsBlocker reports whether the judgement blocks approval.
func (j Judgement) IsBlocker() bool { return j.Severity == SeverityBlock }

// SetReviewerNotes records human notes. It is the only mutation allowed
// after evaluation.
func (j *Judgement) SetReviewerNotes(notes string) {
	j.ReviewerNotes = notes
}
