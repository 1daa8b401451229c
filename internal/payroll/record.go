package payroll

import (
	"maps"
	"strings"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
)

// Record is one employee's pay data for one pay period. Treat it as
// immutable: NewRecord copies the field map and nothing in this module writes
// to it afterwards.
type Record struct {
	EmployeeID string           `json:"employee_id"`
	PayPeriod  string           `json:"pay_period"`
	Fields     map[string]Value `json:"fields"`
	// Absent marks the synthetic record standing in for an employee missing
	// from one side of a comparison.
	Absent bool `json:"absent,omitempty"`
}

// NewRecord captures a record, copying fields.
func NewRecord(employeeID, payPeriod string, fields map[string]Value) Record {
	return Record{
		EmployeeID: employeeID,
		PayPeriod:  payPeriod,
		Fields:     maps.Clone(fields),
	}
}

// AbsentRecord is the sentinel record for an employee who is not present in
// one of the two batches.
func AbsentRecord(employeeID, payPeriod string) Record {
	return Record{EmployeeID: employeeID, PayPeriod: payPeriod, Absent: true}
}

// Field returns the value for name, or Absent.
func (r Record) Field(name string) Value {
	if r.Absent {
		return Absent
	}
	v, ok := r.Fields[name]
	if !ok {
		return Absent
	}
	return v
}

// Validate checks the record is usable for comparison.
func (r Record) Validate() error {
	if strings.TrimSpace(r.EmployeeID) == "" {
		return errors.Validation("employee_id", "employee id is required")
	}
	if r.Absent {
		return nil
	}
	for name, v := range r.Fields {
		if strings.TrimSpace(name) == "" {
			return errors.Validation("fields", "field name must not be empty")
		}
		if err := v.validate(); err != nil {
			return errors.Validation(name, err.Error())
		}
	}
	return nil
}
