package payroll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "absent"
	}
}

// Value is one payroll field value: a number, a string, or the absent
// sentinel used when a field (or a whole record) is missing on one side.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// Absent is the sentinel for a field that does not exist in a record.
var Absent = Value{Kind: KindAbsent}

// Number wraps a numeric field value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Text wraps a string field value.
func Text(s string) Value { return Value{Kind: KindString, Str: s} }

func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }

// Equal reports whether two values are the same variant with the same payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	default:
		return true
	}
}

// String renders the value the way rule patterns and graph guards see it.
// Absent renders as the empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

func (v Value) validate() error {
	if v.Kind == KindNumber && (math.IsNaN(v.Num) || math.IsInf(v.Num, 0)) {
		return fmt.Errorf("non-finite number %v", v.Num)
	}
	return nil
}

// MarshalJSON encodes absent as null, numbers as JSON numbers and strings as
// JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Absent
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("payroll value must be a number, string or null: %w", err)
	}
	*v = Number(f)
	return nil
}

// Amount is a computed change that may be undefined, e.g. a percentage over a
// zero baseline. It never holds NaN or infinity.
type Amount struct {
	Value   float64
	Defined bool
}

// Undefined is the sentinel for a change that has no numeric value.
var Undefined = Amount{}

// DefinedAmount wraps a computed change.
func DefinedAmount(f float64) Amount { return Amount{Value: f, Defined: true} }

const undefinedLiteral = "undefined"

// MarshalJSON encodes undefined amounts as the string "undefined".
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Defined {
		return json.Marshal(undefinedLiteral)
	}
	return json.Marshal(a.Value)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`"`+undefinedLiteral+`"`)) {
		*a = Undefined
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("amount must be a number or %q: %w", undefinedLiteral, err)
	}
	*a = DefinedAmount(f)
	return nil
}

// Ptr returns nil for undefined amounts. Used when persisting to nullable columns.
func (a Amount) Ptr() *float64 {
	if !a.Defined {
		return nil
	}
	v := a.Value
	return &v
}

// AmountFromPtr is the inverse of Ptr.
func AmountFromPtr(p *float64) Amount {
	if p == nil {
		return Undefined
	}
	return DefinedAmount(*p)
}
