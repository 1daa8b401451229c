package payroll

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
)

// RequiredColumns must be present in every uploaded file.
var RequiredColumns = []string{ColumnEmployeeID, "gross_pay", "net_pay", "total_deductions"}

// textColumns hold codes and labels; their cells are never read as numbers,
// so a code like 0042 keeps its leading zeros.
var textColumns = map[string]bool{
	"employment_status": true,
	"pay_group":         true,
	"pay_frequency":     true,
	"deduction_code":    true,
	ColumnDepartment:    true,
}

// CSVImport is the result of reading one payroll file.
type CSVImport struct {
	Records  []Record        `json:"-"`
	Mappings []ColumnMapping `json:"mappings"`
	// Unmapped lists headers that were dropped.
	Unmapped []string `json:"unmapped"`
	// Warnings describe cells that were kept but look wrong, such as text
	// in a numeric column.
	Warnings []string `json:"warnings"`
}

// ParseCSV reads a payroll file with a header row. Headers are mapped with
// MapColumns; empty cells are left absent. Blank and duplicate employee ids
// are kept so the review can report them per employee.
func ParseCSV(r io.Reader, payPeriod string) (*CSVImport, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Validation("file", "csv file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "malformed csv header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	out := &CSVImport{
		Mappings: MapColumns(header),
		Unmapped: []string{},
		Warnings: []string{},
	}
	idCol := -1
	present := make(map[string]bool, len(header))
	for i, m := range out.Mappings {
		switch {
		case m.Field == ColumnEmployeeID:
			idCol = i
		case !m.Mapped() && !m.Ignored:
			out.Unmapped = append(out.Unmapped, m.Column)
		}
		if m.Field != "" {
			present[m.Field] = true
		}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Validation("file", "missing required columns: "+strings.Join(missing, ", "))
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if stderrors.As(err, &pe) {
				return nil, errors.Validation("file", fmt.Sprintf("malformed csv at line %d: %v", pe.Line, pe.Err))
			}
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "malformed csv")
		}
		if blankRow(row) {
			continue
		}

		fields := make(map[string]Value, len(row))
		for i, m := range out.Mappings {
			if i == idCol || !m.Mapped() || i >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			v, numeric := parseCell(m.Field, cell)
			if !numeric && !textColumns[m.Field] {
				out.Warnings = append(out.Warnings, fmt.Sprintf("row %d: %s is not a number", line, m.Field))
			}
			fields[m.Field] = v
		}
		var id string
		if idCol < len(row) {
			id = strings.TrimSpace(row[idCol])
		}
		out.Records = append(out.Records, NewRecord(id, payPeriod, fields))
	}
	if len(out.Records) == 0 {
		return nil, errors.Validation("file", "csv file has no data rows")
	}
	return out, nil
}

// parseCell reads a cell as a number when the column is numeric and the cell
// parses, ignoring currency symbols and thousands separators. Everything
// else is kept as text.
func parseCell(field, cell string) (Value, bool) {
	if textColumns[field] {
		return Text(cell), true
	}
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(cell)
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Text(cell), false
	}
	return Number(f), true
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteTemplate writes an empty upload template: the header row only.
func WriteTemplate(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TemplateHeaders()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
