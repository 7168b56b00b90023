package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func validationSchema() *CategorySchema {
	return &CategorySchema{
		Key:         "testcat",
		Table:       "testcat",
		PeriodField: "period",
		UniqueKey:   []string{"unit_code", "period"},
		Fields: []FieldSpec{
			{Name: "unit_code", Type: FieldCode, Required: true},
			{Name: "period", Type: FieldDate, Required: true},
			{
				Name: "amount", Type: FieldMoney, Required: true,
				Rules: []Rule{
					{
						Name:     "amount_non_negative",
						Severity: SeverityError,
						Check: func(v any) string {
							if d, ok := v.(decimal.Decimal); ok && d.IsNegative() {
								return "amount must not be negative"
							}
							return ""
						},
					},
					{
						Name:     "amount_plausible",
						Severity: SeverityWarning,
						Check: func(v any) string {
							if d, ok := v.(decimal.Decimal); ok && d.GreaterThan(decimal.NewFromInt(1_000_000)) {
								return "amount unusually large"
							}
							return ""
						},
					},
				},
			},
			{Name: "tenant_ref", Type: FieldCode, RefTable: "lease"},
		},
	}
}

func fullMapping(schema *CategorySchema, columns []string) []ColumnMapping {
	return ResolveMapping(columns, schema)
}

// ----------------------------------------------------------------------------
// ValidateTable Tests
// ----------------------------------------------------------------------------

func TestValidateTableCleanData(t *testing.T) {
	schema := validationSchema()
	raw := &RawTable{
		Columns: []string{"unit_code", "period", "amount"},
		Rows: [][]string{
			{"a-101", "2024-01-01", "1200.50"},
			{"a-102", "2024-01-01", "900"},
		},
	}
	result := ValidateTable(raw, fullMapping(schema, raw.Columns), schema, nil)

	if !result.Valid {
		t.Fatalf("expected valid, errors = %v", result.Errors)
	}
	if result.ValidRows != 2 || result.TotalRows != 2 {
		t.Errorf("valid/total = %d/%d", result.ValidRows, result.TotalRows)
	}
	if result.QualityScore != 100 {
		t.Errorf("quality score = %v, want 100", result.QualityScore)
	}
}

func TestValidateTableUnmappedRequired(t *testing.T) {
	schema := validationSchema()
	raw := &RawTable{
		Columns: []string{"unit_code", "period"},
		Rows: [][]string{
			{"a-101", "2024-01-01"},
			{"a-102", "2024-01-01"},
			{"a-103", "2024-01-01"},
		},
	}
	result := ValidateTable(raw, fullMapping(schema, raw.Columns), schema, nil)

	if result.Valid {
		t.Fatal("expected invalid")
	}
	// The unmapped required field blocks every row.
	if len(result.Errors) != 3 {
		t.Fatalf("errors = %d, want 3", len(result.Errors))
	}
	for _, issue := range result.Errors {
		if issue.Code != IssueUnmapped {
			t.Errorf("issue code = %q, want %q", issue.Code, IssueUnmapped)
		}
	}
	if result.ValidRows != 0 || result.QualityScore != 0 {
		t.Errorf("valid rows = %d, score = %v", result.ValidRows, result.QualityScore)
	}
	if !result.HasRequiredViolation() {
		t.Error("expected a required violation")
	}
}

func TestValidateTableMixedIssues(t *testing.T) {
	schema := validationSchema()
	raw := &RawTable{
		Columns: []string{"unit_code", "period", "amount"},
		Rows: [][]string{
			{"a-101", "2024-01-01", "100"},        // clean
			{"a-102", "not-a-date", "100"},        // coercion error
			{"a-103", "2024-01-01", "-5"},         // business rule error
			{"a-104", "2024-01-01", "2000000"},    // warning only
			{"", "2024-01-01", "100"},             // empty required
		},
	}
	result := ValidateTable(raw, fullMapping(schema, raw.Columns), schema, nil)

	if result.Valid {
		t.Fatal("expected invalid")
	}
	if result.TotalRows != 5 {
		t.Fatalf("total rows = %d", result.TotalRows)
	}
	// Rows 0 and 3 are free of blocking errors.
	if result.ValidRows != 2 {
		t.Errorf("valid rows = %d, want 2", result.ValidRows)
	}
	if result.QualityScore != 40 {
		t.Errorf("quality score = %v, want 40", result.QualityScore)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Row != 3 {
		t.Errorf("warnings = %v", result.Warnings)
	}
	if result.RowHasError(3) {
		t.Error("warning-only row must not count as erroring")
	}
	if !result.RowHasError(2) {
		t.Error("rule violation must block the row")
	}

	codes := map[string]bool{}
	for _, e := range result.Errors {
		codes[e.Code] = true
	}
	for _, want := range []string{IssueCoerce, IssueEmpty, "amount_non_negative"} {
		if !codes[want] {
			t.Errorf("missing expected issue code %q in %v", want, codes)
		}
	}
}

func TestValidateTableReferences(t *testing.T) {
	schema := validationSchema()
	raw := &RawTable{
		Columns: []string{"unit_code", "period", "amount", "tenant_ref"},
		Rows: [][]string{
			{"a-101", "2024-01-01", "100", "L-001"},
			{"a-102", "2024-01-01", "100", "L-404"},
		},
	}
	known := map[string]bool{"L-001": true}
	refExists := func(table, id string) bool {
		return table == "lease" && known[id]
	}

	result := ValidateTable(raw, fullMapping(schema, raw.Columns), schema, refExists)

	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v", result.Errors)
	}
	if result.Errors[0].Row != 1 || result.Errors[0].Code != IssueRef {
		t.Errorf("unexpected issue: %+v", result.Errors[0])
	}
	if result.ValidRows != 1 {
		t.Errorf("valid rows = %d", result.ValidRows)
	}
}

func TestValidateTableEmpty(t *testing.T) {
	schema := validationSchema()
	raw := &RawTable{Columns: []string{"unit_code", "period", "amount"}}
	result := ValidateTable(raw, fullMapping(schema, raw.Columns), schema, nil)

	if !result.Valid {
		t.Error("empty table should be valid")
	}
	if result.QualityScore != 0 {
		t.Errorf("quality score of empty table = %v, want 0", result.QualityScore)
	}
}
