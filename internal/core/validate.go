package core

// validate.go replays every row of a mapped table through per-field type
// coercion and per-category business rules.
//
// Coercion failures and required-field violations are blocking errors.
// Business rules carry their own severity declaration, so a rule like
// "rent below expected range" can warn without blocking while "missing
// required code" blocks. A row with zero errors counts as valid no matter
// how many warnings it carries.

import "fmt"

// RefLookup reports whether the given record ID exists in a table.
// Used for referential rules (e.g. a linked business-unit code).
type RefLookup func(table, id string) bool

// ValidateTable validates every row against the schema through the given
// mapping and returns the aggregate result, including the quality score
// (percentage of rows free of blocking errors).
func ValidateTable(raw *RawTable, mapping []ColumnMapping, schema *CategorySchema, refExists RefLookup) *ValidationResult {
	result := &ValidationResult{
		TotalRows:   len(raw.Rows),
		rowHasError: make([]bool, len(raw.Rows)),
	}

	type boundField struct {
		spec *FieldSpec
		col  int // -1 when unmapped
	}
	fields := make([]boundField, len(schema.Fields))
	for i := range schema.Fields {
		fields[i] = boundField{
			spec: &schema.Fields[i],
			col:  mappedColumn(mapping, raw.Columns, schema.Fields[i].Name),
		}
	}

	for rowIdx, row := range raw.Rows {
		for _, f := range fields {
			spec := f.spec

			if f.col < 0 {
				if spec.Required {
					result.addIssue(RowIssue{
						Row:      rowIdx,
						Column:   spec.Name,
						Message:  fmt.Sprintf("required field %q has no mapped column", spec.Name),
						Severity: SeverityError,
						Code:     IssueUnmapped,
					})
				}
				continue
			}

			cell := CleanCell(row[f.col])
			if spec.Normalizer != nil && cell != "" {
				cell = spec.Normalizer(cell)
			}

			if cell == "" {
				if spec.Required {
					result.addIssue(RowIssue{
						Row:      rowIdx,
						Column:   spec.Name,
						Message:  "required field is empty",
						Severity: SeverityError,
						Code:     IssueEmpty,
					})
				}
				continue
			}

			value, ok := CoerceCell(cell, spec)
			if !ok {
				result.addIssue(RowIssue{
					Row:      rowIdx,
					Column:   spec.Name,
					Message:  coerceFailureMessage(spec),
					Severity: SeverityError,
					Code:     IssueCoerce,
				})
				continue
			}

			if spec.RefTable != "" && refExists != nil {
				if id, isStr := value.(string); isStr && !refExists(spec.RefTable, id) {
					result.addIssue(RowIssue{
						Row:      rowIdx,
						Column:   spec.Name,
						Message:  fmt.Sprintf("%q does not reference an existing %s", id, spec.RefTable),
						Severity: SeverityError,
						Code:     IssueRef,
					})
					continue
				}
			}

			for _, rule := range spec.Rules {
				if msg := rule.Check(value); msg != "" {
					result.addIssue(RowIssue{
						Row:      rowIdx,
						Column:   spec.Name,
						Message:  msg,
						Severity: rule.Severity,
						Code:     rule.Name,
					})
				}
			}
		}
	}

	for _, hasErr := range result.rowHasError {
		if !hasErr {
			result.ValidRows++
		}
	}
	result.Valid = len(result.Errors) == 0
	if result.TotalRows > 0 {
		result.QualityScore = 100 * float64(result.ValidRows) / float64(result.TotalRows)
	}

	return result
}

func (r *ValidationResult) addIssue(issue RowIssue) {
	if issue.Severity == SeverityError {
		r.Errors = append(r.Errors, issue)
		if issue.Row >= 0 && issue.Row < len(r.rowHasError) {
			r.rowHasError[issue.Row] = true
		}
	} else {
		r.Warnings = append(r.Warnings, issue)
	}
}
