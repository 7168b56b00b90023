package core

// transform.go converts validated rows into typed domain records.
// Deterministic and side-effect-free: record IDs and the import ID are
// stamped later by the commit engine, so the same input always yields the
// same output record sequence.

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransformRows builds one Record per row that validation found free of
// blocking errors. Normalization applied per field type: strings trimmed,
// short codes upper-cased, monetary values rounded to the schema's
// declared precision, defaults injected for optional unmapped fields.
func TransformRows(raw *RawTable, mapping []ColumnMapping, schema *CategorySchema, validation *ValidationResult, businessUnitID string) []Record {
	var records []Record

	for rowIdx, row := range raw.Rows {
		if validation.RowHasError(rowIdx) {
			continue
		}

		values := make(map[string]any, len(schema.Fields))
		for i := range schema.Fields {
			spec := &schema.Fields[i]

			col := mappedColumn(mapping, raw.Columns, spec.Name)
			if col < 0 {
				if spec.Default != nil {
					values[spec.Name] = spec.Default
				}
				continue
			}

			cell := CleanCell(row[col])
			if spec.Normalizer != nil && cell != "" {
				cell = spec.Normalizer(cell)
			}
			if cell == "" {
				if spec.Default != nil {
					values[spec.Name] = spec.Default
				}
				continue
			}

			value, ok := CoerceCell(cell, spec)
			if !ok {
				// Validation already passed this row; unparseable optional
				// cells are dropped rather than guessed.
				continue
			}
			values[spec.Name] = normalizeValue(value, spec, schema)
		}

		rec := Record{
			Table:          schema.Table,
			BusinessUnitID: businessUnitID,
			Values:         values,
		}
		if schema.PeriodField != "" {
			if t, ok := values[schema.PeriodField].(time.Time); ok {
				rec.EffectiveDate = t
			}
		}
		rec.Key = recordKey(schema, values)
		records = append(records, rec)
	}

	return records
}

// normalizeValue applies per-type canonicalization to a coerced value.
func normalizeValue(value any, spec *FieldSpec, schema *CategorySchema) any {
	switch spec.Type {
	case FieldText:
		return strings.TrimSpace(value.(string))
	case FieldCode:
		return strings.ToUpper(strings.TrimSpace(value.(string)))
	case FieldMoney:
		return schema.MoneyRound(value.(decimal.Decimal))
	default:
		return value
	}
}

// recordKey builds the composite unique key "val1|val2" from the schema's
// UniqueKey fields. Empty when the schema declares none.
func recordKey(schema *CategorySchema, values map[string]any) string {
	if len(schema.UniqueKey) == 0 {
		return ""
	}
	parts := make([]string, len(schema.UniqueKey))
	for i, field := range schema.UniqueKey {
		parts[i] = valueString(values[field])
	}
	return strings.Join(parts, "|")
}

// valueString renders a coerced value in its canonical string form,
// used for composite keys and journal old/new values.
func valueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.Format("2006-01-02")
	case decimal.Decimal:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
