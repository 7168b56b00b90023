package core

// mapping.go proposes the initial column-to-field mapping for a parsed
// table. Matching is exact on normalized names only: ambiguous or partial
// matches stay unmapped rather than guessed, so financial data is never
// silently mis-assigned. The actor overrides entries afterwards.

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deaccent strips combining marks after NFD decomposition, so "Surface
// corrigée" and "surface corrigee" normalize identically.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases a header or field name and strips diacritics,
// punctuation, and whitespace. Used on both sides of mapping resolution.
func NormalizeName(s string) string {
	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveMapping builds the initial mapping from source columns to schema
// fields. Each source column maps to at most one field and each field is
// claimed by at most one column (first wins); unmatched columns are left
// ignored.
func ResolveMapping(columns []string, schema *CategorySchema) []ColumnMapping {
	byNorm := make(map[string]string, len(schema.Fields))
	for _, f := range schema.Fields {
		byNorm[NormalizeName(f.Name)] = f.Name
	}

	claimed := make(map[string]bool, len(schema.Fields))
	mapping := make([]ColumnMapping, len(columns))
	for i, col := range columns {
		entry := ColumnMapping{SourceColumn: col}
		if target, ok := byNorm[NormalizeName(col)]; ok && !claimed[target] {
			entry.TargetField = target
			claimed[target] = true
		}
		mapping[i] = entry
	}
	return mapping
}

// SetMappingEntry overwrites the target of one source column, enforcing
// the at-most-one-column-per-field invariant by clearing any other entry
// that already pointed at the field. Returns false when the source column
// or target field is unknown.
func SetMappingEntry(mapping []ColumnMapping, schema *CategorySchema, sourceColumn, targetField string) bool {
	idx := -1
	for i := range mapping {
		if mapping[i].SourceColumn == sourceColumn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	if targetField == "" {
		mapping[idx].TargetField = ""
		return true
	}
	if schema.Field(targetField) == nil {
		return false
	}

	for i := range mapping {
		if i != idx && mapping[i].TargetField == targetField {
			mapping[i].TargetField = ""
		}
	}
	mapping[idx].TargetField = targetField
	return true
}

// mappedColumn returns the source column index mapped to the given field,
// or -1 when the field is unmapped.
func mappedColumn(mapping []ColumnMapping, columns []string, field string) int {
	for _, m := range mapping {
		if m.TargetField != field {
			continue
		}
		for i, col := range columns {
			if col == m.SourceColumn {
				return i
			}
		}
	}
	return -1
}
