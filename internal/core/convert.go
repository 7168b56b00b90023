package core

// convert.go provides cell coercion from raw import values to typed Go
// values.
//
// These functions handle the messy reality of exported spreadsheet data:
//   - Multiple date formats (US, EU, ISO, etc.)
//   - Currency symbols and thousand separators in numbers
//   - Accounting format (parentheses for negative)
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value")
//
// All Parse* functions report ok=false for input they cannot coerce,
// leaving the caller to decide severity.

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a valid numeric format after
// cleanup. Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are
// assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "2/1/2006", "02/01/2006",
		"1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ParseDate coerces a raw cell to a date. Supports multiple layouts and
// handles 2-digit years with a pivot.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseDecimal coerces a raw cell to a decimal. Handles currency symbols,
// accounting format ("(123.45)" for negative), and both separator
// conventions ("1,234.56" and "1.234,56").
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, " ", "") // Non-breaking space (common thousands separator)
	s = strings.TrimSpace(s)
	s = normalizeSeparators(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseBool coerces a raw cell to a boolean.
// Accepts true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// CleanCell removes common export artifacts from a cell value:
// trims whitespace, strips the Excel formula prefix (="..."), and
// removes surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return s
}

// CoerceCell converts a cleaned raw value to the field's declared type.
// Text and code fields always coerce; for other types ok reports whether
// the raw value was parseable.
func CoerceCell(raw string, spec *FieldSpec) (any, bool) {
	switch spec.Type {
	case FieldText:
		return raw, true
	case FieldCode:
		return strings.ToUpper(raw), true
	case FieldNumeric, FieldMoney:
		return parseDecimalCell(raw)
	case FieldDate:
		t, ok := ParseDate(raw)
		return t, ok
	case FieldBool:
		b, ok := ParseBool(raw)
		return b, ok
	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, raw) {
				return ev, true
			}
		}
		return nil, false
	default:
		return raw, true
	}
}

// normalizeSeparators rewrites an amount to use "." as the decimal mark.
// When both "." and "," appear, the last one is the decimal mark and the
// other groups thousands. A lone comma is a decimal mark unless followed
// by exactly three digits.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma == -1:
		return s
	case lastDot == -1:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return s[:lastComma] + "." + s[lastComma+1:]
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	default:
		return strings.ReplaceAll(s, ",", "")
	}
}

func parseDecimalCell(raw string) (any, bool) {
	d, ok := ParseDecimal(raw)
	if !ok {
		return nil, false
	}
	return d, true
}

// coerceFailureMessage describes a failed coercion for a RowIssue.
func coerceFailureMessage(spec *FieldSpec) string {
	switch spec.Type {
	case FieldNumeric, FieldMoney:
		return "invalid number format"
	case FieldDate:
		return "invalid date format (use YYYY-MM-DD or similar)"
	case FieldBool:
		return "must be yes/no, true/false, or 1/0"
	case FieldEnum:
		return "value must be one of: " + strings.Join(spec.EnumValues, ", ")
	default:
		return "invalid value"
	}
}
