// Package categories registers the built-in import category schemas.
// Importing it for side effects populates the core registry:
//
//	import _ "github.com/Oss53pa/cockpit-core/internal/core/categories"
//
// Each file groups related categories; shared business rules live here.
package categories

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Oss53pa/cockpit-core/internal/core"
)

// nonNegative blocks negative numeric and monetary values.
func nonNegative(name string) core.Rule {
	return core.Rule{
		Name:     name + "_non_negative",
		Severity: core.SeverityError,
		Check: func(v any) string {
			d, ok := v.(decimal.Decimal)
			if !ok {
				return ""
			}
			if d.IsNegative() {
				return fmt.Sprintf("%s must not be negative", name)
			}
			return ""
		},
	}
}

// positive blocks zero and negative values.
func positive(name string) core.Rule {
	return core.Rule{
		Name:     name + "_positive",
		Severity: core.SeverityError,
		Check: func(v any) string {
			d, ok := v.(decimal.Decimal)
			if !ok {
				return ""
			}
			if !d.IsPositive() {
				return fmt.Sprintf("%s must be greater than zero", name)
			}
			return ""
		},
	}
}

// rangeWarn warns, without blocking, when a value falls outside the
// plausible range for the field.
func rangeWarn(name string, min, max float64) core.Rule {
	lo := decimal.NewFromFloat(min)
	hi := decimal.NewFromFloat(max)
	return core.Rule{
		Name:     name + "_plausible_range",
		Severity: core.SeverityWarning,
		Check: func(v any) string {
			d, ok := v.(decimal.Decimal)
			if !ok {
				return ""
			}
			if d.LessThan(lo) || d.GreaterThan(hi) {
				return fmt.Sprintf("%s %s outside expected range [%s, %s]", name, d, lo, hi)
			}
			return ""
		},
	}
}

// dateBetween blocks dates outside a plausible window.
func dateBetween(name string, minYear, maxYear int) core.Rule {
	return core.Rule{
		Name:     name + "_plausible_date",
		Severity: core.SeverityError,
		Check: func(v any) string {
			t, ok := v.(time.Time)
			if !ok {
				return ""
			}
			if t.Year() < minYear || t.Year() > maxYear {
				return fmt.Sprintf("%s %s outside plausible range %d-%d", name, t.Format("2006-01-02"), minYear, maxYear)
			}
			return ""
		},
	}
}

// percent warns when a declared rate falls outside 0-100.
func percent(name string) core.Rule {
	hundred := decimal.NewFromInt(100)
	return core.Rule{
		Name:     name + "_percent",
		Severity: core.SeverityWarning,
		Check: func(v any) string {
			d, ok := v.(decimal.Decimal)
			if !ok {
				return ""
			}
			if d.IsNegative() || d.GreaterThan(hundred) {
				return fmt.Sprintf("%s %s is not a percentage between 0 and 100", name, d)
			}
			return ""
		},
	}
}

// collapseSpaces squeezes runs of internal whitespace out of short codes
// before coercion. Exports often pad codes for display.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func periodField() core.FieldSpec {
	return core.FieldSpec{
		Name:     "period",
		Type:     core.FieldDate,
		Required: true,
		Rules:    []core.Rule{dateBetween("period", 1990, 2100)},
	}
}
