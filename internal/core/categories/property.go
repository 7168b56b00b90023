package categories

import "github.com/Oss53pa/cockpit-core/internal/core"

func init() {
	core.RegisterCategory(&core.CategorySchema{
		Key:            "rentroll",
		Label:          "Etat locatif",
		Table:          "rentroll",
		UniqueKey:      []string{"unit_code", "period"},
		MoneyPrecision: 2,
		PeriodField:    "period",
		Fields: []core.FieldSpec{
			{Name: "unit_code", Type: core.FieldCode, Required: true, Normalizer: collapseSpaces},
			{Name: "tenant_name", Type: core.FieldText, Required: true},
			periodField(),
			{Name: "annual_rent", Type: core.FieldMoney, Required: true, Rules: []core.Rule{nonNegative("annual_rent")}},
			{Name: "surface_sqm", Type: core.FieldNumeric, Rules: []core.Rule{positive("surface_sqm"), rangeWarn("surface_sqm", 5, 50000)}},
			{Name: "lease_start", Type: core.FieldDate, Rules: []core.Rule{dateBetween("lease_start", 1950, 2100)}},
			{Name: "lease_end", Type: core.FieldDate, Rules: []core.Rule{dateBetween("lease_end", 1950, 2150)}},
			{Name: "vacant", Type: core.FieldBool, Default: false},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:            "lease",
		Label:          "Baux",
		Table:          "lease",
		UniqueKey:      []string{"lease_code"},
		MoneyPrecision: 2,
		Fields: []core.FieldSpec{
			{Name: "lease_code", Type: core.FieldCode, Required: true},
			{Name: "tenant_name", Type: core.FieldText, Required: true},
			{Name: "unit_code", Type: core.FieldCode, Required: true},
			{Name: "lease_type", Type: core.FieldEnum, EnumValues: []string{"COMMERCIAL", "DEROGATORY", "CIVIL", "PRECARIOUS"}, Default: "COMMERCIAL"},
			{Name: "start_date", Type: core.FieldDate, Required: true, Rules: []core.Rule{dateBetween("start_date", 1950, 2100)}},
			{Name: "end_date", Type: core.FieldDate, Rules: []core.Rule{dateBetween("end_date", 1950, 2150)}},
			{Name: "base_rent", Type: core.FieldMoney, Required: true, Rules: []core.Rule{nonNegative("base_rent")}},
			{Name: "security_deposit", Type: core.FieldMoney, Rules: []core.Rule{nonNegative("security_deposit")}},
			{Name: "indexation", Type: core.FieldEnum, EnumValues: []string{"ILC", "ILAT", "ICC", "NONE"}, Default: "ILC"},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:            "surfaces",
		Label:          "Surfaces",
		Table:          "surfaces",
		UniqueKey:      []string{"unit_code"},
		Fields: []core.FieldSpec{
			{Name: "unit_code", Type: core.FieldCode, Required: true},
			{Name: "level", Type: core.FieldText},
			{Name: "gla_sqm", Type: core.FieldNumeric, Required: true, Rules: []core.Rule{positive("gla_sqm"), rangeWarn("gla_sqm", 5, 50000)}},
			{Name: "sales_area_sqm", Type: core.FieldNumeric, Rules: []core.Rule{nonNegative("sales_area_sqm")}},
			{Name: "storage_sqm", Type: core.FieldNumeric, Rules: []core.Rule{nonNegative("storage_sqm")}},
			{Name: "use", Type: core.FieldEnum, EnumValues: []string{"RETAIL", "OFFICE", "STORAGE", "PARKING", "COMMON"}, Default: "RETAIL"},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:            "works",
		Label:          "Travaux",
		Table:          "works",
		UniqueKey:      []string{"work_order", "period"},
		MoneyPrecision: 2,
		PeriodField:    "period",
		Fields: []core.FieldSpec{
			{Name: "work_order", Type: core.FieldCode, Required: true},
			{Name: "description", Type: core.FieldText, Required: true},
			periodField(),
			{Name: "budgeted_cost", Type: core.FieldMoney, Rules: []core.Rule{nonNegative("budgeted_cost")}},
			{Name: "actual_cost", Type: core.FieldMoney, Rules: []core.Rule{nonNegative("actual_cost")}},
			{Name: "status", Type: core.FieldEnum, EnumValues: []string{"PLANNED", "ONGOING", "DONE", "CANCELLED"}, Default: "PLANNED"},
			{Name: "completion", Type: core.FieldNumeric, Rules: []core.Rule{percent("completion")}},
		},
	})
}
