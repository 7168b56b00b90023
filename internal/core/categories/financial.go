package categories

import "github.com/Oss53pa/cockpit-core/internal/core"

func init() {
	core.RegisterCategory(&core.CategorySchema{
		Key:            "rents",
		Label:          "Quittancement",
		Table:          "rents",
		UniqueKey:      []string{"lease_code", "period"},
		MoneyPrecision: 2,
		PeriodField:    "period",
		Fields: []core.FieldSpec{
			{Name: "lease_code", Type: core.FieldCode, Required: true, RefTable: "lease"},
			periodField(),
			{Name: "invoiced_amount", Type: core.FieldMoney, Required: true, Rules: []core.Rule{nonNegative("invoiced_amount")}},
			{Name: "collected_amount", Type: core.FieldMoney, Rules: []core.Rule{nonNegative("collected_amount")}},
			{Name: "outstanding_amount", Type: core.FieldMoney},
			{Name: "currency", Type: core.FieldEnum, EnumValues: []string{"EUR", "USD", "GBP", "CHF"}, Default: "EUR"},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:            "revenue",
		Label:          "Chiffre d'affaires",
		Table:          "revenue",
		UniqueKey:      []string{"tenant_code", "period"},
		MoneyPrecision: 2,
		PeriodField:    "period",
		Fields: []core.FieldSpec{
			{Name: "tenant_code", Type: core.FieldCode, Required: true},
			periodField(),
			{Name: "declared_revenue", Type: core.FieldMoney, Required: true, Rules: []core.Rule{nonNegative("declared_revenue")}},
			{Name: "certified", Type: core.FieldBool, Default: false},
			{Name: "activity", Type: core.FieldText},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:            "charges",
		Label:          "Charges",
		Table:          "charges",
		UniqueKey:      []string{"charge_code", "period"},
		MoneyPrecision: 2,
		PeriodField:    "period",
		Fields: []core.FieldSpec{
			{Name: "charge_code", Type: core.FieldCode, Required: true},
			{Name: "label", Type: core.FieldText, Required: true},
			periodField(),
			{Name: "amount", Type: core.FieldMoney, Required: true},
			{Name: "recoverable", Type: core.FieldBool, Default: true},
			{Name: "nature", Type: core.FieldEnum, EnumValues: []string{"OPEX", "CAPEX", "TAX", "INSURANCE", "OTHER"}, Default: "OPEX"},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:            "budget",
		Label:          "Budget",
		Table:          "budget",
		UniqueKey:      []string{"line_code", "period"},
		MoneyPrecision: 2,
		PeriodField:    "period",
		Fields: []core.FieldSpec{
			{Name: "line_code", Type: core.FieldCode, Required: true},
			{Name: "label", Type: core.FieldText},
			periodField(),
			{Name: "budgeted_amount", Type: core.FieldMoney, Required: true},
			{Name: "actual_amount", Type: core.FieldMoney},
			{Name: "forecast_amount", Type: core.FieldMoney},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:            "valuation",
		Label:          "Valorisation",
		Table:          "valuation",
		UniqueKey:      []string{"period"},
		MoneyPrecision: 0,
		PeriodField:    "period",
		Fields: []core.FieldSpec{
			periodField(),
			{Name: "market_value", Type: core.FieldMoney, Required: true, Rules: []core.Rule{positive("market_value")}},
			{Name: "appraiser", Type: core.FieldText, Required: true},
			{Name: "capitalization_rate", Type: core.FieldNumeric, Rules: []core.Rule{percent("capitalization_rate"), rangeWarn("capitalization_rate", 2, 12)}},
			{Name: "method", Type: core.FieldEnum, EnumValues: []string{"DCF", "CAPITALIZATION", "COMPARABLE"}, Default: "CAPITALIZATION"},
		},
	})
}
