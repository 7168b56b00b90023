package categories

import "github.com/Oss53pa/cockpit-core/internal/core"

func init() {
	core.RegisterCategory(&core.CategorySchema{
		Key:         "foottraffic",
		Label:       "Frequentation",
		Table:       "foottraffic",
		UniqueKey:   []string{"entrance_code", "period"},
		PeriodField: "period",
		Fields: []core.FieldSpec{
			{Name: "entrance_code", Type: core.FieldCode, Required: true},
			periodField(),
			{Name: "visitor_count", Type: core.FieldNumeric, Required: true, Rules: []core.Rule{nonNegative("visitor_count"), rangeWarn("visitor_count", 0, 5_000_000)}},
			{Name: "counting_method", Type: core.FieldEnum, EnumValues: []string{"SENSOR", "MANUAL", "ESTIMATE"}, Default: "SENSOR"},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:            "energy",
		Label:          "Energie",
		Table:          "energy",
		UniqueKey:      []string{"meter_code", "period"},
		MoneyPrecision: 2,
		PeriodField:    "period",
		Fields: []core.FieldSpec{
			{Name: "meter_code", Type: core.FieldCode, Required: true},
			periodField(),
			{Name: "fluid", Type: core.FieldEnum, Required: true, EnumValues: []string{"ELECTRICITY", "GAS", "WATER", "HEAT"}},
			{Name: "consumption", Type: core.FieldNumeric, Required: true, Rules: []core.Rule{nonNegative("consumption")}},
			{Name: "unit", Type: core.FieldEnum, EnumValues: []string{"KWH", "MWH", "M3"}, Default: "KWH"},
			{Name: "cost", Type: core.FieldMoney, Rules: []core.Rule{nonNegative("cost")}},
		},
	})

	core.RegisterCategory(&core.CategorySchema{
		Key:         "satisfaction",
		Label:       "Satisfaction",
		Table:       "satisfaction",
		UniqueKey:   []string{"survey_code", "period"},
		PeriodField: "period",
		Fields: []core.FieldSpec{
			{Name: "survey_code", Type: core.FieldCode, Required: true},
			periodField(),
			{Name: "respondents", Type: core.FieldNumeric, Required: true, Rules: []core.Rule{positive("respondents")}},
			{Name: "score", Type: core.FieldNumeric, Required: true, Rules: []core.Rule{rangeWarn("score", 0, 10)}},
			{Name: "nps", Type: core.FieldNumeric, Rules: []core.Rule{rangeWarn("nps", -100, 100)}},
			{Name: "audience", Type: core.FieldEnum, EnumValues: []string{"VISITORS", "TENANTS", "STAFF"}, Default: "VISITORS"},
		},
	})
}
