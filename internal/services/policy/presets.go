package policy

// Preset is a named bundle of overrides applied on top of the defaults.
type Preset struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Overrides   map[string]any `json:"overrides"`
}

// Presets are tuned starting points for common AP environments.
var Presets = map[string]Preset{
	"manufacturing": {
		Name:        "Manufacturing / Procurement",
		Description: "Strict three-way matching, tight tolerances for physical goods",
		Overrides: map[string]any{
			"matching_mode":                "three_way",
			"amount_tolerance_pct":         1.0,
			"price_tolerance_pct":          0.5,
			"over_invoice_pct":             1.0,
			"grn_qty_tolerance_pct":        1.0,
			"grn_amount_tolerance_pct":     1.0,
			"short_shipment_threshold_pct": 95.0,
			"duplicate_window_days":        180,
			"auto_approve_min_confidence":  90.0,
			"require_grn_for_auto_approve": true,
			"flag_round_number_invoices":   true,
		},
	},
	"services": {
		Name:        "Services / SaaS / Consulting",
		Description: "Two-way matching, no GRN required, wider tolerances for service invoices",
		Overrides: map[string]any{
			"matching_mode":                "two_way",
			"amount_tolerance_pct":         3.0,
			"price_tolerance_pct":          2.0,
			"over_invoice_pct":             5.0,
			"duplicate_window_days":        90,
			"auto_approve_min_confidence":  80.0,
			"require_grn_for_auto_approve": false,
			"flag_round_number_invoices":   false,
		},
	},
	"enterprise_default": {
		Name:        "Enterprise Default",
		Description: "Flexible matching, three-way when GRN available and two-way otherwise",
		Overrides: map[string]any{
			"matching_mode":                "flexible",
			"amount_tolerance_pct":         2.0,
			"price_tolerance_pct":          1.0,
			"over_invoice_pct":             2.0,
			"grn_qty_tolerance_pct":        2.0,
			"grn_amount_tolerance_pct":     2.0,
			"short_shipment_threshold_pct": 90.0,
			"duplicate_window_days":        90,
			"auto_approve_min_confidence":  85.0,
			"require_grn_for_auto_approve": false,
		},
	},
	"strict_audit": {
		Name:        "Strict Audit / Regulated Industry",
		Description: "Maximum controls with three-way matching required and tight tolerances",
		Overrides: map[string]any{
			"matching_mode":                "three_way",
			"amount_tolerance_pct":         0.5,
			"price_tolerance_pct":          0.5,
			"over_invoice_pct":             0.5,
			"grn_qty_tolerance_pct":        0.5,
			"grn_amount_tolerance_pct":     0.5,
			"short_shipment_threshold_pct": 98.0,
			"duplicate_window_days":        365,
			"auto_approve_min_confidence":  95.0,
			"auto_approve_max_vendor_risk": 25.0,
			"block_min_vendor_risk":        50.0,
			"require_grn_for_auto_approve": true,
			"flag_round_number_invoices":   true,
			"flag_weekend_invoices":        true,
			"max_invoice_age_days":         180,
		},
	},
}
