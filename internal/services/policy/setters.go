package policy

import (
	"invoice-audit-engine/internal/models"
)

// setters maps update keys to their validating assignment. Keys match the
// JSON tags of Policy. Percentage-like fields are clamped to [0,100] and
// day/hour counts to non-negative integers.
var setters = map[string]func(*Policy, any) error{
	"matching_mode": func(p *Policy, v any) error {
		s, ok := v.(string)
		if !ok || !MatchingMode(s).IsValid() {
			return models.NewValidationError("matching_mode", "must be one of two_way, three_way, flexible")
		}
		p.MatchingMode = MatchingMode(s)
		return nil
	},

	"amount_tolerance_pct":           pctSetter("amount_tolerance_pct", func(p *Policy, f float64) { p.AmountTolerancePct = f }),
	"price_tolerance_pct":            pctSetter("price_tolerance_pct", func(p *Policy, f float64) { p.PriceTolerancePct = f }),
	"over_invoice_pct":               pctSetter("over_invoice_pct", func(p *Policy, f float64) { p.OverInvoicePct = f }),
	"tax_tolerance_pct":              pctSetter("tax_tolerance_pct", func(p *Policy, f float64) { p.TaxTolerancePct = f }),
	"grn_qty_tolerance_pct":          pctSetter("grn_qty_tolerance_pct", func(p *Policy, f float64) { p.GRNQtyTolerancePct = f }),
	"grn_amount_tolerance_pct":       pctSetter("grn_amount_tolerance_pct", func(p *Policy, f float64) { p.GRNAmountTolerancePct = f }),
	"short_shipment_threshold_pct":   pctSetter("short_shipment_threshold_pct", func(p *Policy, f float64) { p.ShortShipmentThresholdPct = f }),
	"duplicate_amount_tolerance_pct": pctSetter("duplicate_amount_tolerance_pct", func(p *Policy, f float64) { p.DuplicateAmountTolerancePct = f }),
	"high_severity_pct":              pctSetter("high_severity_pct", func(p *Policy, f float64) { p.HighSeverityPct = f }),
	"med_severity_pct":               pctSetter("med_severity_pct", func(p *Policy, f float64) { p.MedSeverityPct = f }),
	"auto_approve_min_confidence":    pctSetter("auto_approve_min_confidence", func(p *Policy, f float64) { p.AutoApproveMinConfidence = f }),
	"auto_approve_max_vendor_risk":   pctSetter("auto_approve_max_vendor_risk", func(p *Policy, f float64) { p.AutoApproveMaxVendorRisk = f }),
	"block_min_vendor_risk":          pctSetter("block_min_vendor_risk", func(p *Policy, f float64) { p.BlockMinVendorRisk = f }),
	"high_risk_threshold":            pctSetter("high_risk_threshold", func(p *Policy, f float64) { p.HighRiskThreshold = f }),
	"med_risk_threshold":             pctSetter("med_risk_threshold", func(p *Policy, f float64) { p.MedRiskThreshold = f }),

	"risk_tolerance_tightening": func(p *Policy, v any) error {
		f, ok := asFloat(v)
		if !ok || f < 0 || f > 1 {
			return models.NewValidationError("risk_tolerance_tightening", "must be a number between 0 and 1")
		}
		p.RiskToleranceTightening = f
		return nil
	},

	"duplicate_window_days": daySetter("duplicate_window_days", func(p *Policy, n int) { p.DuplicateWindowDays = n }),
	"max_invoice_age_days":  daySetter("max_invoice_age_days", func(p *Policy, n int) { p.MaxInvoiceAgeDays = n }),
	"sla_critical_hours":    daySetter("sla_critical_hours", func(p *Policy, n int) { p.SLACriticalHours = n }),
	"sla_high_hours":        daySetter("sla_high_hours", func(p *Policy, n int) { p.SLAHighHours = n }),
	"sla_medium_hours":      daySetter("sla_medium_hours", func(p *Policy, n int) { p.SLAMediumHours = n }),
	"sla_low_hours":         daySetter("sla_low_hours", func(p *Policy, n int) { p.SLALowHours = n }),

	"triage_enabled":               boolSetter("triage_enabled", func(p *Policy, b bool) { p.TriageEnabled = b }),
	"block_on_high_severity":       boolSetter("block_on_high_severity", func(p *Policy, b bool) { p.BlockOnHighSeverity = b }),
	"require_po_for_auto_approve":  boolSetter("require_po_for_auto_approve", func(p *Policy, b bool) { p.RequirePOForAutoApprove = b }),
	"require_grn_for_auto_approve": boolSetter("require_grn_for_auto_approve", func(p *Policy, b bool) { p.RequireGRNForAutoApprove = b }),
	"auto_detect_document_type":    boolSetter("auto_detect_document_type", func(p *Policy, b bool) { p.AutoDetectDocumentType = b }),
	"require_invoice_number":       boolSetter("require_invoice_number", func(p *Policy, b bool) { p.RequireInvoiceNumber = b }),
	"flag_round_number_invoices":   boolSetter("flag_round_number_invoices", func(p *Policy, b bool) { p.FlagRoundNumberInvoices = b }),
	"flag_weekend_invoices":        boolSetter("flag_weekend_invoices", func(p *Policy, b bool) { p.FlagWeekendInvoices = b }),

	"default_auto_approve_limit": func(p *Policy, v any) error {
		f, ok := asFloat(v)
		if !ok || f < 0 {
			return models.NewValidationError("default_auto_approve_limit", "must be a non-negative number")
		}
		p.DefaultAutoApproveLimit = f
		return nil
	},

	"auto_approve_limits": func(p *Policy, v any) error {
		m, ok := v.(map[string]any)
		if !ok {
			return models.NewValidationError("auto_approve_limits", "must be a map of currency to limit")
		}
		merged := make(map[string]float64, len(p.AutoApproveLimits)+len(m))
		for k, f := range p.AutoApproveLimits {
			merged[k] = f
		}
		for ccy, raw := range m {
			f, ok := asFloat(raw)
			if !ok || f < 0 {
				return models.NewValidationError("auto_approve_limits", "limit for %s must be a non-negative number", ccy)
			}
			merged[ccy] = f
		}
		p.AutoApproveLimits = merged
		return nil
	},

	"vendor_risk_weights": func(p *Policy, v any) error {
		m, ok := v.(map[string]any)
		if !ok {
			return models.NewValidationError("vendor_risk_weights", "must be a map of factor to weight")
		}
		w := p.VendorRiskWeights
		for factor, raw := range m {
			f, ok := asFloat(raw)
			if !ok || f < 0 || f > 1 {
				return models.NewValidationError("vendor_risk_weights", "weight for %s must be between 0 and 1", factor)
			}
			switch factor {
			case "anomaly_rate":
				w.AnomalyRate = f
			case "correction_frequency":
				w.CorrectionFrequency = f
			case "contract_compliance":
				w.ContractCompliance = f
			case "duplicate_history":
				w.DuplicateHistory = f
			case "volume_consistency":
				w.VolumeConsistency = f
			default:
				return models.NewValidationError("vendor_risk_weights", "unknown factor %q", factor)
			}
		}
		p.VendorRiskWeights = w
		return nil
	},
}

func pctSetter(field string, assign func(*Policy, float64)) func(*Policy, any) error {
	return func(p *Policy, v any) error {
		f, ok := asFloat(v)
		if !ok {
			return models.NewValidationError(field, "must be a number")
		}
		if f < 0 {
			f = 0
		} else if f > 100 {
			f = 100
		}
		assign(p, f)
		return nil
	}
}

func daySetter(field string, assign func(*Policy, int)) func(*Policy, any) error {
	return func(p *Policy, v any) error {
		f, ok := asFloat(v)
		if !ok {
			return models.NewValidationError(field, "must be a number")
		}
		if f < 0 {
			f = 0
		}
		assign(p, int(f))
		return nil
	}
}

func boolSetter(field string, assign func(*Policy, bool)) func(*Policy, any) error {
	return func(p *Policy, v any) error {
		b, ok := v.(bool)
		if !ok {
			return models.NewValidationError(field, "must be a boolean")
		}
		assign(p, b)
		return nil
	}
}

// asFloat accepts the numeric shapes a decoded JSON body can carry.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
