// Package policy holds the live audit policy: every configurable threshold,
// matching mode, and business rule the engines consult. There is one Store
// per process and no engine keeps a stale copy.
package policy

import (
	"invoice-audit-engine/internal/config"
)

// MatchingMode selects how invoices are matched against POs and receipts.
type MatchingMode string

const (
	ModeTwoWay   MatchingMode = "two_way"
	ModeThreeWay MatchingMode = "three_way"
	ModeFlexible MatchingMode = "flexible"
)

// ValidMatchingModes lists the accepted matching modes.
var ValidMatchingModes = []MatchingMode{ModeTwoWay, ModeThreeWay, ModeFlexible}

func (m MatchingMode) IsValid() bool {
	for _, v := range ValidMatchingModes {
		if m == v {
			return true
		}
	}
	return false
}

// RiskWeights are the factor weights for vendor risk scoring. They are
// normalized at read time so callers never depend on them summing to one.
type RiskWeights struct {
	AnomalyRate         float64 `json:"anomaly_rate"`
	CorrectionFrequency float64 `json:"correction_frequency"`
	ContractCompliance  float64 `json:"contract_compliance"`
	DuplicateHistory    float64 `json:"duplicate_history"`
	VolumeConsistency   float64 `json:"volume_consistency"`
}

// Policy is the full audit configuration. Engines read it through
// Store.Get on every run, never at construction time.
type Policy struct {
	Version int `json:"version"`

	MatchingMode MatchingMode `json:"matching_mode"`

	AmountTolerancePct        float64 `json:"amount_tolerance_pct"`
	PriceTolerancePct         float64 `json:"price_tolerance_pct"`
	OverInvoicePct            float64 `json:"over_invoice_pct"`
	TaxTolerancePct           float64 `json:"tax_tolerance_pct"`
	GRNQtyTolerancePct        float64 `json:"grn_qty_tolerance_pct"`
	GRNAmountTolerancePct     float64 `json:"grn_amount_tolerance_pct"`
	ShortShipmentThresholdPct float64 `json:"short_shipment_threshold_pct"`

	DuplicateWindowDays         int     `json:"duplicate_window_days"`
	DuplicateAmountTolerancePct float64 `json:"duplicate_amount_tolerance_pct"`

	HighSeverityPct float64 `json:"high_severity_pct"`
	MedSeverityPct  float64 `json:"med_severity_pct"`

	TriageEnabled            bool    `json:"triage_enabled"`
	AutoApproveMinConfidence float64 `json:"auto_approve_min_confidence"`
	AutoApproveMaxVendorRisk float64 `json:"auto_approve_max_vendor_risk"`
	BlockOnHighSeverity      bool    `json:"block_on_high_severity"`
	BlockMinVendorRisk       float64 `json:"block_min_vendor_risk"`
	RequirePOForAutoApprove  bool    `json:"require_po_for_auto_approve"`
	RequireGRNForAutoApprove bool    `json:"require_grn_for_auto_approve"`

	AutoApproveLimits       map[string]float64 `json:"auto_approve_limits"`
	DefaultAutoApproveLimit float64            `json:"default_auto_approve_limit"`

	VendorRiskWeights       RiskWeights `json:"vendor_risk_weights"`
	HighRiskThreshold       float64     `json:"high_risk_threshold"`
	MedRiskThreshold        float64     `json:"med_risk_threshold"`
	RiskToleranceTightening float64     `json:"risk_tolerance_tightening"`

	AutoDetectDocumentType  bool `json:"auto_detect_document_type"`
	RequireInvoiceNumber    bool `json:"require_invoice_number"`
	FlagRoundNumberInvoices bool `json:"flag_round_number_invoices"`
	MaxInvoiceAgeDays       int  `json:"max_invoice_age_days"`
	FlagWeekendInvoices     bool `json:"flag_weekend_invoices"`

	SLACriticalHours int `json:"sla_critical_hours"`
	SLAHighHours     int `json:"sla_high_hours"`
	SLAMediumHours   int `json:"sla_medium_hours"`
	SLALowHours      int `json:"sla_low_hours"`
}

// Default builds the base policy from configuration. It is the reset target
// and the starting point for every preset.
func Default(cfg *config.Config) Policy {
	return Policy{
		Version:      1,
		MatchingMode: MatchingMode(cfg.MatchingMode),

		AmountTolerancePct:        cfg.AmountTolerancePct,
		PriceTolerancePct:         cfg.PriceTolerancePct,
		OverInvoicePct:            cfg.OverInvoicePct,
		TaxTolerancePct:           cfg.TaxTolerancePct,
		GRNQtyTolerancePct:        cfg.GRNQtyTolerancePct,
		GRNAmountTolerancePct:     cfg.GRNAmountTolerancePct,
		ShortShipmentThresholdPct: cfg.ShortShipmentPct,

		DuplicateWindowDays:         cfg.DuplicateWindowDays,
		DuplicateAmountTolerancePct: cfg.DuplicateAmountTolPct,

		HighSeverityPct: cfg.HighSeverityPct,
		MedSeverityPct:  cfg.MedSeverityPct,

		TriageEnabled:            true,
		AutoApproveMinConfidence: cfg.AutoApproveConfidence,
		AutoApproveMaxVendorRisk: cfg.AutoApproveMaxRisk,
		BlockOnHighSeverity:      true,
		BlockMinVendorRisk:       cfg.BlockMinVendorRisk,
		RequirePOForAutoApprove:  true,
		RequireGRNForAutoApprove: false,

		AutoApproveLimits: map[string]float64{
			"USD": 100000, "EUR": 90000, "GBP": 80000,
			"INR": 7500000, "AED": 350000, "JPY": 15000000,
			"CAD": 130000, "AUD": 150000,
		},
		DefaultAutoApproveLimit: 100000,

		VendorRiskWeights: RiskWeights{
			AnomalyRate:         0.30,
			CorrectionFrequency: 0.15,
			ContractCompliance:  0.25,
			DuplicateHistory:    0.15,
			VolumeConsistency:   0.15,
		},
		HighRiskThreshold:       cfg.HighRiskThreshold,
		MedRiskThreshold:        cfg.MedRiskThreshold,
		RiskToleranceTightening: cfg.RiskTighteningFactor,

		AutoDetectDocumentType:  true,
		RequireInvoiceNumber:    true,
		FlagRoundNumberInvoices: cfg.FlagRoundNumbers,
		MaxInvoiceAgeDays:       cfg.MaxInvoiceAgeDays,
		FlagWeekendInvoices:     cfg.FlagWeekendInvoices,

		SLACriticalHours: 4,
		SLAHighHours:     24,
		SLAMediumHours:   72,
		SLALowHours:      168,
	}
}

// AutoApproveLimit returns the auto-approve cap for a currency.
func (p Policy) AutoApproveLimit(currency string) float64 {
	if limit, ok := p.AutoApproveLimits[currency]; ok {
		return limit
	}
	return p.DefaultAutoApproveLimit
}

// clone deep-copies the policy so callers can never mutate shared state.
func (p Policy) clone() Policy {
	out := p
	out.AutoApproveLimits = make(map[string]float64, len(p.AutoApproveLimits))
	for k, v := range p.AutoApproveLimits {
		out.AutoApproveLimits[k] = v
	}
	return out
}
