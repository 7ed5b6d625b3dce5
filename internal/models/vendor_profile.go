package models

import "time"

// CorrectionPattern aggregates how often a vendor's extracted documents
// needed manual field corrections. Fed into the correction-frequency risk
// factor.
type CorrectionPattern struct {
	ID              string    `json:"id"`
	Vendor          string    `json:"vendor"`
	Field           string    `json:"field"`
	CorrectionCount int       `json:"correction_count"`
	LastCorrectedAt time.Time `json:"last_corrected_at"`
}

// VendorProfile is the persisted risk snapshot for a vendor, refreshed
// whenever the vendor's risk is recomputed.
type VendorProfile struct {
	Vendor           string                `json:"vendor"`
	VendorNormalized string                `json:"vendor_normalized"`
	RiskScore        float64               `json:"risk_score"`
	RiskLevel        RiskLevel             `json:"risk_level"`
	RiskTrend        RiskTrend             `json:"risk_trend"`
	Factors          map[string]RiskFactor `json:"factors"`
	InvoiceCount     int                   `json:"invoice_count"`
	TotalSpend       float64               `json:"total_spend"`
	OpenAnomalies    int                   `json:"open_anomalies"`
	LastUpdated      time.Time             `json:"last_updated"`
}
