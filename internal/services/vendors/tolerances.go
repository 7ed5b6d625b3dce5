package vendors

import (
	"math"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
)

// Tolerances are the risk-adjusted detection thresholds for one vendor.
type Tolerances struct {
	AmountTolerancePct float64          `json:"amount_tolerance_pct"`
	PriceTolerancePct  float64          `json:"price_tolerance_pct"`
	RiskAdjusted       bool             `json:"risk_adjusted"`
	RiskScore          float64          `json:"risk_score"`
	RiskLevel          models.RiskLevel `json:"risk_level"`
}

// DynamicTolerances tightens the policy tolerances for risky vendors.
// Tightening scales linearly with the risk score, floored at 30% of the
// configured tolerance so thresholds never collapse to zero.
func DynamicTolerances(vendorName string, in RiskInputs, pol policy.Policy) Tolerances {
	risk := ComputeRiskScore(vendorName, in, pol)
	tightening := (risk.Score / 100.0) * pol.RiskToleranceTightening
	factor := math.Max(0.3, 1.0-tightening)
	return Tolerances{
		AmountTolerancePct: round3(pol.AmountTolerancePct * factor),
		PriceTolerancePct:  round3(pol.PriceTolerancePct * factor),
		RiskAdjusted:       risk.Score > 15,
		RiskScore:          risk.Score,
		RiskLevel:          risk.Level,
	}
}

// SeverityForAmount bands an anomaly's severity by the share of the invoice
// at risk.
func SeverityForAmount(amountAtRisk, invoiceAmount float64, pol policy.Policy) models.Severity {
	if invoiceAmount <= 0 {
		return models.SeverityMedium
	}
	pct := math.Abs(amountAtRisk) / invoiceAmount * 100
	switch {
	case pct >= pol.HighSeverityPct:
		return models.SeverityHigh
	case pct >= pol.MedSeverityPct:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// FindContract returns the best active or pending contract for a vendor,
// requiring at least 0.6 similarity.
func FindContract(vendorName string, contracts []models.Document) *models.Document {
	var best *models.Document
	bestScore := 0.0
	for i := range contracts {
		c := &contracts[i]
		if c.Status != models.StatusActive && c.Status != models.StatusPending {
			continue
		}
		score := Similarity(vendorName, c.Vendor)
		if score > bestScore && score >= 0.6 {
			best, bestScore = c, score
		}
	}
	return best
}

func round3(f float64) float64 { return math.Round(f*1000) / 1000 }
