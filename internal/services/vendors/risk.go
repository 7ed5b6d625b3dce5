package vendors

import (
	"fmt"
	"math"
	"sort"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
)

// RiskInputs is the vendor history a risk computation reads. Callers pass
// snapshot slices; the computation never touches shared state.
type RiskInputs struct {
	Invoices    []models.Document
	Anomalies   []models.Anomaly
	Corrections []models.CorrectionPattern
	Contracts   []models.Document
}

// ComputeRiskScore scores a vendor 0-100 from five weighted factors.
// Higher is riskier. Risk is recomputed from the snapshot on every call so
// a policy weight change takes effect immediately.
func ComputeRiskScore(vendorName string, in RiskInputs, pol policy.Policy) models.VendorRisk {
	w := pol.VendorRiskWeights
	if Normalize(vendorName) == "" {
		return models.VendorRisk{Score: 50, Level: models.RiskLevelMedium, Trend: models.RiskTrendStable}
	}

	var invoices []models.Document
	for _, d := range in.Invoices {
		if Similarity(d.Vendor, vendorName) >= 0.7 {
			invoices = append(invoices, d)
		}
	}
	var anomalies []models.Anomaly
	for _, a := range in.Anomalies {
		if Similarity(a.Vendor, vendorName) >= 0.7 {
			anomalies = append(anomalies, a)
		}
	}
	var corrections []models.CorrectionPattern
	for _, c := range in.Corrections {
		if Similarity(c.Vendor, vendorName) >= 0.7 {
			corrections = append(corrections, c)
		}
	}
	var contracts []models.Document
	for _, c := range in.Contracts {
		if Similarity(c.Vendor, vendorName) >= 0.7 {
			contracts = append(contracts, c)
		}
	}

	invCount := len(invoices)
	if invCount == 0 {
		return newVendorRisk(contracts, w)
	}

	// Factor 1: share of invoices with open non-discount anomalies,
	// amplified by severity mix.
	var real []models.Anomaly
	for _, a := range anomalies {
		if a.Type != models.AnomalyEarlyPaymentDiscount {
			real = append(real, a)
		}
	}
	flagged := map[string]bool{}
	severityWeight := 0.0
	openHigh := 0
	openCount := 0
	for _, a := range real {
		if a.Status != models.AnomalyStatusOpen {
			continue
		}
		openCount++
		flagged[a.InvoiceID] = true
		switch a.Severity {
		case models.SeverityHigh:
			severityWeight += 3
			openHigh++
		case models.SeverityMedium:
			severityWeight += 1.5
		default:
			severityWeight += 0.5
		}
	}
	anomRate := float64(len(flagged)) / float64(invCount)
	severityAdj := math.Min(severityWeight/float64(invCount), 2.0)
	anomalyScore := math.Min(100, anomRate*100*(1+severityAdj*0.5))
	anomalyDetail := fmt.Sprintf("%d/%d invoices had anomalies", len(flagged), invCount)
	if severityWeight > 0 {
		anomalyDetail += fmt.Sprintf(" (%d high severity)", openHigh)
	}

	// Factor 2: correction frequency.
	correctionCount := 0
	for _, c := range corrections {
		n := c.CorrectionCount
		if n == 0 {
			n = 1
		}
		correctionCount += n
	}
	correctionScore := math.Min(100, float64(correctionCount)/float64(invCount)*40)
	correctionDetail := fmt.Sprintf("%d corrections across %d invoices", correctionCount, invCount)

	contractScore, contractDetail := contractCompliance(contracts)

	// Factor 4: duplicate submission history.
	dupCount := 0
	for _, a := range anomalies {
		if a.Type == models.AnomalyDuplicateInvoice {
			dupCount++
		}
	}
	dupScore := math.Min(100, float64(dupCount)*30)
	dupDetail := "No duplicates"
	if dupCount > 0 {
		dupDetail = fmt.Sprintf("%d duplicate submissions detected", dupCount)
	}

	// Factor 5: invoice amount volatility (coefficient of variation).
	volumeScore, volumeDetail := volumeConsistency(invoices)

	raw := anomalyScore*w.AnomalyRate +
		correctionScore*w.CorrectionFrequency +
		contractScore*w.ContractCompliance +
		dupScore*w.DuplicateHistory +
		volumeScore*w.VolumeConsistency
	score := math.Max(0, math.Min(100, round1(raw)))

	level := models.RiskLevelLow
	if score >= pol.HighRiskThreshold {
		level = models.RiskLevelHigh
	} else if score >= pol.MedRiskThreshold {
		level = models.RiskLevelMedium
	}

	totalSpend := 0.0
	for _, d := range invoices {
		totalSpend += d.Amount
	}

	return models.VendorRisk{
		Score:             score,
		Level:             level,
		Trend:             detectTrend(invoices, real),
		InvoiceCount:      invCount,
		TotalSpend:        round2(totalSpend),
		OpenAnomalyCount:  openCount,
		TotalAnomalyCount: len(real),
		Factors: map[string]models.RiskFactor{
			"anomaly_rate":         {Score: round1(anomalyScore), Weight: w.AnomalyRate, Detail: anomalyDetail},
			"correction_frequency": {Score: round1(correctionScore), Weight: w.CorrectionFrequency, Detail: correctionDetail},
			"contract_compliance":  {Score: round1(contractScore), Weight: w.ContractCompliance, Detail: contractDetail},
			"duplicate_history":    {Score: round1(dupScore), Weight: w.DuplicateHistory, Detail: dupDetail},
			"volume_consistency":   {Score: round1(volumeScore), Weight: w.VolumeConsistency, Detail: volumeDetail},
		},
	}
}

// newVendorRisk is the neutral assessment for a vendor with no invoice
// history. Having a contract on file lowers the baseline.
func newVendorRisk(contracts []models.Document, w policy.RiskWeights) models.VendorRisk {
	contractScore := 55.0
	contractDetail := "No contract on file"
	if len(contracts) > 0 {
		contractScore = 20
		contractDetail = "Contract exists"
	}
	return models.VendorRisk{
		Score: round1(contractScore*w.ContractCompliance + 15),
		Level: models.RiskLevelLow,
		Trend: models.RiskTrendNew,
		Factors: map[string]models.RiskFactor{
			"anomaly_rate":         {Weight: w.AnomalyRate, Detail: "New vendor, no invoice history"},
			"correction_frequency": {Weight: w.CorrectionFrequency, Detail: "No corrections yet"},
			"contract_compliance":  {Score: contractScore, Weight: w.ContractCompliance, Detail: contractDetail},
			"duplicate_history":    {Weight: w.DuplicateHistory, Detail: "No history"},
			"volume_consistency":   {Weight: w.VolumeConsistency, Detail: "No invoices to assess"},
		},
	}
}

func contractCompliance(contracts []models.Document) (float64, string) {
	if len(contracts) == 0 {
		return 55, "No contract on file, pricing unverified"
	}
	best := contracts[0]
	hasPricing := len(best.PricingTerms) > 0
	var expiry string
	if best.ContractTerms != nil {
		expiry = best.ContractTerms.ExpiryDate
	}
	if expiry != "" {
		expDate, ok := models.ParseDate(expiry)
		if !ok {
			return 40, "Contract date parse error"
		}
		now := time.Now()
		if expDate.Before(now) {
			daysExpired := int(now.Sub(expDate).Hours() / 24)
			return math.Min(100, 60+float64(daysExpired)*0.2),
				fmt.Sprintf("Contract expired %d days ago", daysExpired)
		}
		daysRemaining := int(expDate.Sub(now).Hours() / 24)
		detail := fmt.Sprintf("Active, expires in %d days", daysRemaining)
		if hasPricing {
			return 10, detail + ", pricing enforced"
		}
		return 25, detail
	}
	if hasPricing {
		return 20, "Contract active, pricing terms defined"
	}
	return 35, "Contract exists but no pricing terms"
}

func volumeConsistency(invoices []models.Document) (float64, string) {
	if len(invoices) < 3 {
		return 40, fmt.Sprintf("Insufficient data (%d invoices)", len(invoices))
	}
	amounts := make([]float64, len(invoices))
	mean := 0.0
	for i, d := range invoices {
		amounts[i] = d.EffectiveSubtotal()
		mean += amounts[i]
	}
	mean /= float64(len(amounts))
	if mean <= 0 {
		return 30, "Cannot assess volume pattern"
	}
	variance := 0.0
	for _, a := range amounts {
		variance += (a - mean) * (a - mean)
	}
	variance /= float64(len(amounts))
	cv := math.Sqrt(variance) / mean
	return math.Min(100, cv*60), fmt.Sprintf("Amount CV: %.2f across %d invoices", cv, len(invoices))
}

// detectTrend compares open-anomaly rates of the three most recent invoices
// against the rest. Needs six invoices before calling a direction.
func detectTrend(invoices []models.Document, anomalies []models.Anomaly) models.RiskTrend {
	if len(invoices) < 6 {
		return models.RiskTrendStable
	}
	sorted := make([]models.Document, len(invoices))
	copy(sorted, invoices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ExtractedAt.Before(sorted[j].ExtractedAt)
	})
	recentIDs := map[string]bool{}
	olderIDs := map[string]bool{}
	for i, d := range sorted {
		if i >= len(sorted)-3 {
			recentIDs[d.ID] = true
		} else {
			olderIDs[d.ID] = true
		}
	}
	recent, older := 0, 0
	for _, a := range anomalies {
		if a.Status != models.AnomalyStatusOpen {
			continue
		}
		if recentIDs[a.InvoiceID] {
			recent++
		} else if olderIDs[a.InvoiceID] {
			older++
		}
	}
	recentRate := float64(recent) / 3
	olderRate := float64(older) / math.Max(float64(len(olderIDs)), 1)
	switch {
	case recentRate > olderRate*1.5:
		return models.RiskTrendWorsening
	case recentRate < olderRate*0.5:
		return models.RiskTrendImproving
	default:
		return models.RiskTrendStable
	}
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }
