package ingest

import (
	"fmt"
	"math"
	"strings"

	"invoice-audit-engine/internal/models"
)

// Factor weights. The seven signals sum to 1.0.
const (
	wCompleteness = 0.25
	wLineItems    = 0.20
	wMath         = 0.20
	wDates        = 0.10
	wAmounts      = 0.10
	wVendor       = 0.10
	wSelfAssess   = 0.05
)

// ComputeConfidence scores raw extraction output 0-100 across seven weighted
// signals and returns the per-factor breakdown for auditability. A missing
// vendor caps the score at 55 and a non-positive total on an invoice or PO
// caps it at 50, no matter how clean the rest looks.
func ComputeConfidence(raw RawExtraction, docType models.DocumentType) (float64, map[string]models.ConfidenceFactor) {
	factors := map[string]models.ConfidenceFactor{}

	factors["field_completeness"] = fieldCompleteness(raw, docType)
	factors["line_item_integrity"] = lineItemIntegrity(raw.LineItems, docType)
	factors["math_consistency"] = mathConsistency(raw)
	factors["date_validity"] = dateValidity(raw, docType)
	factors["amount_plausibility"] = amountPlausibility(raw, docType)
	factors["vendor_identification"] = vendorIdentification(raw.VendorName)
	factors["ai_self_assessment"] = selfAssessment(raw.SelfAssessedConfidence)

	weighted := 0.0
	for _, f := range factors {
		weighted += f.Score * f.Weight
	}
	score := math.Round(math.Max(0, math.Min(100, weighted))*10) / 10

	if vendorMissing(raw.VendorName) {
		score = math.Min(score, 55)
	}
	if raw.TotalAmount <= 0 && (docType == models.DocumentTypeInvoice || docType == models.DocumentTypePurchaseOrder) {
		score = math.Min(score, 50)
	}
	return score, factors
}

func fieldCompleteness(raw RawExtraction, docType models.DocumentType) models.ConfidenceFactor {
	checks := []bool{
		raw.VendorName != "",
		raw.DocumentNumber != "",
		raw.DocumentType != "",
		raw.TotalAmount != 0,
		raw.Currency != "",
	}
	switch docType {
	case models.DocumentTypeInvoice:
		checks = append(checks, raw.IssueDate != "", raw.DueDate != "", raw.PoReference != "")
	case models.DocumentTypeContract:
		checks = append(checks, raw.ContractTerms != nil, len(raw.PricingTerms) > 0)
	case models.DocumentTypePurchaseOrder:
		checks = append(checks, raw.IssueDate != "")
	}

	present := 0
	for _, ok := range checks {
		if ok {
			present++
		}
	}
	return models.ConfidenceFactor{
		Score:  math.Round(float64(present) / float64(len(checks)) * 100),
		Weight: wCompleteness,
		Detail: fmt.Sprintf("%d/%d required fields present", present, len(checks)),
	}
}

func lineItemIntegrity(lines []RawLineItem, docType models.DocumentType) models.ConfidenceFactor {
	if len(lines) == 0 {
		score := 40.0
		if docType == models.DocumentTypeContract {
			score = 30
		}
		return models.ConfidenceFactor{Score: score, Weight: wLineItems, Detail: "No line items extracted"}
	}

	valid := 0.0
	for _, l := range lines {
		descOK := l.Description != "" && l.Description != "?"
		switch {
		case descOK && l.Quantity > 0 && l.UnitPrice > 0 && l.Total > 0:
			valid++
		case descOK && l.Total > 0:
			valid += 0.5
		}
	}
	return models.ConfidenceFactor{
		Score:  math.Round(valid / float64(len(lines)) * 100),
		Weight: wLineItems,
		Detail: fmt.Sprintf("%.1f/%d line items fully valid", valid, len(lines)),
	}
}

func mathConsistency(raw RawExtraction) models.ConfidenceFactor {
	score := 100.0
	var issues []string

	subtotal := raw.Subtotal
	if subtotal == 0 {
		subtotal = raw.TotalAmount
	}

	if len(raw.LineItems) > 0 && subtotal > 0 {
		sum := 0.0
		for _, l := range raw.LineItems {
			sum += l.Total
		}
		if sum > 0 {
			diffPct := math.Abs(sum-subtotal) / math.Max(subtotal, 1) * 100
			if diffPct > 5 {
				score -= 40
				issues = append(issues, fmt.Sprintf("Line items sum (%.2f) differs from subtotal (%.2f) by %.1f%%", sum, subtotal, diffPct))
			} else if diffPct > 1 {
				score -= 15
				issues = append(issues, fmt.Sprintf("Minor rounding diff: %.1f%%", diffPct))
			}
		}
	}

	if len(raw.TaxDetails) > 0 && subtotal > 0 && raw.TotalAmount > 0 {
		expected := subtotal
		for _, t := range raw.TaxDetails {
			expected += t.Amount
		}
		diffPct := math.Abs(expected-raw.TotalAmount) / math.Max(raw.TotalAmount, 1) * 100
		if diffPct > 5 {
			score -= 40
			issues = append(issues, fmt.Sprintf("subtotal + tax (%.2f) differs from total (%.2f)", expected, raw.TotalAmount))
		} else if diffPct > 1 {
			score -= 10
		}
	}

	detail := "All totals consistent"
	if len(issues) > 0 {
		detail = strings.Join(issues, "; ")
	}
	return models.ConfidenceFactor{Score: math.Max(0, score), Weight: wMath, Detail: detail}
}

func dateValidity(raw RawExtraction, docType models.DocumentType) models.ConfidenceFactor {
	var values []string
	if docType == models.DocumentTypeContract {
		if raw.ContractTerms != nil {
			values = []string{raw.ContractTerms.EffectiveDate, raw.ContractTerms.ExpiryDate}
		}
	} else {
		values = []string{raw.IssueDate, raw.DueDate}
	}

	score := 100.0
	var issues []string
	for _, v := range values {
		if v == "" {
			continue
		}
		d, ok := models.ParseDate(v)
		if !ok {
			score -= 30
			issues = append(issues, "Unparseable date: "+v)
			continue
		}
		if d.Year() < 2020 || d.Year() > 2030 {
			score -= 20
			issues = append(issues, "Suspicious date: "+v)
		}
	}

	detail := "Dates valid"
	if len(issues) > 0 {
		detail = strings.Join(issues, "; ")
	}
	return models.ConfidenceFactor{Score: math.Max(0, score), Weight: wDates, Detail: detail}
}

func amountPlausibility(raw RawExtraction, docType models.DocumentType) models.ConfidenceFactor {
	score := 100.0
	var issues []string

	if raw.TotalAmount <= 0 && (docType == models.DocumentTypeInvoice || docType == models.DocumentTypePurchaseOrder) {
		score = 20
		issues = append(issues, fmt.Sprintf("Total amount is %.2f — expected positive", raw.TotalAmount))
	} else if raw.TotalAmount > 100_000_000 {
		score = 50
		issues = append(issues, fmt.Sprintf("Unusually large amount: %.2f", raw.TotalAmount))
	}

	negPrices := 0
	for _, l := range raw.LineItems {
		if l.UnitPrice < 0 {
			negPrices++
		}
	}
	if negPrices > 0 {
		score -= 25
		issues = append(issues, fmt.Sprintf("%d line items with negative unit prices", negPrices))
	}

	detail := "Amounts plausible"
	if len(issues) > 0 {
		detail = strings.Join(issues, "; ")
	}
	return models.ConfidenceFactor{Score: math.Max(0, score), Weight: wAmounts, Detail: detail}
}

func vendorMissing(vendor string) bool {
	switch strings.ToLower(vendor) {
	case "", "unknown", "n/a", "none":
		return true
	}
	return false
}

func vendorIdentification(vendor string) models.ConfidenceFactor {
	switch {
	case vendorMissing(vendor):
		return models.ConfidenceFactor{Score: 10, Weight: wVendor, Detail: "Vendor name missing or unknown"}
	case len(vendor) < 3 || allDigits(vendor):
		return models.ConfidenceFactor{Score: 40, Weight: wVendor,
			Detail: fmt.Sprintf("Vendor name appears invalid: %q", vendor)}
	default:
		return models.ConfidenceFactor{Score: 100, Weight: wVendor, Detail: "Vendor identified: " + vendor}
	}
}

func allDigits(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func selfAssessment(conf float64) models.ConfidenceFactor {
	if conf <= 0 {
		conf = 85
	}
	return models.ConfidenceFactor{
		Score:  math.Round(conf),
		Weight: wSelfAssess,
		Detail: fmt.Sprintf("Extraction model self-reported: %.0f%%", conf),
	}
}
