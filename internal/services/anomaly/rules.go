// Package anomaly runs the deterministic detection rules against invoices
// and their matched purchase-order, contract, and goods-receipt context.
// Rules are independent and stateless; the engine assembles context, applies
// vendor-risk-tightened tolerances, and keeps regeneration idempotent.
package anomaly

import (
	"fmt"
	"math"
	"strings"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/vendors"
)

// taxCeilings are the maximum plausible effective tax rates by currency,
// approximating the jurisdictions each currency implies.
var taxCeilings = map[string]float64{
	"USD": 15, "GBP": 25, "EUR": 25, "INR": 40,
	"BRL": 50, "CNY": 20, "JPY": 15,
}

const defaultTaxCeiling = 15

// Context is everything one invoice is audited against. Optional members
// are nil when absent; every rule tolerates that.
type Context struct {
	Invoice    models.Document
	PO         *models.Document
	Contract   *models.Document
	History    []models.Document
	GRN        *models.GRNInfo
	Tolerances *vendors.Tolerances
}

// DetectRuleBased evaluates the non-GRN rules and returns raw anomalies.
// The engine stamps IDs, vendor, and timestamps afterwards.
func DetectRuleBased(c Context, pol policy.Policy) []models.Anomaly {
	var out []models.Anomaly
	inv := c.Invoice
	cur := inv.Currency
	if cur == "" {
		cur = "USD"
	}
	sym := vendors.CurrencySymbol(cur)
	invTotal := inv.Amount
	invSubtotal := inv.EffectiveSubtotal()

	amtTolPct := pol.AmountTolerancePct
	prcTolPct := pol.PriceTolerancePct
	riskNote := ""
	if c.Tolerances != nil {
		amtTolPct = c.Tolerances.AmountTolerancePct
		prcTolPct = c.Tolerances.PriceTolerancePct
		if c.Tolerances.RiskAdjusted {
			riskNote = fmt.Sprintf(" [Tightened: vendor risk %s (%.0f)]",
				c.Tolerances.RiskLevel, c.Tolerances.RiskScore)
		}
	}

	// 1. Line items must sum to the subtotal.
	liSum := 0.0
	for _, li := range inv.LineItems {
		liSum += li.Total
	}
	if liSum > 0 && invSubtotal > 0 {
		diff := math.Abs(liSum - invSubtotal)
		if diff > 0.50 {
			out = append(out, models.Anomaly{
				Type:           models.AnomalyLineItemTotalMismatch,
				Severity:       vendors.SeverityForAmount(diff, invSubtotal, pol),
				Description:    fmt.Sprintf("Sum of line items (%s%.2f) does not match subtotal (%s%.2f). Difference: %s%.2f", sym, liSum, sym, invSubtotal, sym, diff),
				AmountAtRisk:   round2(diff),
				Recommendation: "Verify line item totals. Possible hidden charges or calculation error.",
			})
		}
	}

	// 2. Missing PO: no reference, or a reference nothing matched.
	if c.PO == nil && inv.PoReference == "" {
		out = append(out, models.Anomaly{
			Type:           models.AnomalyMissingPO,
			Severity:       models.SeverityMedium,
			Description:    fmt.Sprintf("Invoice %s has no purchase order reference.", orUnknown(inv.InvoiceNumber)),
			AmountAtRisk:   invTotal,
			Recommendation: "Verify this purchase was authorized before payment.",
		})
	} else if c.PO == nil && inv.PoReference != "" {
		out = append(out, models.Anomaly{
			Type:           models.AnomalyMissingPO,
			Severity:       models.SeverityMedium,
			Description:    fmt.Sprintf("Invoice references %s but no matching PO found in the system.", inv.PoReference),
			AmountAtRisk:   invTotal,
			Recommendation: fmt.Sprintf("Upload or locate PO %s before approving payment.", inv.PoReference),
		})
	}

	// 3. PO comparison: quantities, prices, unauthorized items, and the
	// residual amount discrepancy line-item findings don't explain.
	if c.PO != nil {
		out = append(out, poComparisonRules(inv, *c.PO, invSubtotal, amtTolPct, prcTolPct, riskNote, sym, pol)...)
	}

	// 4. Contract checks: expired terms, contracted rates, payment terms.
	if c.Contract != nil {
		out = append(out, contractRules(inv, *c.Contract, invTotal, prcTolPct, sym, pol)...)
	}

	// 5. Duplicate detection against vendor history.
	out = append(out, duplicateRules(inv, c.History, invTotal, sym, pol)...)

	// 6. Early payment discount opportunity.
	if epd := inv.EarlyPaymentDiscount; epd != nil && epd.DiscountPercent > 0 && epd.Days > 0 {
		savings := invSubtotal * (epd.DiscountPercent / 100)
		out = append(out, models.Anomaly{
			Type:           models.AnomalyEarlyPaymentDiscount,
			Severity:       models.SeverityLow,
			Description:    fmt.Sprintf("Eligible for %g%% discount (%s%.2f) on subtotal if paid within %d days", epd.DiscountPercent, sym, savings, epd.Days),
			AmountAtRisk:   round2(-savings),
			ContractClause: fmt.Sprintf("Terms: %s", inv.PaymentTerms),
			Recommendation: fmt.Sprintf("Pay within %d days to save %s%.2f", epd.Days, sym, savings),
		})
	}

	// 7. Tax rate sanity.
	out = append(out, taxRules(inv, invSubtotal, cur, sym)...)

	// 8. Currency mismatch against the PO.
	if c.PO != nil {
		poCur := c.PO.Currency
		if poCur == "" {
			poCur = "USD"
		}
		if poCur != cur {
			out = append(out, models.Anomaly{
				Type:           models.AnomalyCurrencyMismatch,
				Severity:       models.SeverityMedium,
				Description:    fmt.Sprintf("Currency mismatch: Invoice in %s, PO in %s. Cannot compare amounts directly.", cur, poCur),
				Recommendation: fmt.Sprintf("Verify exchange rate and ensure amounts align. Invoice: %s, PO: %s", cur, poCur),
			})
		}
	}

	// 9. Policy-driven temporal and heuristic checks.
	out = append(out, policyRules(inv, invTotal, sym, pol)...)

	return out
}

func poComparisonRules(inv, po models.Document, invSubtotal, amtTolPct, prcTolPct float64,
	riskNote, sym string, pol policy.Policy) []models.Anomaly {

	var out []models.Anomaly
	poAmt := po.Amount
	tolerance := poAmt * (amtTolPct / 100)

	poLevelDiff := 0.0
	if poAmt > 0 && invSubtotal > poAmt+tolerance {
		poLevelDiff = invSubtotal - poAmt
	}

	lineItemRisk := 0.0
	for _, invLi := range inv.LineItems {
		matched, ok := bestPOLine(invLi.Description, po.LineItems)
		if !ok {
			if invLi.Total > 0 {
				lineItemRisk += invLi.Total
				sev := models.SeverityMedium
				if poAmt > 0 {
					sev = vendors.SeverityForAmount(invLi.Total, poAmt, pol)
				}
				out = append(out, models.Anomaly{
					Type:           models.AnomalyUnauthorizedItem,
					Severity:       sev,
					Description:    fmt.Sprintf("'%s' (%s%.2f) not found in purchase order.", invLi.Description, sym, invLi.Total),
					AmountAtRisk:   invLi.Total,
					Recommendation: "Verify authorization before payment.",
				})
			}
			continue
		}

		if invLi.Quantity > matched.Quantity && matched.Quantity > 0 {
			extra := invLi.Quantity - matched.Quantity
			risk := extra * invLi.UnitPrice
			lineItemRisk += risk
			out = append(out, models.Anomaly{
				Type:           models.AnomalyQuantityMismatch,
				Severity:       vendors.SeverityForAmount(risk, poAmt, pol),
				Description:    fmt.Sprintf("'%s': Billed %g units, PO authorized %g. %g unauthorized.", invLi.Description, invLi.Quantity, matched.Quantity, extra),
				AmountAtRisk:   round2(risk),
				Recommendation: fmt.Sprintf("Dispute %g extra units (%s%.2f)", extra, sym, risk),
			})
		}

		priceTol := matched.UnitPrice * (prcTolPct / 100)
		if matched.UnitPrice > 0 && invLi.UnitPrice > matched.UnitPrice+priceTol {
			diff := invLi.UnitPrice - matched.UnitPrice
			qty := invLi.Quantity
			if qty == 0 {
				qty = 1
			}
			risk := diff * qty
			lineItemRisk += risk
			out = append(out, models.Anomaly{
				Type:           models.AnomalyPriceOvercharge,
				Severity:       vendors.SeverityForAmount(risk, poAmt, pol),
				Description:    fmt.Sprintf("'%s': %s%.2f/unit vs PO %s%.2f/unit%s", invLi.Description, sym, invLi.UnitPrice, sym, matched.UnitPrice, riskNote),
				AmountAtRisk:   round2(risk),
				Recommendation: fmt.Sprintf("Request credit: %s%.2f", sym, risk),
			})
		}
	}

	if poLevelDiff > 0 && lineItemRisk < poLevelDiff*0.9 {
		unexplained := poLevelDiff - lineItemRisk
		desc := fmt.Sprintf("Invoice subtotal (%s%.2f) exceeds PO total (%s%.2f) by %s%.2f",
			sym, invSubtotal, sym, poAmt, sym, poLevelDiff)
		if lineItemRisk > 0 {
			desc += fmt.Sprintf(". %s%.2f explained by line-item overcharges, %s%.2f unexplained.",
				sym, lineItemRisk, sym, unexplained)
		} else {
			desc += fmt.Sprintf(", representing a %.2f%% variance which exceeds the %g%% tolerance threshold%s.",
				poLevelDiff/poAmt*100, amtTolPct, riskNote)
		}
		out = append(out, models.Anomaly{
			Type:           models.AnomalyAmountDiscrepancy,
			Severity:       vendors.SeverityForAmount(unexplained, poAmt, pol),
			Description:    desc,
			AmountAtRisk:   round2(unexplained),
			ContractClause: "Purchase order authorization limits",
			Recommendation: fmt.Sprintf("Reject invoice pending price correction to match contracted rates. Total should be %s%.2f based on contract pricing.", sym, poAmt),
		})
	}
	return out
}

// bestPOLine matches an invoice line to a PO line by description, taking
// the most similar above 0.7 or any substring containment.
func bestPOLine(desc string, poLines []models.LineItem) (models.LineItem, bool) {
	d := strings.ToLower(strings.TrimSpace(desc))
	var best models.LineItem
	bestSim := 0.0
	found := false
	for _, pli := range poLines {
		pd := strings.ToLower(strings.TrimSpace(pli.Description))
		if pd == "" {
			continue
		}
		sim := vendors.Ratio(d, pd)
		if sim > 0.7 && sim > bestSim {
			best, bestSim, found = pli, sim, true
		} else if d != "" && (strings.Contains(pd, d) || strings.Contains(d, pd)) {
			best, bestSim, found = pli, 1.0, true
		}
	}
	return best, found
}

func contractRules(inv, contract models.Document, invTotal, prcTolPct float64,
	sym string, pol policy.Policy) []models.Anomaly {

	var out []models.Anomaly

	var expiry string
	if contract.ContractTerms != nil {
		expiry = contract.ContractTerms.ExpiryDate
	}
	if expiry != "" {
		if expDate, ok := models.ParseDate(expiry); ok {
			invDate := time.Now()
			if d, ok := models.ParseDate(inv.IssueDate); ok {
				invDate = d
			}
			if invDate.After(expDate) {
				daysExpired := int(invDate.Sub(expDate).Hours() / 24)
				out = append(out, models.Anomaly{
					Type:           models.AnomalyTermsViolation,
					Severity:       models.SeverityHigh,
					Description:    fmt.Sprintf("Invoice issued %d days after contract expired on %s. Billing under expired contract.", daysExpired, expiry),
					AmountAtRisk:   invTotal,
					ContractClause: fmt.Sprintf("Contract expired: %s", expiry),
					Recommendation: "Do not pay. Renew contract or negotiate new terms before processing.",
				})
			}
		}
	}

	for _, pt := range contract.PricingTerms {
		item := strings.ToLower(strings.TrimSpace(pt.Item))
		if item == "" || pt.Rate == 0 {
			continue
		}
		unit := pt.Unit
		if unit == "" {
			unit = "unit"
		}
		for _, invLi := range inv.LineItems {
			desc := strings.ToLower(strings.TrimSpace(invLi.Description))
			sim := vendors.Ratio(item, desc)
			if sim <= 0.6 && !strings.Contains(desc, item) && !strings.Contains(item, desc) {
				continue
			}
			if invLi.UnitPrice > pt.Rate*(1+prcTolPct/100) {
				diff := invLi.UnitPrice - pt.Rate
				qty := invLi.Quantity
				if qty == 0 {
					qty = 1
				}
				risk := diff * qty
				sev := models.SeverityMedium
				if invTotal > 0 {
					sev = vendors.SeverityForAmount(risk, invTotal, pol)
				}
				out = append(out, models.Anomaly{
					Type:           models.AnomalyContractPrice,
					Severity:       sev,
					Description:    fmt.Sprintf("'%s': %s%.2f/%s vs contract rate %s%.2f/%s", invLi.Description, sym, invLi.UnitPrice, unit, sym, pt.Rate, unit),
					AmountAtRisk:   round2(risk),
					ContractClause: fmt.Sprintf("Contract pricing: %s at %s%.2f/%s", pt.Item, sym, pt.Rate, unit),
					Recommendation: fmt.Sprintf("Vendor overcharging vs contract. Dispute %s%.2f", sym, risk),
				})
			}
			break
		}
	}

	invTerms := strings.ToLower(strings.TrimSpace(inv.PaymentTerms))
	ctTerms := strings.ToLower(strings.TrimSpace(contract.PaymentTerms))
	if invTerms != "" && ctTerms != "" && invTerms != ctTerms {
		out = append(out, models.Anomaly{
			Type:           models.AnomalyTermsViolation,
			Severity:       models.SeverityMedium,
			Description:    fmt.Sprintf("Invoice terms '%s' differ from contract '%s'", inv.PaymentTerms, contract.PaymentTerms),
			ContractClause: fmt.Sprintf("Contract: %s", contract.PaymentTerms),
			Recommendation: "Enforce contract payment terms.",
		})
	}
	return out
}

func duplicateRules(inv models.Document, history []models.Document, invTotal float64,
	sym string, pol policy.Policy) []models.Anomaly {

	var out []models.Anomaly
	window := pol.DuplicateWindowDays

	for _, h := range history {
		if h.ID == inv.ID {
			continue
		}
		score := 0
		var reasons []string

		if h.InvoiceNumber != "" && inv.InvoiceNumber != "" && h.InvoiceNumber == inv.InvoiceNumber {
			score += 50
			reasons = append(reasons, "identical invoice number")
		}

		if h.Amount > 0 && invTotal > 0 &&
			math.Abs(h.Amount-invTotal)/math.Max(h.Amount, invTotal) < 0.02 {
			score += 40
			reasons = append(reasons, "same amount")
		}

		if h.IssueDate != "" && inv.IssueDate != "" && h.IssueDate == inv.IssueDate {
			score += 25
			reasons = append(reasons, "same date")
		} else if d1, ok1 := models.ParseDate(h.IssueDate); ok1 {
			if d2, ok2 := models.ParseDate(inv.IssueDate); ok2 {
				days := math.Abs(d1.Sub(d2).Hours() / 24)
				if days <= float64(window) {
					score += 10
					reasons = append(reasons, fmt.Sprintf("within %d days", window))
				}
			}
		}

		hItems := lineKeySet(h.LineItems)
		iItems := lineKeySet(inv.LineItems)
		if len(hItems) > 0 && len(iItems) > 0 {
			inter := 0
			for k := range iItems {
				if hItems[k] {
					inter++
				}
			}
			if inter == len(hItems) && inter == len(iItems) {
				score += 35
				reasons = append(reasons, "identical line items")
			} else if float64(inter) > float64(len(hItems))*0.7 {
				score += 20
				reasons = append(reasons, "similar line items")
			}
		}

		if score >= 60 {
			sev := models.SeverityMedium
			if score >= 80 {
				sev = models.SeverityHigh
			}
			out = append(out, models.Anomaly{
				Type:                models.AnomalyDuplicateInvoice,
				Severity:            sev,
				Description:         fmt.Sprintf("Likely duplicate of %s (%s%.2f). Signals: %s. Confidence: %d%%", orUnknown(h.InvoiceNumber), sym, h.Amount, strings.Join(reasons, ", "), score),
				AmountAtRisk:        invTotal,
				Recommendation:      "Verify this is not a duplicate payment. Do not process until confirmed.",
				DuplicateConfidence: score,
			})
		}
	}
	return out
}

func lineKeySet(items []models.LineItem) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, li := range items {
		set[fmt.Sprintf("%s|%g|%g", strings.ToLower(li.Description), li.Quantity, li.UnitPrice)] = true
	}
	return set
}

func taxRules(inv models.Document, invSubtotal float64, cur, sym string) []models.Anomaly {
	var out []models.Anomaly
	if len(inv.TaxDetails) == 0 || invSubtotal <= 0 {
		return nil
	}

	totalTax := 0.0
	for _, td := range inv.TaxDetails {
		totalTax += td.Amount
	}
	effectiveRate := totalTax / invSubtotal * 100

	ceiling, ok := taxCeilings[cur]
	if !ok {
		ceiling = defaultTaxCeiling
	}

	if effectiveRate > ceiling {
		out = append(out, models.Anomaly{
			Type:           models.AnomalyTaxRate,
			Severity:       models.SeverityMedium,
			Description:    fmt.Sprintf("Effective tax rate is %.1f%% (%s%.2f on %s%.2f). Exceeds the %.0f%% ceiling for %s invoices.", effectiveRate, sym, totalTax, sym, invSubtotal, ceiling, cur),
			AmountAtRisk:   round2(totalTax),
			Recommendation: fmt.Sprintf("Verify tax calculation. Rate exceeds the expected maximum of %.0f%% for %s.", ceiling, cur),
		})
	} else if effectiveRate > 0 && effectiveRate < 1 {
		out = append(out, models.Anomaly{
			Type:           models.AnomalyTaxRate,
			Severity:       models.SeverityLow,
			Description:    fmt.Sprintf("Effective tax rate is only %.1f%%. Unusually low, verify tax is applied correctly.", effectiveRate),
			Recommendation: "Confirm tax exemption or verify rate.",
		})
	}

	for _, td := range inv.TaxDetails {
		if td.Rate <= 0 || td.Amount <= 0 {
			continue
		}
		expected := invSubtotal * (td.Rate / 100)
		diff := math.Abs(td.Amount - expected)
		if diff > math.Max(1.0, expected*0.05) {
			name := td.Type
			if name == "" {
				name = "tax"
			}
			out = append(out, models.Anomaly{
				Type:           models.AnomalyTaxRate,
				Severity:       models.SeverityMedium,
				Description:    fmt.Sprintf("Tax amount %s%.2f doesn't match stated %s rate of %g%%. Expected %s%.2f, difference: %s%.2f.", sym, td.Amount, name, td.Rate, sym, expected, sym, diff),
				AmountAtRisk:   round2(diff),
				Recommendation: fmt.Sprintf("Verify %s calculation. Stated rate %g%% on %s%.2f should be %s%.2f.", name, td.Rate, sym, invSubtotal, sym, expected),
			})
		}
	}
	return out
}

func policyRules(inv models.Document, invTotal float64, sym string, pol policy.Policy) []models.Anomaly {
	var out []models.Anomaly

	if pol.FlagRoundNumberInvoices && invTotal >= 5000 && math.Mod(invTotal, 1000) == 0 {
		out = append(out, models.Anomaly{
			Type:           models.AnomalyRoundNumber,
			Severity:       models.SeverityLow,
			Description:    fmt.Sprintf("Suspiciously round invoice amount: %s%.2f. Legitimate invoices rarely land on exact thousands.", sym, invTotal),
			Recommendation: "Verify invoice is for actual goods/services delivered.",
		})
	}

	if pol.FlagWeekendInvoices {
		if dt, ok := models.ParseDate(inv.IssueDate); ok {
			if wd := dt.Weekday(); wd == time.Saturday || wd == time.Sunday {
				out = append(out, models.Anomaly{
					Type:           models.AnomalyWeekendInvoice,
					Severity:       models.SeverityLow,
					Description:    fmt.Sprintf("Invoice dated on %s (%s).", wd, inv.IssueDate),
					Recommendation: "Verify vendor legitimacy. Weekend invoicing is a minor fraud indicator.",
				})
			}
		}
	}

	if pol.MaxInvoiceAgeDays > 0 {
		if dt, ok := models.ParseDate(inv.IssueDate); ok {
			age := int(time.Since(dt).Hours() / 24)
			if age > pol.MaxInvoiceAgeDays {
				out = append(out, models.Anomaly{
					Type:           models.AnomalyStaleInvoice,
					Severity:       models.SeverityMedium,
					Description:    fmt.Sprintf("Invoice is %d days old (issued %s). Policy max: %d days.", age, inv.IssueDate, pol.MaxInvoiceAgeDays),
					AmountAtRisk:   invTotal,
					Recommendation: fmt.Sprintf("Investigate why this invoice is %d days old.", age),
				})
			}
		}
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }
