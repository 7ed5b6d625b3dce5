package anomaly

import (
	"fmt"
	"strings"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/vendors"
)

// DetectGRNAnomalies evaluates the three-way rules: receipt presence,
// billed-vs-received value and quantities, and short shipment against the PO.
func DetectGRNAnomalies(inv models.Document, po *models.Document, grn models.GRNInfo,
	pol policy.Policy) []models.Anomaly {

	var out []models.Anomaly
	cur := inv.Currency
	if cur == "" {
		cur = "USD"
	}
	sym := vendors.CurrencySymbol(cur)
	invSubtotal := inv.EffectiveSubtotal()

	if grn.GrnStatus == models.GRNStatusNone && po != nil {
		if pol.MatchingMode == policy.ModeThreeWay || pol.MatchingMode == policy.ModeFlexible {
			sev := models.SeverityMedium
			if pol.MatchingMode == policy.ModeThreeWay {
				sev = models.SeverityHigh
			}
			out = append(out, models.Anomaly{
				Type:           models.AnomalyUnreceiptedInvoice,
				Severity:       sev,
				Description:    fmt.Sprintf("Invoice %s has no goods receipt (GRN) on file. Cannot confirm goods/services were received.", orUnknown(inv.InvoiceNumber)),
				AmountAtRisk:   invSubtotal,
				ContractClause: "Three-way match policy: No payment without receipt confirmation",
				Recommendation: "Upload GRN/delivery note to confirm receipt before approving payment.",
			})
		}
		return out
	}

	if grn.GrnStatus != models.GRNStatusReceived {
		return out
	}

	totalReceived := grn.TotalReceived
	grnAmtTol := pol.GRNAmountTolerancePct / 100
	if totalReceived > 0 && invSubtotal > totalReceived*(1+grnAmtTol) {
		diff := invSubtotal - totalReceived
		sev := models.SeverityMedium
		if diff > invSubtotal*0.1 {
			sev = models.SeverityHigh
		}
		out = append(out, models.Anomaly{
			Type:           models.AnomalyOverbilledVsReceived,
			Severity:       sev,
			Description:    fmt.Sprintf("Invoice subtotal (%s%.2f) exceeds total received value (%s%.2f) by %s%.2f.", sym, invSubtotal, sym, totalReceived, sym, diff),
			AmountAtRisk:   round2(diff),
			ContractClause: "Three-way match: pay only for goods/services actually received",
			Recommendation: fmt.Sprintf("Reduce invoice to match received value (%s%.2f) or obtain additional GRN.", sym, totalReceived),
		})
	}

	// Aggregate received quantities by description across receipts.
	received := map[string]float64{}
	for _, gli := range grn.GrnLineItems {
		desc := strings.ToLower(strings.TrimSpace(gli.Description))
		received[desc] += gli.QuantityReceived
	}

	grnQtyTol := pol.GRNQtyTolerancePct / 100
	for _, invLi := range inv.LineItems {
		if invLi.Quantity <= 0 {
			continue
		}
		desc := strings.ToLower(strings.TrimSpace(invLi.Description))
		grnQty, found := 0.0, false
		for grnDesc, qty := range received {
			sim := vendors.Ratio(desc, grnDesc)
			if sim > 0.6 || strings.Contains(grnDesc, desc) || strings.Contains(desc, grnDesc) {
				grnQty, found = qty, true
				break
			}
		}
		if found && invLi.Quantity > grnQty*(1+grnQtyTol) {
			excess := invLi.Quantity - grnQty
			risk := excess * invLi.UnitPrice
			sev := models.SeverityMedium
			if risk > invSubtotal*0.05 {
				sev = models.SeverityHigh
			}
			out = append(out, models.Anomaly{
				Type:           models.AnomalyQtyReceivedMismatch,
				Severity:       sev,
				Description:    fmt.Sprintf("'%s': billed %.0f units but only %.0f received (excess: %.0f).", invLi.Description, invLi.Quantity, grnQty, excess),
				AmountAtRisk:   round2(risk),
				ContractClause: "Three-way match: bill only for quantities actually received",
				Recommendation: fmt.Sprintf("Reduce billed quantity to %.0f or provide proof of additional delivery.", grnQty),
			})
		}
	}

	if po != nil && po.Amount > 0 && totalReceived > 0 {
		shortThreshold := pol.ShortShipmentThresholdPct / 100
		if totalReceived < po.Amount*shortThreshold {
			shortPct := round1((1 - totalReceived/po.Amount) * 100)
			out = append(out, models.Anomaly{
				Type:           models.AnomalyShortShipment,
				Severity:       models.SeverityLow,
				Description:    fmt.Sprintf("Only %s%.2f of %s%.2f PO value received (%.1f%% short). Partial delivery.", sym, totalReceived, sym, po.Amount, shortPct),
				ContractClause: "PO fulfillment tracking",
				Recommendation: fmt.Sprintf("Track remaining delivery. %.1f%% of PO value outstanding.", shortPct),
			})
		}
	}

	return out
}
