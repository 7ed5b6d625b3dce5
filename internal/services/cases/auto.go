package cases

import (
	"fmt"
	"math"
	"strings"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/utils"
)

// priceQtyTypes are the anomaly types grouped into a pricing/quantity
// investigation.
var priceQtyTypes = map[models.AnomalyType]bool{
	models.AnomalyPriceOvercharge:      true,
	models.AnomalyQuantityMismatch:     true,
	models.AnomalyAmountDiscrepancy:    true,
	models.AnomalyUnauthorizedItem:     true,
	models.AnomalyOverbilledVsReceived: true,
	models.AnomalyQtyReceivedMismatch:  true,
}

// OpenFromTriage creates cases when triage routes an invoice to BLOCK or
// REVIEW. Related anomalies are grouped: duplicates, contract violations, and
// pricing/quantity discrepancies each get their own case. When an active case
// already exists for the invoice it absorbs the new anomaly IDs instead, with
// its priority escalated if warranted. Returns the cases created.
func (m *Manager) OpenFromTriage(inv models.Document, decision models.TriageDecision, createdBy string) []models.Case {
	if decision.Lane != models.LaneBlock && decision.Lane != models.LaneReview {
		return nil
	}

	var open []models.Anomaly
	for _, a := range m.store.AnomaliesForInvoice(inv.ID) {
		if a.Status == models.AnomalyStatusOpen {
			open = append(open, a)
		}
	}
	if len(open) == 0 {
		return nil
	}

	if m.mergeIntoExisting(inv.ID, open, decision.Lane) {
		return nil
	}

	var duplicates, contractViols, priceQty, other []models.Anomaly
	for _, a := range open {
		switch {
		case a.Type == models.AnomalyDuplicateInvoice:
			duplicates = append(duplicates, a)
		case a.Type == models.AnomalyTermsViolation:
			contractViols = append(contractViols, a)
		case priceQtyTypes[a.Type]:
			priceQty = append(priceQty, a)
		default:
			other = append(other, a)
		}
	}

	invNum := inv.InvoiceNumber
	if invNum == "" && len(inv.ID) >= 8 {
		invNum = inv.ID[:8]
	}
	vendor := inv.Vendor
	if vendor == "" {
		vendor = "Unknown"
	}

	var created []models.Case
	add := func(c models.Case, err error) {
		if err != nil {
			utils.GetLogger().Warn("auto case creation failed", utils.Error(err))
			return
		}
		created = append(created, c)
	}

	if len(duplicates) > 0 {
		add(m.Create(CreateParams{
			Type:  models.CaseDuplicateReview,
			Title: "Duplicate Invoice Review: " + invNum,
			Description: fmt.Sprintf(
				"Invoice %s from %s flagged as potential duplicate. %d duplicate signal(s) detected. Requires verification before payment can proceed.",
				invNum, vendor, len(duplicates)),
			Priority:     models.PriorityHigh,
			InvoiceID:    inv.ID,
			AnomalyIDs:   anomalyIDs(duplicates),
			Vendor:       vendor,
			AmountAtRisk: riskSum(duplicates),
			Currency:     inv.Currency,
			CreatedBy:    createdBy,
		}))
	}
	if len(contractViols) > 0 {
		add(m.Create(CreateParams{
			Type:  models.CaseContractViolation,
			Title: "Contract Violation: " + invNum,
			Description: fmt.Sprintf(
				"Invoice %s from %s violates contract terms. %d violation(s): %s. Review contract compliance before approval.",
				invNum, vendor, len(contractViols), typeList(contractViols)),
			Priority:     groupPriority(contractViols, decision.Lane),
			InvoiceID:    inv.ID,
			AnomalyIDs:   anomalyIDs(contractViols),
			Vendor:       vendor,
			AmountAtRisk: riskSum(contractViols),
			Currency:     inv.Currency,
			CreatedBy:    createdBy,
		}))
	}
	if len(priceQty) > 0 {
		add(m.Create(CreateParams{
			Type:  models.CaseAnomalyInvestigation,
			Title: "Pricing/Quantity Investigation: " + invNum,
			Description: fmt.Sprintf(
				"Invoice %s from %s has %d pricing or quantity %s against PO. Total amount at risk: %s %.2f.",
				invNum, vendor, len(priceQty), pluralDiscrepancy(len(priceQty)), inv.Currency, riskSum(priceQty)),
			Priority:     groupPriority(priceQty, decision.Lane),
			InvoiceID:    inv.ID,
			AnomalyIDs:   anomalyIDs(priceQty),
			Vendor:       vendor,
			AmountAtRisk: riskSum(priceQty),
			Currency:     inv.Currency,
			CreatedBy:    createdBy,
		}))
	}
	if len(other) > 0 {
		add(m.Create(CreateParams{
			Type:  models.CaseAnomalyInvestigation,
			Title: "Anomaly Review: " + invNum,
			Description: fmt.Sprintf(
				"Invoice %s from %s has %d %s requiring review: %s.",
				invNum, vendor, len(other), pluralAnomaly(len(other)), typeList(other)),
			Priority:     groupPriority(other, decision.Lane),
			InvoiceID:    inv.ID,
			AnomalyIDs:   anomalyIDs(other),
			Vendor:       vendor,
			AmountAtRisk: riskSum(other),
			Currency:     inv.Currency,
			CreatedBy:    createdBy,
		}))
	}
	return created
}

// mergeIntoExisting folds new anomalies into any active case already open for
// the invoice. Reports whether such a case existed.
func (m *Manager) mergeIntoExisting(invoiceID string, open []models.Anomaly, lane models.Lane) bool {
	byID := map[string]models.Anomaly{}
	for _, a := range open {
		byID[a.ID] = a
	}

	merged := false
	m.store.UpdateCases(func(c *models.Case) {
		if c.InvoiceID != invoiceID || !c.Status.Active() {
			return
		}
		merged = true

		existing := map[string]bool{}
		for _, id := range c.AnomalyIDs {
			existing[id] = true
		}
		added := false
		for _, a := range open {
			if !existing[a.ID] {
				c.AnomalyIDs = append(c.AnomalyIDs, a.ID)
				added = true
			}
		}
		if !added {
			return
		}

		total := 0.0
		hasHigh := false
		for _, id := range c.AnomalyIDs {
			if a, ok := byID[id]; ok {
				total += math.Abs(a.AmountAtRisk)
				if a.Severity == models.SeverityHigh {
					hasHigh = true
				}
			}
		}
		c.AmountAtRisk = math.Round(total*100) / 100

		now := time.Now()
		if lane == models.LaneBlock && hasHigh && c.Priority != models.PriorityCritical {
			old := c.Priority
			c.Priority = models.PriorityCritical
			hours := m.slaHours(models.PriorityCritical)
			c.SLA.TargetHours = hours
			c.SLA.Deadline = c.CreatedAt.Add(time.Duration(hours) * time.Hour)
			c.SLA.WarningAt = c.CreatedAt.Add(time.Duration(float64(hours)*slaWarningPct) * time.Hour)
			c.StatusHistory = append(c.StatusHistory, models.StatusChange{
				Status: c.Status, At: now, By: "system",
				Reason: fmt.Sprintf("Priority escalated %s to critical (new high-severity anomaly added)", old),
			})
		} else if lane == models.LaneBlock && c.Priority != models.PriorityCritical && c.Priority != models.PriorityHigh {
			old := c.Priority
			c.Priority = models.PriorityHigh
			c.StatusHistory = append(c.StatusHistory, models.StatusChange{
				Status: c.Status, At: now, By: "system",
				Reason: fmt.Sprintf("Priority escalated %s to high (BLOCK triage, new anomalies added)", old),
			})
		}
	})
	return merged
}

// SyncOnAnomalyResolve auto-resolves any active case whose linked anomalies
// are all resolved or dismissed. An anomaly ID with no matching record counts
// as unresolved. Returns the IDs of auto-resolved cases.
func (m *Manager) SyncOnAnomalyResolve(anomalyID string) []string {
	snap := m.store.Snapshot()
	byID := map[string]models.Anomaly{}
	for _, a := range snap.Anomalies {
		byID[a.ID] = a
	}

	var resolved []string
	m.store.UpdateCases(func(c *models.Case) {
		if !c.Status.Active() || !containsString(c.AnomalyIDs, anomalyID) {
			return
		}
		for _, id := range c.AnomalyIDs {
			a, ok := byID[id]
			if !ok || a.Status == models.AnomalyStatusOpen {
				return
			}
		}
		applyTransition(c, models.CaseResolved, "system",
			"All linked anomalies resolved/dismissed — case auto-resolved", time.Now())
		resolved = append(resolved, c.ID)
	})
	if len(resolved) > 0 {
		utils.GetLogger().Info("cases auto-resolved",
			utils.String("anomaly_id", anomalyID),
			utils.Int("count", len(resolved)))
	}
	return resolved
}

func groupPriority(anoms []models.Anomaly, lane models.Lane) models.CasePriority {
	if lane == models.LaneBlock {
		for _, a := range anoms {
			if a.Severity == models.SeverityHigh {
				return models.PriorityCritical
			}
		}
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

func anomalyIDs(anoms []models.Anomaly) []string {
	ids := make([]string, 0, len(anoms))
	for _, a := range anoms {
		ids = append(ids, a.ID)
	}
	return ids
}

func riskSum(anoms []models.Anomaly) float64 {
	total := 0.0
	for _, a := range anoms {
		total += math.Abs(a.AmountAtRisk)
	}
	return math.Round(total*100) / 100
}

func typeList(anoms []models.Anomaly) string {
	names := make([]string, 0, len(anoms))
	for _, a := range anoms {
		names = append(names, string(a.Type))
	}
	return strings.Join(names, ", ")
}

func pluralAnomaly(n int) string {
	if n == 1 {
		return "anomaly"
	}
	return "anomalies"
}

func pluralDiscrepancy(n int) string {
	if n == 1 {
		return "discrepancy"
	}
	return "discrepancies"
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
