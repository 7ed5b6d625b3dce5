// Package triage classifies invoices into AUTO_APPROVE, REVIEW, or BLOCK
// lanes. Classification is fully deterministic: anomaly severity, extraction
// confidence, vendor risk, delegation of authority, PO match quality, and
// goods-receipt status each contribute, and every decision carries
// human-readable reasons and a required approver.
package triage

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
	"invoice-audit-engine/internal/services/vendors"
	"invoice-audit-engine/internal/utils"
)

const (
	minExtractionConfidence = 60.0
	riskAmountBlockPct      = 0.20
	adequateMatchScore      = 60
)

// Engine evaluates invoices against the live policy.
type Engine struct {
	store  *store.Store
	policy *policy.Store
}

func NewEngine(st *store.Store, pol *policy.Store) *Engine {
	return &Engine{store: st, policy: pol}
}

// Classify computes the triage decision for one invoice without persisting
// anything. The empty role falls back to the default analyst role.
func (e *Engine) Classify(inv models.Document, role models.Role) models.TriageDecision {
	pol := e.policy.Get()
	now := time.Now()

	if !pol.TriageEnabled {
		return models.TriageDecision{
			InvoiceID:  inv.ID,
			Lane:       models.LaneReview,
			Reasons:    []string{"Triage disabled"},
			Confidence: 0,
			TriagedAt:  now,
		}
	}

	if role == "" {
		role = models.DefaultRole
	}

	snap := e.store.Snapshot()
	risk := vendors.ComputeRiskScore(inv.Vendor, vendors.RiskInputs{
		Invoices:    snap.Invoices,
		Anomalies:   snap.Anomalies,
		Corrections: snap.CorrectionPatterns,
		Contracts:   snap.Contracts,
	}, pol)

	var open, epd []models.Anomaly
	for _, a := range e.store.AnomaliesForInvoice(inv.ID) {
		if a.Type == models.AnomalyEarlyPaymentDiscount {
			epd = append(epd, a)
			continue
		}
		if a.Status == models.AnomalyStatusOpen {
			open = append(open, a)
		}
	}

	var high, medium, low []models.Anomaly
	totalRisk := 0.0
	for _, a := range open {
		switch a.Severity {
		case models.SeverityHigh:
			high = append(high, a)
		case models.SeverityMedium:
			medium = append(medium, a)
		default:
			low = append(low, a)
		}
		if a.AmountAtRisk > 0 {
			totalRisk += a.AmountAtRisk
		}
	}

	match, hasMatch := e.store.MatchForInvoice(inv.ID)
	matchScore := 0
	overInvoiced := false
	if hasMatch {
		matchScore = match.MatchScore
		overInvoiced = match.OverInvoiced
	}

	d := models.TriageDecision{
		InvoiceID:  inv.ID,
		VendorRisk: risk,
		AnomalySummary: models.AnomalySummary{
			Total:     len(open),
			High:      len(high),
			Medium:    len(medium),
			Low:       len(low),
			TotalRisk: round2(totalRisk),
			HasEPD:    len(epd) > 0,
		},
		MatchQuality:     matchScore,
		ActiveRole:       role,
		RequiredApprover: policy.RequiredApprover(inv.Amount, inv.Currency),
		TriagedAt:        now,
	}

	var reasons []string

	// Block checks. Any single one routes the invoice to BLOCK.
	if len(high) > 0 {
		reasons = append(reasons, fmt.Sprintf("BLOCK: %d high-severity %s (%s)",
			len(high), pluralAnomaly(len(high)), anomalyTypeList(high)))
	}
	if overInvoiced {
		reasons = append(reasons, "BLOCK: PO over-invoiced — cumulative invoices exceed PO amount")
	}
	for _, a := range open {
		if a.Type == models.AnomalyDuplicateInvoice {
			conf := "high"
			if a.DuplicateConfidence > 0 {
				conf = fmt.Sprintf("%d%%", a.DuplicateConfidence)
			}
			reasons = append(reasons, fmt.Sprintf("BLOCK: Potential duplicate invoice detected (confidence: %s)", conf))
			break
		}
	}
	if risk.Score >= pol.BlockMinVendorRisk && len(open) > 0 {
		reasons = append(reasons, fmt.Sprintf("BLOCK: High-risk vendor (score: %.0f) with %d open %s",
			risk.Score, len(open), pluralAnomaly(len(open))))
	}
	if inv.Confidence < minExtractionConfidence {
		reasons = append(reasons, fmt.Sprintf("BLOCK: Low extraction confidence (%.0f%%) — data unreliable", inv.Confidence))
	}
	if inv.Amount > 0 && totalRisk > inv.Amount*riskAmountBlockPct {
		riskPct := totalRisk / inv.Amount * 100
		reasons = append(reasons, fmt.Sprintf("BLOCK: At-risk amount is %.0f%% of invoice total", riskPct))
	}

	if len(reasons) > 0 {
		d.Lane = models.LaneBlock
		d.AutoAction = models.StatusOnHold
		d.Reasons = reasons
		d.Confidence = clampConfidence(70 + len(reasons)*8)
		return d
	}

	// Approval gates. All must pass for AUTO_APPROVE.
	var passed, failed []string

	if len(open) == 0 {
		passed = append(passed, "No anomalies detected")
	} else {
		failed = append(failed, fmt.Sprintf("%d %s found", len(open), pluralAnomaly(len(open))))
	}

	if inv.Confidence >= pol.AutoApproveMinConfidence {
		passed = append(passed, fmt.Sprintf("High confidence (%.0f%%)", inv.Confidence))
	} else {
		failed = append(failed, fmt.Sprintf("Confidence below threshold (%.0f%% < %.0f%%)",
			inv.Confidence, pol.AutoApproveMinConfidence))
	}

	if risk.Score <= pol.AutoApproveMaxVendorRisk {
		passed = append(passed, fmt.Sprintf("Trusted vendor (risk: %.0f)", risk.Score))
	} else {
		failed = append(failed, fmt.Sprintf("Vendor risk above threshold (%.0f > %.0f)",
			risk.Score, pol.AutoApproveMaxVendorRisk))
	}

	if inv.PoReference != "" {
		if hasMatch && matchScore >= adequateMatchScore {
			passed = append(passed, fmt.Sprintf("PO matched (score: %d)", matchScore))
		} else {
			failed = append(failed, "PO reference not matched adequately")
		}
	} else {
		failed = append(failed, "No PO reference — requires manual authorization")
	}

	switch pol.MatchingMode {
	case policy.ModeThreeWay:
		if hasMatch && match.ThreeWay() {
			passed = append(passed, "Goods received (3-way match)")
		} else {
			failed = append(failed, "No goods receipt — 3-way matching required by policy")
		}
	case policy.ModeFlexible:
		if hasMatch && match.ThreeWay() {
			passed = append(passed, "Goods received (3-way match)")
		} else if hasMatch && match.GRN.GrnStatus == models.GRNStatusNone {
			for _, a := range open {
				if a.Type == models.AnomalyUnreceiptedInvoice {
					failed = append(failed, "No goods receipt on file — cannot confirm delivery")
					break
				}
			}
		}
	}

	roleLimit := policy.AuthorityLimit(role, inv.Currency)
	roleInfo := policy.RoleInfo(role)
	sym := vendors.CurrencySymbol(inv.Currency)
	if inv.Amount <= roleLimit {
		passed = append(passed, fmt.Sprintf("Within %s authority (%s%s)",
			roleInfo.Title, sym, groupThousands(roleLimit)))
	} else {
		failed = append(failed, fmt.Sprintf("Exceeds %s limit (%s%s > %s%s) — requires %s approval",
			roleInfo.Title, sym, groupThousands(inv.Amount), sym, groupThousands(roleLimit),
			d.RequiredApprover.Title))
	}

	if len(failed) == 0 {
		d.Lane = models.LaneAutoApprove
		d.AutoAction = models.StatusApproved
		for _, c := range passed {
			d.Reasons = append(d.Reasons, "APPROVED: "+c)
		}
		if len(epd) > 0 {
			d.Reasons = append(d.Reasons, "NOTE: Early payment discount available")
		}
		d.Confidence = clampConfidence(80 + len(passed)*4)
		return d
	}

	d.Lane = models.LaneReview
	d.AutoAction = models.StatusUnderReview
	for _, f := range failed {
		d.Reasons = append(d.Reasons, "REVIEW: "+f)
	}
	if len(passed) > 0 {
		d.Reasons = append(d.Reasons, "Passed: "+strings.Join(passed, ", "))
	}
	if len(medium) > 0 {
		d.Reasons = append(d.Reasons, "Medium anomalies: "+anomalyTypeList(medium))
	}
	d.Confidence = 70 - len(failed)*10
	if d.Confidence < 40 {
		d.Confidence = 40
	}
	return d
}

// TriageInvoice classifies one invoice, persists the decision, and applies
// the resulting status transition.
func (e *Engine) TriageInvoice(invoiceID string, role models.Role, performedBy string) (models.TriageDecision, error) {
	unlock := e.store.LockInvoice(invoiceID)
	defer unlock()

	inv, ok := e.store.Document(invoiceID)
	if !ok {
		return models.TriageDecision{}, models.ErrNotFound
	}
	if inv.Type != models.DocumentTypeInvoice {
		return models.TriageDecision{}, models.NewValidationError("type", "triage targets invoices, got %q", inv.Type)
	}

	d := e.Classify(inv, role)
	d.ID = utils.ShortID()
	e.store.SetDecision(d)
	e.applyAction(inv, d, performedBy)

	utils.GetLogger().Info("invoice triaged",
		utils.String("invoice_id", invoiceID),
		utils.String("lane", string(d.Lane)),
		utils.Int("confidence", d.Confidence),
		utils.Float64("vendor_risk", d.VendorRisk.Score))
	return d, nil
}

// RunTriage classifies every stored invoice. Per-invoice failures are logged
// and never abort the batch.
func (e *Engine) RunTriage(role models.Role, performedBy string) []models.TriageDecision {
	snap := e.store.Snapshot()
	var out []models.TriageDecision
	for _, inv := range snap.Invoices {
		d, err := e.TriageInvoice(inv.ID, role, performedBy)
		if err != nil {
			utils.GetLogger().Warn("skipping invoice in triage batch",
				utils.String("invoice_id", inv.ID),
				utils.Error(err))
			continue
		}
		out = append(out, d)
	}
	return out
}

// applyAction moves the invoice to the lane's status. Terminal statuses and
// statuses not managed by triage are left alone; decision metadata is stamped
// regardless.
func (e *Engine) applyAction(inv models.Document, d models.TriageDecision, performedBy string) {
	now := time.Now()
	_ = e.store.UpdateDocument(inv.ID, func(doc *models.Document) {
		if doc.Status.TriageManaged() && !doc.Status.Terminal() {
			switch {
			case d.Lane == models.LaneAutoApprove && d.AutoAction == models.StatusApproved:
				doc.Status = models.StatusApproved
				doc.AutoApproved = true
			case d.Lane == models.LaneBlock && d.AutoAction == models.StatusOnHold:
				doc.Status = models.StatusOnHold
				doc.AutoBlocked = true
			case d.Lane == models.LaneReview && d.AutoAction == models.StatusUnderReview:
				doc.Status = models.StatusUnderReview
				doc.AutoReview = true
			}
		}
		doc.TriageLane = d.Lane
		doc.TriageReasons = d.Reasons
		doc.TriageConfidence = d.Confidence
		doc.TriagedAt = now
		doc.VendorRiskScore = d.VendorRisk.Score
		doc.VendorRiskLevel = d.VendorRisk.Level
	})

	reasons := d.Reasons
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	e.store.AppendActivity(models.ActivityLogEntry{
		Action:         "triage_" + strings.ToLower(string(d.Lane)),
		DocumentID:     inv.ID,
		DocumentNumber: inv.InvoiceNumber,
		Vendor:         inv.Vendor,
		Lane:           d.Lane,
		Confidence:     d.Confidence,
		VendorRisk:     d.VendorRisk.Score,
		AnomalyCount:   d.AnomalySummary.Total,
		Reasons:        reasons,
		PerformedBy:    performedBy,
	})
}

func pluralAnomaly(n int) string {
	if n == 1 {
		return "anomaly"
	}
	return "anomalies"
}

// anomalyTypeList renders the distinct types as readable names, sorted for
// deterministic output.
func anomalyTypeList(anomalies []models.Anomaly) string {
	seen := map[string]bool{}
	var names []string
	for _, a := range anomalies {
		name := strings.ReplaceAll(string(a.Type), "_", " ")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// groupThousands formats a whole amount with comma separators.
func groupThousands(f float64) string {
	s := fmt.Sprintf("%.0f", f)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

func clampConfidence(c int) int {
	if c > 99 {
		return 99
	}
	return c
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
