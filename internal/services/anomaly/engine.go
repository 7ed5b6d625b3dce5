package anomaly

import (
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
	"invoice-audit-engine/internal/services/vendors"
	"invoice-audit-engine/internal/utils"
)

// Engine assembles per-invoice context from the store and runs the full
// rule set with vendor-risk-tightened tolerances.
type Engine struct {
	store  *store.Store
	policy *policy.Store
}

// NewEngine wires an anomaly engine to its stores.
func NewEngine(st *store.Store, pol *policy.Store) *Engine {
	return &Engine{store: st, policy: pol}
}

// DetectForInvoice runs every rule against one invoice and persists the
// result idempotently: resolved and dismissed anomalies survive, open
// anomalies of a re-detected type are superseded, and open anomalies whose
// condition no longer holds are cleared.
func (e *Engine) DetectForInvoice(invoiceID string) ([]models.Anomaly, error) {
	inv, ok := e.store.Document(invoiceID)
	if !ok {
		return nil, models.ErrNotFound
	}
	if inv.Type != models.DocumentTypeInvoice {
		return nil, models.NewValidationError("type", "anomaly detection targets invoices, got %q", inv.Type)
	}

	snap := e.store.Snapshot()
	pol := e.policy.Get()

	ctx := e.buildContext(inv, snap, pol)
	detected := DetectRuleBased(ctx, pol)
	if ctx.GRN != nil {
		detected = append(detected, DetectGRNAnomalies(inv, ctx.PO, *ctx.GRN, pol)...)
	}

	now := time.Now()
	existing := e.store.AnomaliesForInvoice(invoiceID)
	openByType := map[models.AnomalyType]models.Anomaly{}
	var kept []models.Anomaly
	for _, a := range existing {
		if a.Status == models.AnomalyStatusOpen {
			openByType[a.Type] = a
		} else {
			kept = append(kept, a)
		}
	}

	var final []models.Anomaly
	for i := range detected {
		a := detected[i]
		a.InvoiceID = invoiceID
		a.Vendor = inv.Vendor
		a.Status = models.AnomalyStatusOpen
		a.DetectedAt = now
		// Re-detected types keep their identity so reviewer references
		// stay stable across runs.
		if prev, ok := openByType[a.Type]; ok {
			a.ID = prev.ID
			a.DetectedAt = prev.DetectedAt
			delete(openByType, a.Type)
		} else {
			a.ID = utils.ShortID()
		}
		final = append(final, a)
	}
	final = append(final, kept...)
	e.store.ReplaceInvoiceAnomalies(invoiceID, final)

	open := 0
	totalRisk := 0.0
	for _, a := range final {
		if a.Status == models.AnomalyStatusOpen {
			open++
			if a.AmountAtRisk > 0 {
				totalRisk += a.AmountAtRisk
			}
		}
	}
	if open > 0 {
		e.store.AppendActivity(models.ActivityLogEntry{
			Action:         "anomalies_detected",
			DocumentID:     invoiceID,
			DocumentNumber: inv.InvoiceNumber,
			Vendor:         inv.Vendor,
			AnomalyCount:   open,
			PerformedBy:    "system",
		})
	}

	utils.GetLogger().Info("anomaly detection complete",
		utils.String("invoice_id", invoiceID),
		utils.Int("open", open),
		utils.Float64("total_risk", totalRisk))
	return final, nil
}

// RunDetection audits every stored invoice. A failure on one invoice is
// logged and never aborts the batch.
func (e *Engine) RunDetection() int {
	snap := e.store.Snapshot()
	detected := 0
	for _, inv := range snap.Invoices {
		anomalies, err := e.DetectForInvoice(inv.ID)
		if err != nil {
			utils.GetLogger().Warn("skipping invoice in detection batch",
				utils.String("invoice_id", inv.ID),
				utils.Error(err))
			continue
		}
		for _, a := range anomalies {
			if a.Status == models.AnomalyStatusOpen {
				detected++
			}
		}
	}
	return detected
}

func (e *Engine) buildContext(inv models.Document, snap store.Snapshot, pol policy.Policy) Context {
	ctx := Context{Invoice: inv}

	if m, ok := e.store.MatchForInvoice(inv.ID); ok {
		for i := range snap.PurchaseOrders {
			if snap.PurchaseOrders[i].ID == m.PoID {
				po := snap.PurchaseOrders[i]
				ctx.PO = &po
				break
			}
		}
		grn := m.GRN
		ctx.GRN = &grn
	}

	ctx.Contract = vendors.FindContract(inv.Vendor, snap.Contracts)

	for i := range snap.Invoices {
		h := snap.Invoices[i]
		if h.ID == inv.ID || h.Vendor == "" || inv.Vendor == "" {
			continue
		}
		if vendors.Similarity(h.Vendor, inv.Vendor) >= 0.7 {
			ctx.History = append(ctx.History, h)
		}
	}

	tol := vendors.DynamicTolerances(inv.Vendor, vendors.RiskInputs{
		Invoices:    snap.Invoices,
		Anomalies:   snap.Anomalies,
		Corrections: snap.CorrectionPatterns,
		Contracts:   snap.Contracts,
	}, pol)
	ctx.Tolerances = &tol

	return ctx
}
