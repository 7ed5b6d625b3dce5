// Package audit orchestrates the full invoice audit flow: ingest, matching,
// anomaly detection, triage, and case creation. The HTTP server and the
// scheduled lambda runner both drive the pipeline through this package.
package audit

import (
	"fmt"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/anomaly"
	"invoice-audit-engine/internal/services/cases"
	"invoice-audit-engine/internal/services/ingest"
	"invoice-audit-engine/internal/services/matching"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
	"invoice-audit-engine/internal/services/triage"
	"invoice-audit-engine/internal/services/vendors"
	"invoice-audit-engine/internal/utils"
)

// Pipeline wires the audit engines around the shared store.
type Pipeline struct {
	Store    *store.Store
	Policy   *policy.Store
	Matching *matching.Engine
	Anomaly  *anomaly.Engine
	Triage   *triage.Engine
	Cases    *cases.Manager
}

func NewPipeline(st *store.Store, pol *policy.Store) *Pipeline {
	return &Pipeline{
		Store:    st,
		Policy:   pol,
		Matching: matching.NewEngine(st, pol),
		Anomaly:  anomaly.NewEngine(st, pol),
		Triage:   triage.NewEngine(st, pol),
		Cases:    cases.NewManager(st, pol),
	}
}

// IngestDocument transforms raw extraction output into a stored document and
// runs the audit stages the new document makes possible: matching for
// invoices and purchase orders, then detection, triage, and case creation for
// invoices.
func (p *Pipeline) IngestDocument(raw ingest.RawExtraction, fileName, fileID string, performedBy string) (models.Document, error) {
	doc := ingest.TransformExtracted(raw, fileName, fileID)
	if err := p.Store.AddDocument(doc); err != nil {
		return models.Document{}, err
	}

	p.Store.AppendActivity(models.ActivityLogEntry{
		Action:         "document_uploaded",
		DocumentID:     doc.ID,
		DocumentNumber: documentNumber(doc),
		Vendor:         doc.Vendor,
		PerformedBy:    performedBy,
	})
	utils.GetLogger().Info("document ingested",
		utils.String("id", doc.ID),
		utils.String("type", string(doc.Type)),
		utils.String("vendor", doc.Vendor),
		utils.Float64("confidence", doc.Confidence))

	switch doc.Type {
	case models.DocumentTypeInvoice, models.DocumentTypePurchaseOrder:
		p.Matching.RunMatching()
		p.Matching.RunGRNMatching()
	case models.DocumentTypeGoodsReceipt:
		p.Matching.RunGRNMatching()
	}

	if doc.Type == models.DocumentTypeInvoice {
		if _, err := p.AuditInvoice(doc.ID, "", performedBy); err != nil {
			utils.GetLogger().Warn("post-ingest audit failed",
				utils.String("invoice_id", doc.ID),
				utils.Error(err))
		}
	}

	stored, _ := p.Store.Document(doc.ID)
	return stored, nil
}

// AuditInvoice runs detection and triage for one invoice and opens cases when
// the decision warrants them.
func (p *Pipeline) AuditInvoice(invoiceID string, role models.Role, performedBy string) (models.TriageDecision, error) {
	if _, err := p.Anomaly.DetectForInvoice(invoiceID); err != nil {
		return models.TriageDecision{}, fmt.Errorf("anomaly detection: %w", err)
	}
	decision, err := p.Triage.TriageInvoice(invoiceID, role, performedBy)
	if err != nil {
		return models.TriageDecision{}, fmt.Errorf("triage: %w", err)
	}

	if inv, ok := p.Store.Document(invoiceID); ok {
		p.Cases.OpenFromTriage(inv, decision, "system")
	}
	return decision, nil
}

// RunResult summarizes a full audit sweep.
type RunResult struct {
	Matches       int       `json:"matches"`
	GRNUpgrades   int       `json:"grn_upgrades"`
	Invoices      int       `json:"invoices_audited"`
	OpenAnomalies int       `json:"open_anomalies"`
	AutoApproved  int       `json:"auto_approved"`
	Review        int       `json:"review"`
	Blocked       int       `json:"blocked"`
	SLAAlerts     int       `json:"sla_alerts"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
}

// RunFullAudit re-runs matching, detection, and triage across every stored
// invoice and sweeps case SLAs. Safe to re-run: matching skips settled
// invoices, detection supersedes open anomalies in place, and triage never
// touches terminal statuses.
func (p *Pipeline) RunFullAudit(role models.Role, performedBy string) RunResult {
	started := time.Now()
	result := RunResult{StartedAt: started}

	result.Matches = len(p.Matching.RunMatching())
	result.GRNUpgrades = p.Matching.RunGRNMatching()
	result.OpenAnomalies = p.Anomaly.RunDetection()

	snap := p.Store.Snapshot()
	for _, inv := range snap.Invoices {
		decision, err := p.Triage.TriageInvoice(inv.ID, role, performedBy)
		if err != nil {
			utils.GetLogger().Warn("skipping invoice in audit sweep",
				utils.String("invoice_id", inv.ID),
				utils.Error(err))
			continue
		}
		result.Invoices++
		switch decision.Lane {
		case models.LaneAutoApprove:
			result.AutoApproved++
		case models.LaneBlock:
			result.Blocked++
		default:
			result.Review++
		}
		if stored, ok := p.Store.Document(inv.ID); ok {
			p.Cases.OpenFromTriage(stored, decision, "system")
		}
	}

	result.SLAAlerts = len(p.Cases.RunSLASweep())
	result.DurationMs = time.Since(started).Milliseconds()

	utils.GetLogger().Info("full audit complete",
		utils.Int("invoices", result.Invoices),
		utils.Int("open_anomalies", result.OpenAnomalies),
		utils.Int("blocked", result.Blocked),
		utils.Int64("duration_ms", result.DurationMs))
	return result
}

// SetAnomalyStatus resolves or dismisses an anomaly, auto-resolves any case
// whose linked anomalies are all closed, and refreshes the invoice's triage
// decision so the lane reflects the new state.
func (p *Pipeline) SetAnomalyStatus(anomalyID string, status models.AnomalyStatus, performedBy string) (models.Anomaly, error) {
	if status != models.AnomalyStatusResolved && status != models.AnomalyStatusDismissed {
		return models.Anomaly{}, models.NewValidationError("status", "anomalies can only be resolved or dismissed, got %q", status)
	}

	a, err := p.Store.UpdateAnomalyStatus(anomalyID, status)
	if err != nil {
		return models.Anomaly{}, err
	}

	p.Store.AppendActivity(models.ActivityLogEntry{
		Action:      "anomaly_" + string(status),
		DocumentID:  a.InvoiceID,
		Vendor:      a.Vendor,
		PerformedBy: performedBy,
	})
	p.Cases.SyncOnAnomalyResolve(anomalyID)

	if a.InvoiceID != "" {
		if _, err := p.Triage.TriageInvoice(a.InvoiceID, "", "system"); err != nil {
			utils.GetLogger().Warn("re-triage after anomaly update failed",
				utils.String("invoice_id", a.InvoiceID),
				utils.Error(err))
		}
	}
	return a, nil
}

// VendorRisk computes the current risk profile for a vendor and persists the
// refreshed profile snapshot.
func (p *Pipeline) VendorRisk(vendorName string) models.VendorRisk {
	snap := p.Store.Snapshot()
	pol := p.Policy.Get()
	risk := vendors.ComputeRiskScore(vendorName, vendors.RiskInputs{
		Invoices:    snap.Invoices,
		Anomalies:   snap.Anomalies,
		Corrections: snap.CorrectionPatterns,
		Contracts:   snap.Contracts,
	}, pol)

	p.Store.UpsertVendorProfile(models.VendorProfile{
		Vendor:           vendorName,
		VendorNormalized: vendors.Normalize(vendorName),
		RiskScore:        risk.Score,
		RiskLevel:        risk.Level,
		RiskTrend:        risk.Trend,
		Factors:          risk.Factors,
		InvoiceCount:     risk.InvoiceCount,
		TotalSpend:       risk.TotalSpend,
		OpenAnomalies:    risk.OpenAnomalyCount,
		LastUpdated:      time.Now(),
	})
	return risk
}

func documentNumber(doc models.Document) string {
	switch doc.Type {
	case models.DocumentTypeInvoice, models.DocumentTypeCreditNote:
		return doc.InvoiceNumber
	case models.DocumentTypePurchaseOrder:
		return doc.PoNumber
	case models.DocumentTypeGoodsReceipt:
		return doc.GrnNumber
	case models.DocumentTypeContract:
		return doc.ContractNumber
	}
	return ""
}
