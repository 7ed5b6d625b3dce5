package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/ingest"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return NewPipeline(store.New(), policy.NewStore(cfg))
}

func rawInvoice(number, poRef string, amount float64) ingest.RawExtraction {
	return ingest.RawExtraction{
		DocumentType:   "invoice",
		DocumentNumber: number,
		VendorName:     "Acme Corp",
		Currency:       "USD",
		TotalAmount:    amount,
		Subtotal:       amount,
		LineItems: []ingest.RawLineItem{
			{Description: "Widgets", Quantity: 10, UnitPrice: amount / 10, Total: amount},
		},
		IssueDate:              "2026-08-10",
		DueDate:                "2026-09-10",
		PoReference:            poRef,
		SelfAssessedConfidence: 95,
	}
}

func rawPO(number string, amount float64) ingest.RawExtraction {
	return ingest.RawExtraction{
		DocumentType:   "purchase_order",
		DocumentNumber: number,
		VendorName:     "Acme Corp",
		Currency:       "USD",
		TotalAmount:    amount,
		Subtotal:       amount,
		LineItems: []ingest.RawLineItem{
			{Description: "Widgets", Quantity: 10, UnitPrice: amount / 10, Total: amount},
		},
		IssueDate:              "2026-08-01",
		SelfAssessedConfidence: 95,
	}
}

func rawGRN(number, poRef string, amount float64) ingest.RawExtraction {
	return ingest.RawExtraction{
		DocumentType:   "goods_receipt",
		DocumentNumber: number,
		VendorName:     "Acme Corp",
		Currency:       "USD",
		TotalAmount:    amount,
		Subtotal:       amount,
		PoReference:    poRef,
		ReceivedDate:   "2026-08-08",
		LineItems: []ingest.RawLineItem{
			{Description: "Widgets", Quantity: 10, UnitPrice: amount / 10, Total: amount},
		},
		SelfAssessedConfidence: 95,
	}
}

func TestIngestDocumentRunsFullFlow(t *testing.T) {
	p := newTestPipeline(t)

	po, err := p.IngestDocument(rawPO("PO-100", 5000), "po.pdf", "po1", "tester")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentTypePurchaseOrder, po.Type)

	_, err = p.IngestDocument(rawGRN("GRN-1", "PO-100", 5000), "grn.pdf", "grn1", "tester")
	require.NoError(t, err)

	inv, err := p.IngestDocument(rawInvoice("INV-8001", "PO-100", 5000), "inv.pdf", "inv1", "tester")
	require.NoError(t, err)

	// Matching ran, the receipt linked, and the invoice was triaged in one
	// pass.
	m, ok := p.Store.MatchForInvoice("inv1")
	require.True(t, ok)
	assert.Equal(t, "po1", m.PoID)
	assert.True(t, m.ThreeWay())

	d, ok := p.Store.DecisionForInvoice("inv1")
	require.True(t, ok)
	assert.Equal(t, models.LaneAutoApprove, d.Lane)
	assert.Equal(t, models.StatusApproved, inv.Status)
	assert.True(t, inv.AutoApproved)
}

func TestAuditInvoiceOpensCases(t *testing.T) {
	p := newTestPipeline(t)

	// An invoice with no PO on file gets a MISSING_PO anomaly carrying the
	// full invoice amount at risk, which blocks it and opens a case.
	_, err := p.IngestDocument(rawInvoice("INV-8002", "PO-404", 3000), "inv.pdf", "inv1", "tester")
	require.NoError(t, err)

	d, ok := p.Store.DecisionForInvoice("inv1")
	require.True(t, ok)
	assert.Equal(t, models.LaneBlock, d.Lane)

	snap := p.Store.Snapshot()
	require.Len(t, snap.Cases, 1)
	assert.Equal(t, "inv1", snap.Cases[0].InvoiceID)
	assert.Equal(t, models.CaseAnomalyInvestigation, snap.Cases[0].Type)
	assert.Equal(t, models.PriorityHigh, snap.Cases[0].Priority)
	assert.Equal(t, 3000.0, snap.Cases[0].AmountAtRisk)
}

func TestRunFullAuditIsIdempotent(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.IngestDocument(rawPO("PO-100", 5000), "po.pdf", "po1", "tester")
	require.NoError(t, err)
	_, err = p.IngestDocument(rawGRN("GRN-1", "PO-100", 5000), "grn.pdf", "grn1", "tester")
	require.NoError(t, err)
	_, err = p.IngestDocument(rawInvoice("INV-8003", "PO-100", 5000), "inv.pdf", "inv1", "tester")
	require.NoError(t, err)

	first := p.RunFullAudit(models.RoleAnalyst, "tester")
	assert.Equal(t, 1, first.Invoices)
	assert.Equal(t, 1, first.AutoApproved)
	assert.Zero(t, first.Matches, "ingest already matched the invoice")

	second := p.RunFullAudit(models.RoleAnalyst, "tester")
	assert.Equal(t, first.Invoices, second.Invoices)
	assert.Equal(t, first.AutoApproved, second.AutoApproved)
	assert.Len(t, p.Store.Snapshot().Matches, 1)
}

func TestSetAnomalyStatus(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.IngestDocument(rawInvoice("INV-8004", "PO-404", 3000), "inv.pdf", "inv1", "tester")
	require.NoError(t, err)

	anomalies := p.Store.AnomaliesForInvoice("inv1")
	require.NotEmpty(t, anomalies)
	id := anomalies[0].ID

	t.Run("only resolved or dismissed accepted", func(t *testing.T) {
		_, err := p.SetAnomalyStatus(id, models.AnomalyStatusOpen, "tester")
		assert.Error(t, err)
	})

	t.Run("resolving syncs cases and re-triages", func(t *testing.T) {
		a, err := p.SetAnomalyStatus(id, models.AnomalyStatusResolved, "tester")
		require.NoError(t, err)
		assert.Equal(t, models.AnomalyStatusResolved, a.Status)

		snap := p.Store.Snapshot()
		require.Len(t, snap.Cases, 1)
		assert.Equal(t, models.CaseResolved, snap.Cases[0].Status)
	})

	t.Run("unknown anomaly", func(t *testing.T) {
		_, err := p.SetAnomalyStatus("missing", models.AnomalyStatusResolved, "tester")
		assert.Error(t, err)
	})
}

func TestVendorRiskPersistsProfile(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.IngestDocument(rawInvoice("INV-8005", "PO-404", 3000), "inv.pdf", "inv1", "tester")
	require.NoError(t, err)

	risk := p.VendorRisk("Acme Corp")
	assert.Equal(t, 1, risk.InvoiceCount)

	profiles := p.Store.Snapshot().VendorProfiles
	require.Len(t, profiles, 1)
	assert.Equal(t, "acme", profiles[0].VendorNormalized)
	assert.Equal(t, risk.Score, profiles[0].RiskScore)
}
