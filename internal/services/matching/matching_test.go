package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
)

func testEngine(t *testing.T) (*Engine, *store.Store, *policy.Store) {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	st := store.New()
	pol := policy.NewStore(cfg)
	return NewEngine(st, pol), st, pol
}

func testInvoice(id, vendor, poRef string, amount float64) models.Document {
	return models.Document{
		ID:            id,
		Type:          models.DocumentTypeInvoice,
		InvoiceNumber: "N-" + id,
		Vendor:        vendor,
		PoReference:   poRef,
		Amount:        amount,
		Subtotal:      amount,
		Currency:      "USD",
		Status:        models.StatusUnpaid,
	}
}

func testPO(id, vendor, poNumber string, amount float64) models.Document {
	return models.Document{
		ID:       id,
		Type:     models.DocumentTypePurchaseOrder,
		Vendor:   vendor,
		PoNumber: poNumber,
		Amount:   amount,
		Subtotal: amount,
		Currency: "USD",
		Status:   models.StatusActive,
	}
}

func TestMatchInvoiceToPO(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	pol := policy.Default(cfg)

	t.Run("po reference plus vendor and amount auto-matches", func(t *testing.T) {
		inv := testInvoice("inv1", "Acme Corp", "PO-100", 5000)
		pos := []models.Document{testPO("po1", "Acme Corp", "PO-100", 5000)}

		m := MatchInvoiceToPO(inv, pos, nil, nil, pol)
		require.NotNil(t, m)
		assert.Equal(t, "po1", m.PoID)
		assert.Equal(t, models.MatchStatusAuto, m.Status)
		assert.Contains(t, m.Signals, models.SignalPoReferenceExact)
		assert.Contains(t, m.Signals, models.SignalVendorExact)
		assert.Contains(t, m.Signals, models.SignalAmountNearExact)
		assert.LessOrEqual(t, m.MatchScore, 100)
	})

	t.Run("weak signals below threshold return nil", func(t *testing.T) {
		inv := testInvoice("inv1", "Acme Corp", "", 5000)
		pos := []models.Document{testPO("po1", "Zenith Pharmaceuticals", "PO-200", 120)}

		assert.Nil(t, MatchInvoiceToPO(inv, pos, nil, nil, pol))
	})

	t.Run("vendor only without po reference needs amount support", func(t *testing.T) {
		inv := testInvoice("inv1", "Acme Corp", "", 5050)
		pos := []models.Document{testPO("po1", "Acme Corp", "PO-100", 5000)}

		m := MatchInvoiceToPO(inv, pos, nil, nil, pol)
		require.NotNil(t, m)
		assert.Equal(t, models.MatchStatusReview, m.Status)
		assert.GreaterOrEqual(t, m.MatchScore, 40)
	})

	t.Run("over invoice flips flags and blocks auto status", func(t *testing.T) {
		inv := testInvoice("inv1", "Acme Corp", "PO-100", 6000)
		pos := []models.Document{testPO("po1", "Acme Corp", "PO-100", 5000)}

		m := MatchInvoiceToPO(inv, pos, nil, nil, pol)
		require.NotNil(t, m)
		assert.True(t, m.OverInvoiced)
		assert.True(t, m.ExceedsPO)
		assert.Equal(t, models.MatchStatusReview, m.Status)
	})

	t.Run("earlier invoices consume po budget", func(t *testing.T) {
		first := testInvoice("inv1", "Acme Corp", "PO-100", 3000)
		second := testInvoice("inv2", "Acme Corp", "PO-100", 3000)
		pos := []models.Document{testPO("po1", "Acme Corp", "PO-100", 5000)}
		existing := []models.Match{{InvoiceID: "inv1", PoID: "po1"}}
		all := []models.Document{first, second}

		m := MatchInvoiceToPO(second, pos, existing, all, pol)
		require.NotNil(t, m)
		assert.Equal(t, 3000.0, m.PoAlreadyBilled)
		assert.Equal(t, 2000.0, m.PoRemaining)
		assert.True(t, m.ExceedsPO)
	})
}

func TestPoFulfillment(t *testing.T) {
	invoices := []models.Document{
		testInvoice("inv1", "Acme Corp", "PO-100", 3000),
		testInvoice("inv2", "Acme Corp", "PO-100", 1500),
		testInvoice("inv3", "Other Vendor", "", 999),
	}
	matches := []models.Match{
		{InvoiceID: "inv1", PoID: "po1"},
		{InvoiceID: "inv2", PoID: "po1"},
		{InvoiceID: "inv3", PoID: "po2"},
	}

	total, count := PoFulfillment("po1", matches, invoices)
	assert.Equal(t, 4500.0, total)
	assert.Equal(t, 2, count)

	total, count = PoFulfillment("po9", matches, invoices)
	assert.Zero(t, total)
	assert.Zero(t, count)
}

func TestGRNForPO(t *testing.T) {
	pos := []models.Document{testPO("po1", "Acme Corp", "PO-100", 5000)}

	t.Run("no receipts means two-way", func(t *testing.T) {
		info := GRNForPO("po1", nil, pos)
		assert.Equal(t, models.MatchTypeTwoWay, info.MatchType)
		assert.Equal(t, models.GRNStatusNone, info.GrnStatus)
	})

	t.Run("receipts link by po number or id", func(t *testing.T) {
		grns := []models.Document{
			{
				ID: "grn1", Type: models.DocumentTypeGoodsReceipt,
				GrnNumber: "GRN-1", PoReference: "PO-100",
				Amount: 2000, ReceivedDate: "2026-01-10",
				LineItems: []models.LineItem{{Description: "Widgets", Quantity: 10}},
			},
			{
				ID: "grn2", Type: models.DocumentTypeGoodsReceipt,
				GrnNumber: "GRN-2", PoReference: "po1",
				Subtotal: 1500, ReceivedDate: "2026-01-20",
			},
		}
		info := GRNForPO("po1", grns, pos)
		assert.Equal(t, models.MatchTypeThreeWay, info.MatchType)
		assert.Equal(t, models.GRNStatusReceived, info.GrnStatus)
		assert.Equal(t, 3500.0, info.TotalReceived)
		assert.Equal(t, []string{"grn1", "grn2"}, info.GrnIDs)
		assert.Equal(t, "2026-01-20", info.ReceivedDate)
		require.Len(t, info.GrnLineItems, 1)
		assert.Equal(t, "GRN-1", info.GrnLineItems[0].GrnNumber)
	})

	t.Run("unrelated receipts are ignored", func(t *testing.T) {
		grns := []models.Document{
			{ID: "grn1", Type: models.DocumentTypeGoodsReceipt, PoReference: "PO-999", Amount: 100},
		}
		info := GRNForPO("po1", grns, pos)
		assert.Equal(t, models.MatchTypeTwoWay, info.MatchType)
	})
}

func TestRunMatching(t *testing.T) {
	engine, st, _ := testEngine(t)

	require.NoError(t, st.AddDocument(testInvoice("inv1", "Acme Corp", "PO-100", 5000)))
	require.NoError(t, st.AddDocument(testPO("po1", "Acme Corp", "PO-100", 5000)))

	created := engine.RunMatching()
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0].ID)
	assert.False(t, created[0].MatchedAt.IsZero())

	// Second run skips the already-matched invoice.
	assert.Empty(t, engine.RunMatching())

	m, ok := st.MatchForInvoice("inv1")
	require.True(t, ok)
	assert.Equal(t, "po1", m.PoID)
}

func TestRunGRNMatching(t *testing.T) {
	engine, st, _ := testEngine(t)

	require.NoError(t, st.AddDocument(testInvoice("inv1", "Acme Corp", "PO-100", 5000)))
	require.NoError(t, st.AddDocument(testPO("po1", "Acme Corp", "PO-100", 5000)))
	require.Len(t, engine.RunMatching(), 1)

	// No receipts yet, nothing to upgrade.
	assert.Zero(t, engine.RunGRNMatching())

	require.NoError(t, st.AddDocument(models.Document{
		ID: "grn1", Type: models.DocumentTypeGoodsReceipt,
		GrnNumber: "GRN-1", PoReference: "PO-100", Amount: 5000,
		ReceivedDate: "2026-02-01",
	}))

	assert.Equal(t, 1, engine.RunGRNMatching())

	m, ok := st.MatchForInvoice("inv1")
	require.True(t, ok)
	assert.True(t, m.ThreeWay())
	assert.Equal(t, 5000.0, m.GRN.TotalReceived)

	// Already three-way, second sweep is a no-op.
	assert.Zero(t, engine.RunGRNMatching())
}
