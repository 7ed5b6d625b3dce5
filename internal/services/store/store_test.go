package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/models"
)

func doc(id string, t models.DocumentType) models.Document {
	return models.Document{ID: id, Type: t, Vendor: "Acme Corp", Amount: 100}
}

func TestAddAndLookupDocuments(t *testing.T) {
	s := New()

	require.NoError(t, s.AddDocument(doc("inv1", models.DocumentTypeInvoice)))
	require.NoError(t, s.AddDocument(doc("po1", models.DocumentTypePurchaseOrder)))
	require.NoError(t, s.AddDocument(doc("grn1", models.DocumentTypeGoodsReceipt)))

	t.Run("lookup spans collections", func(t *testing.T) {
		for _, id := range []string{"inv1", "po1", "grn1"} {
			_, ok := s.Document(id)
			assert.True(t, ok, id)
		}
		_, ok := s.Document("nope")
		assert.False(t, ok)
	})

	t.Run("invalid type rejected", func(t *testing.T) {
		err := s.AddDocument(models.Document{ID: "x", Type: "napkin"})
		assert.Error(t, err)
	})

	t.Run("by type returns only that collection", func(t *testing.T) {
		invs := s.DocumentsByType(models.DocumentTypeInvoice)
		require.Len(t, invs, 1)
		assert.Equal(t, "inv1", invs[0].ID)
	})

	t.Run("update mutates in place", func(t *testing.T) {
		require.NoError(t, s.UpdateDocument("inv1", func(d *models.Document) {
			d.Status = models.StatusApproved
		}))
		got, _ := s.Document("inv1")
		assert.Equal(t, models.StatusApproved, got.Status)

		assert.True(t, errors.Is(
			s.UpdateDocument("nope", func(*models.Document) {}), models.ErrNotFound))
	})

	t.Run("delete removes across collections", func(t *testing.T) {
		assert.True(t, s.DeleteDocument("grn1"))
		assert.False(t, s.DeleteDocument("grn1"))
	})
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	require.NoError(t, s.AddDocument(doc("inv1", models.DocumentTypeInvoice)))

	snap := s.Snapshot()
	require.Len(t, snap.Invoices, 1)

	// Appends to the snapshot never leak back into the store.
	snap.Invoices = append(snap.Invoices, doc("inv2", models.DocumentTypeInvoice))
	assert.Len(t, s.Snapshot().Invoices, 1)
}

func TestReplaceSwapsState(t *testing.T) {
	s := New()
	require.NoError(t, s.AddDocument(doc("inv1", models.DocumentTypeInvoice)))

	s.Replace(Snapshot{Invoices: []models.Document{doc("inv9", models.DocumentTypeInvoice)}})
	snap := s.Snapshot()
	require.Len(t, snap.Invoices, 1)
	assert.Equal(t, "inv9", snap.Invoices[0].ID)
}

func TestMatchUpsertReplacesByInvoice(t *testing.T) {
	s := New()

	s.UpsertMatch(models.Match{ID: "m1", InvoiceID: "inv1", PoID: "po1", MatchScore: 70})
	s.UpsertMatch(models.Match{ID: "m2", InvoiceID: "inv1", PoID: "po2", MatchScore: 95})
	s.UpsertMatch(models.Match{ID: "m3", InvoiceID: "inv2", PoID: "po1", MatchScore: 50})

	assert.Len(t, s.Snapshot().Matches, 2)
	m, ok := s.MatchForInvoice("inv1")
	require.True(t, ok)
	assert.Equal(t, "m2", m.ID)

	require.NoError(t, s.UpdateMatch("inv2", func(stored *models.Match) {
		stored.MatchScore = 60
	}))
	m2, _ := s.MatchForInvoice("inv2")
	assert.Equal(t, 60, m2.MatchScore)

	assert.True(t, errors.Is(
		s.UpdateMatch("inv3", func(*models.Match) {}), models.ErrNotFound))
}

func TestAnomalyLifecycle(t *testing.T) {
	s := New()

	a1 := models.Anomaly{ID: "a1", InvoiceID: "inv1", Type: models.AnomalyMissingPO, Status: models.AnomalyStatusOpen}
	a2 := models.Anomaly{ID: "a2", InvoiceID: "inv2", Type: models.AnomalyMissingPO, Status: models.AnomalyStatusOpen}
	s.ReplaceInvoiceAnomalies("inv1", []models.Anomaly{a1})
	s.ReplaceInvoiceAnomalies("inv2", []models.Anomaly{a2})

	t.Run("replace scopes to one invoice", func(t *testing.T) {
		a3 := models.Anomaly{ID: "a3", InvoiceID: "inv1", Type: models.AnomalyStaleInvoice, Status: models.AnomalyStatusOpen}
		s.ReplaceInvoiceAnomalies("inv1", []models.Anomaly{a3})

		got := s.AnomaliesForInvoice("inv1")
		require.Len(t, got, 1)
		assert.Equal(t, "a3", got[0].ID)
		assert.Len(t, s.AnomaliesForInvoice("inv2"), 1)
	})

	t.Run("status update", func(t *testing.T) {
		got, err := s.UpdateAnomalyStatus("a2", models.AnomalyStatusDismissed)
		require.NoError(t, err)
		assert.Equal(t, models.AnomalyStatusDismissed, got.Status)

		_, err = s.UpdateAnomalyStatus("missing", models.AnomalyStatusResolved)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestSetDecisionKeepsOnePerInvoice(t *testing.T) {
	s := New()

	s.SetDecision(models.TriageDecision{ID: "d1", InvoiceID: "inv1", Lane: models.LaneReview})
	s.SetDecision(models.TriageDecision{ID: "d2", InvoiceID: "inv1", Lane: models.LaneAutoApprove})
	s.SetDecision(models.TriageDecision{ID: "d3", InvoiceID: "inv2", Lane: models.LaneBlock})

	assert.Len(t, s.Snapshot().TriageDecisions, 2)
	d, ok := s.DecisionForInvoice("inv1")
	require.True(t, ok)
	assert.Equal(t, "d2", d.ID)
	assert.Equal(t, models.LaneAutoApprove, d.Lane)

	_, ok = s.DecisionForInvoice("inv3")
	assert.False(t, ok)
}

func TestAppendActivityStampsDefaults(t *testing.T) {
	s := New()

	s.AppendActivity(models.ActivityLogEntry{Action: "document_uploaded", PerformedBy: "tester"})
	log := s.Snapshot().ActivityLog
	require.Len(t, log, 1)
	assert.NotEmpty(t, log[0].ID)
	assert.False(t, log[0].Timestamp.IsZero())
}

func TestRecordCorrection(t *testing.T) {
	s := New()

	s.RecordCorrection("Acme Corp", "amount")
	s.RecordCorrection("Acme Corp", "amount")
	s.RecordCorrection("Acme Corp", "vendor")

	patterns := s.Snapshot().CorrectionPatterns
	require.Len(t, patterns, 2)
	counts := map[string]int{}
	for _, p := range patterns {
		counts[p.Field] = p.CorrectionCount
	}
	assert.Equal(t, 2, counts["amount"])
	assert.Equal(t, 1, counts["vendor"])
}

func TestUpsertVendorProfile(t *testing.T) {
	s := New()

	s.UpsertVendorProfile(models.VendorProfile{Vendor: "Acme Corp", VendorNormalized: "acme", RiskScore: 20})
	s.UpsertVendorProfile(models.VendorProfile{Vendor: "Acme Corp", VendorNormalized: "acme", RiskScore: 45})

	profiles := s.Snapshot().VendorProfiles
	require.Len(t, profiles, 1)
	assert.Equal(t, 45.0, profiles[0].RiskScore)
}

func TestLockInvoiceSerializes(t *testing.T) {
	s := New()

	unlock := s.LockInvoice("inv1")
	done := make(chan struct{})
	go func() {
		u := s.LockInvoice("inv1")
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lock acquired while first held")
	default:
	}
	unlock()
	<-done
}
