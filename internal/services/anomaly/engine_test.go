package anomaly

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	st := store.New()
	return NewEngine(st, policy.NewStore(cfg)), st
}

func TestDetectForInvoiceErrors(t *testing.T) {
	engine, st := newTestEngine(t)

	t.Run("unknown invoice", func(t *testing.T) {
		_, err := engine.DetectForInvoice("missing")
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("non-invoice document", func(t *testing.T) {
		require.NoError(t, st.AddDocument(basePO()))
		_, err := engine.DetectForInvoice("po1")
		assert.Error(t, err)
	})
}

func TestDetectForInvoiceFindsMissingPO(t *testing.T) {
	engine, st := newTestEngine(t)
	inv := baseInvoice()
	inv.PoReference = ""
	require.NoError(t, st.AddDocument(inv))

	out, err := engine.DetectForInvoice(inv.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.AnomalyMissingPO, out[0].Type)
	assert.NotEmpty(t, out[0].ID)
	assert.Equal(t, inv.ID, out[0].InvoiceID)
	assert.Equal(t, "Acme Corp", out[0].Vendor)
	assert.Equal(t, models.AnomalyStatusOpen, out[0].Status)
	assert.False(t, out[0].DetectedAt.IsZero())

	// Detection logs an activity entry when anything is open.
	snap := st.Snapshot()
	require.NotEmpty(t, snap.ActivityLog)
	assert.Equal(t, "anomalies_detected", snap.ActivityLog[len(snap.ActivityLog)-1].Action)
}

func TestRedetectionKeepsAnomalyIdentity(t *testing.T) {
	engine, st := newTestEngine(t)
	inv := baseInvoice()
	inv.PoReference = ""
	require.NoError(t, st.AddDocument(inv))

	first, err := engine.DetectForInvoice(inv.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := engine.DetectForInvoice(inv.ID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].DetectedAt, second[0].DetectedAt)
}

func TestClearedConditionDropsOpenAnomaly(t *testing.T) {
	engine, st := newTestEngine(t)
	inv := baseInvoice()
	inv.PoReference = ""
	require.NoError(t, st.AddDocument(inv))

	out, err := engine.DetectForInvoice(inv.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)

	// The vendor supplies the PO reference; the finding no longer holds.
	require.NoError(t, st.UpdateDocument(inv.ID, func(d *models.Document) {
		d.PoReference = "PO-100"
	}))
	require.NoError(t, st.AddDocument(basePO()))
	st.UpsertMatch(models.Match{
		ID: "m1", InvoiceID: inv.ID, PoID: "po1", PoNumber: "PO-100",
		MatchScore: 95, Status: models.MatchStatusAuto,
		GRN: models.GRNInfo{MatchType: models.MatchTypeTwoWay, GrnStatus: models.GRNStatusNone},
	})

	p := engine.policy.Get()
	out, err = engine.DetectForInvoice(inv.ID)
	require.NoError(t, err)
	assert.Nil(t, findType(out, models.AnomalyMissingPO), "mode=%s", p.MatchingMode)
}

func TestResolvedAnomaliesSurviveRedetection(t *testing.T) {
	engine, st := newTestEngine(t)
	inv := baseInvoice()
	inv.PoReference = ""
	require.NoError(t, st.AddDocument(inv))

	out, err := engine.DetectForInvoice(inv.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)

	resolved, err := st.UpdateAnomalyStatus(out[0].ID, models.AnomalyStatusResolved)
	require.NoError(t, err)

	again, err := engine.DetectForInvoice(inv.ID)
	require.NoError(t, err)

	// The resolved record is kept and a fresh open one is raised for the
	// still-present condition, under a new ID.
	var openIDs, resolvedIDs []string
	for _, a := range again {
		switch a.Status {
		case models.AnomalyStatusOpen:
			openIDs = append(openIDs, a.ID)
		case models.AnomalyStatusResolved:
			resolvedIDs = append(resolvedIDs, a.ID)
		}
	}
	require.Len(t, resolvedIDs, 1)
	assert.Equal(t, resolved.ID, resolvedIDs[0])
	require.Len(t, openIDs, 1)
	assert.NotEqual(t, resolved.ID, openIDs[0])
}

func TestRunDetectionCountsOpenAnomalies(t *testing.T) {
	engine, st := newTestEngine(t)

	a := baseInvoice()
	a.PoReference = ""
	b := baseInvoice()
	b.ID = "inv2"
	b.InvoiceNumber = "INV-2002"
	b.PoReference = ""
	b.Vendor = "Globex Ltd"
	require.NoError(t, st.AddDocument(a))
	require.NoError(t, st.AddDocument(b))

	assert.GreaterOrEqual(t, engine.RunDetection(), 2)
}
