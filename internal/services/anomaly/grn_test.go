package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
)

func receivedGRN(total float64, items ...models.GRNLineItem) models.GRNInfo {
	return models.GRNInfo{
		MatchType:     models.MatchTypeThreeWay,
		GrnStatus:     models.GRNStatusReceived,
		TotalReceived: total,
		GrnLineItems:  items,
	}
}

func TestUnreceiptedInvoice(t *testing.T) {
	pol := defaultPolicy(t)
	inv := baseInvoice()
	po := basePO()
	noGRN := models.GRNInfo{MatchType: models.MatchTypeTwoWay, GrnStatus: models.GRNStatusNone}

	t.Run("flexible mode flags at medium", func(t *testing.T) {
		out := DetectGRNAnomalies(inv, &po, noGRN, pol)
		require.Len(t, out, 1)
		assert.Equal(t, models.AnomalyUnreceiptedInvoice, out[0].Type)
		assert.Equal(t, models.SeverityMedium, out[0].Severity)
	})

	t.Run("three-way mode escalates to high", func(t *testing.T) {
		p := pol
		p.MatchingMode = policy.ModeThreeWay
		out := DetectGRNAnomalies(inv, &po, noGRN, p)
		require.Len(t, out, 1)
		assert.Equal(t, models.SeverityHigh, out[0].Severity)
	})

	t.Run("two-way mode does not care", func(t *testing.T) {
		p := pol
		p.MatchingMode = policy.ModeTwoWay
		assert.Empty(t, DetectGRNAnomalies(inv, &po, noGRN, p))
	})

	t.Run("no po means nothing to receipt against", func(t *testing.T) {
		assert.Empty(t, DetectGRNAnomalies(inv, nil, noGRN, pol))
	})
}

func TestOverbilledVsReceived(t *testing.T) {
	pol := defaultPolicy(t)
	inv := baseInvoice()
	inv.Subtotal = 1000
	po := basePO()

	t.Run("within tolerance passes", func(t *testing.T) {
		out := DetectGRNAnomalies(inv, &po, receivedGRN(990,
			models.GRNLineItem{Description: "Widgets", QuantityReceived: 10}), pol)
		assert.Nil(t, findType(out, models.AnomalyOverbilledVsReceived))
	})

	t.Run("billing past receipts is flagged", func(t *testing.T) {
		out := DetectGRNAnomalies(inv, &po, receivedGRN(700,
			models.GRNLineItem{Description: "Widgets", QuantityReceived: 10}), pol)
		a := findType(out, models.AnomalyOverbilledVsReceived)
		require.NotNil(t, a)
		assert.Equal(t, 300.0, a.AmountAtRisk)
		assert.Equal(t, models.SeverityHigh, a.Severity)
	})
}

func TestQuantityReceivedMismatch(t *testing.T) {
	pol := defaultPolicy(t)
	inv := baseInvoice()
	inv.LineItems = []models.LineItem{
		{Description: "Widgets", Quantity: 10, UnitPrice: 100, Total: 1000},
	}
	po := basePO()

	out := DetectGRNAnomalies(inv, &po, receivedGRN(1000,
		models.GRNLineItem{Description: "Widgets", QuantityReceived: 6}), pol)
	a := findType(out, models.AnomalyQtyReceivedMismatch)
	require.NotNil(t, a)
	assert.Equal(t, 400.0, a.AmountAtRisk)
	assert.Contains(t, a.Description, "billed 10 units but only 6 received")
	assert.Equal(t, models.SeverityHigh, a.Severity)
}

func TestShortShipment(t *testing.T) {
	pol := defaultPolicy(t)
	inv := baseInvoice()
	inv.Subtotal = 500
	inv.LineItems = nil
	po := basePO()

	out := DetectGRNAnomalies(inv, &po, receivedGRN(500), pol)
	a := findType(out, models.AnomalyShortShipment)
	require.NotNil(t, a)
	assert.Equal(t, models.SeverityLow, a.Severity)
	assert.Contains(t, a.Description, "50.0% short")
}
