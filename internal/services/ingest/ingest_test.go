package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/models"
)

func cleanExtraction() RawExtraction {
	return RawExtraction{
		DocumentType:   "invoice",
		DocumentNumber: "INV-7001",
		VendorName:     "Acme Corp",
		Currency:       "USD",
		TotalAmount:    1080,
		Subtotal:       1000,
		TaxDetails:     []models.TaxDetail{{Type: "Sales Tax", Rate: 8, Amount: 80}},
		LineItems: []RawLineItem{
			{Description: "Widgets", Quantity: 10, UnitPrice: 100, Total: 1000},
		},
		IssueDate:              "2026-08-01",
		DueDate:                "2026-08-31",
		PoReference:            "PO-100",
		PaymentTerms:           "Net 30",
		SelfAssessedConfidence: 92,
	}
}

func TestTransformExtracted(t *testing.T) {
	t.Run("invoice fields", func(t *testing.T) {
		doc := TransformExtracted(cleanExtraction(), "invoice.pdf", "file1")
		assert.Equal(t, "file1", doc.ID)
		assert.Equal(t, models.DocumentTypeInvoice, doc.Type)
		assert.Equal(t, models.StatusUnpaid, doc.Status)
		assert.Equal(t, "INV-7001", doc.InvoiceNumber)
		assert.Equal(t, "acme", doc.VendorNormalized)
		assert.Equal(t, 80.0, doc.TotalTax)
		assert.Equal(t, "PO-100", doc.PoReference)
		assert.False(t, doc.ExtractedAt.IsZero())
	})

	t.Run("unknown type falls back to invoice", func(t *testing.T) {
		raw := cleanExtraction()
		raw.DocumentType = "receipt_maybe"
		doc := TransformExtracted(raw, "f.pdf", "file2")
		assert.Equal(t, models.DocumentTypeInvoice, doc.Type)
	})

	t.Run("missing vendor and currency get defaults", func(t *testing.T) {
		raw := cleanExtraction()
		raw.VendorName = ""
		raw.Currency = ""
		doc := TransformExtracted(raw, "f.pdf", "file3")
		assert.Equal(t, "Unknown", doc.Vendor)
		assert.Equal(t, "", doc.VendorNormalized)
		assert.Equal(t, "USD", doc.Currency)
	})

	t.Run("subtotal and total backfill each other", func(t *testing.T) {
		raw := cleanExtraction()
		raw.Subtotal = 0
		doc := TransformExtracted(raw, "f.pdf", "file4")
		assert.Equal(t, 1080.0, doc.Subtotal)

		raw = cleanExtraction()
		raw.TotalAmount = 0
		doc = TransformExtracted(raw, "f.pdf", "file5")
		assert.Equal(t, 1000.0, doc.Amount)
	})

	t.Run("missing number synthesized per type", func(t *testing.T) {
		raw := cleanExtraction()
		raw.DocumentNumber = ""
		doc := TransformExtracted(raw, "f.pdf", "file6")
		assert.Equal(t, "INV-file6", doc.InvoiceNumber)

		raw.DocumentType = "purchase_order"
		doc = TransformExtracted(raw, "f.pdf", "file7")
		assert.Equal(t, "PO-file7", doc.PoNumber)
		assert.Equal(t, models.StatusOpen, doc.Status)

		raw.DocumentType = "goods_receipt"
		raw.ReceivedDate = ""
		doc = TransformExtracted(raw, "f.pdf", "file8")
		assert.Equal(t, "GRN-file8", doc.GrnNumber)
		assert.Equal(t, models.StatusReceived, doc.Status)
		assert.Equal(t, "2026-08-01", doc.ReceivedDate, "falls back to issue date")
	})

	t.Run("empty line description becomes placeholder", func(t *testing.T) {
		raw := cleanExtraction()
		raw.LineItems = []RawLineItem{{Description: "", Quantity: 1, UnitPrice: 5, Total: 5}}
		doc := TransformExtracted(raw, "f.pdf", "file9")
		require.Len(t, doc.LineItems, 1)
		assert.Equal(t, "?", doc.LineItems[0].Description)
	})
}

func TestComputeConfidence(t *testing.T) {
	t.Run("clean invoice scores high", func(t *testing.T) {
		score, factors := ComputeConfidence(cleanExtraction(), models.DocumentTypeInvoice)
		assert.GreaterOrEqual(t, score, 90.0)
		assert.Len(t, factors, 7)
		assert.Equal(t, 100.0, factors["vendor_identification"].Score)
		assert.Equal(t, 100.0, factors["math_consistency"].Score)
	})

	t.Run("factor weights sum to one", func(t *testing.T) {
		_, factors := ComputeConfidence(cleanExtraction(), models.DocumentTypeInvoice)
		sum := 0.0
		for _, f := range factors {
			sum += f.Weight
		}
		assert.InDelta(t, 1.0, sum, 0.001)
	})

	t.Run("missing vendor caps the score", func(t *testing.T) {
		raw := cleanExtraction()
		raw.VendorName = ""
		score, factors := ComputeConfidence(raw, models.DocumentTypeInvoice)
		assert.LessOrEqual(t, score, 55.0)
		assert.Equal(t, 10.0, factors["vendor_identification"].Score)
	})

	t.Run("unknown placeholder vendor also caps", func(t *testing.T) {
		raw := cleanExtraction()
		raw.VendorName = "Unknown"
		score, _ := ComputeConfidence(raw, models.DocumentTypeInvoice)
		assert.LessOrEqual(t, score, 55.0)
	})

	t.Run("non-positive invoice total caps at fifty", func(t *testing.T) {
		raw := cleanExtraction()
		raw.TotalAmount = 0
		raw.Subtotal = 0
		score, _ := ComputeConfidence(raw, models.DocumentTypeInvoice)
		assert.LessOrEqual(t, score, 50.0)
	})

	t.Run("inconsistent math drags the factor down", func(t *testing.T) {
		raw := cleanExtraction()
		raw.LineItems = []RawLineItem{
			{Description: "Widgets", Quantity: 10, UnitPrice: 100, Total: 700},
		}
		_, factors := ComputeConfidence(raw, models.DocumentTypeInvoice)
		assert.Equal(t, 60.0, factors["math_consistency"].Score)
	})

	t.Run("bad dates penalized", func(t *testing.T) {
		raw := cleanExtraction()
		raw.IssueDate = "not a date"
		raw.DueDate = "1999-01-01"
		_, factors := ComputeConfidence(raw, models.DocumentTypeInvoice)
		assert.Equal(t, 50.0, factors["date_validity"].Score)
	})

	t.Run("numeric vendor name is suspect", func(t *testing.T) {
		raw := cleanExtraction()
		raw.VendorName = "12345"
		_, factors := ComputeConfidence(raw, models.DocumentTypeInvoice)
		assert.Equal(t, 40.0, factors["vendor_identification"].Score)
	})

	t.Run("self assessment defaults when absent", func(t *testing.T) {
		raw := cleanExtraction()
		raw.SelfAssessedConfidence = 0
		_, factors := ComputeConfidence(raw, models.DocumentTypeInvoice)
		assert.Equal(t, 85.0, factors["ai_self_assessment"].Score)
	})

	t.Run("contract without line items is normal", func(t *testing.T) {
		raw := RawExtraction{
			DocumentType:   "contract",
			DocumentNumber: "AGR-1",
			VendorName:     "Acme Corp",
			Currency:       "USD",
			TotalAmount:    50000,
			PricingTerms:   []models.PricingTerm{{Item: "Widgets", Rate: 100, Unit: "unit"}},
			ContractTerms:  &models.ContractTerms{EffectiveDate: "2026-01-01", ExpiryDate: "2027-01-01"},
		}
		_, factors := ComputeConfidence(raw, models.DocumentTypeContract)
		assert.Equal(t, 30.0, factors["line_item_integrity"].Score)
		assert.Equal(t, 100.0, factors["date_validity"].Score)
	})
}
