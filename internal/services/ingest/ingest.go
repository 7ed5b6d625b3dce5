// Package ingest turns raw extraction output into structured documents and
// scores how much the rest of the pipeline should trust them.
package ingest

import (
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/vendors"
)

// RawLineItem is one extracted line before normalization.
type RawLineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// RawExtraction is the untrusted output of the document extraction pipeline.
type RawExtraction struct {
	DocumentType       string                       `json:"document_type"`
	DocumentNumber     string                       `json:"document_number"`
	VendorName         string                       `json:"vendor_name"`
	Currency           string                       `json:"currency"`
	TotalAmount        float64                      `json:"total_amount"`
	Subtotal           float64                      `json:"subtotal"`
	TaxDetails         []models.TaxDetail           `json:"tax_details"`
	LineItems          []RawLineItem                `json:"line_items"`
	IssueDate          string                       `json:"issue_date"`
	DueDate            string                       `json:"due_date"`
	PoReference        string                       `json:"po_reference"`
	DeliveryDate       string                       `json:"delivery_date"`
	ReceivedDate       string                       `json:"received_date"`
	ReceivedBy         string                       `json:"received_by"`
	ConditionNotes     string                       `json:"condition_notes"`
	PaymentTerms       string                       `json:"payment_terms"`
	Notes              string                       `json:"notes"`
	PricingTerms       []models.PricingTerm         `json:"pricing_terms"`
	ContractTerms      *models.ContractTerms        `json:"contract_terms"`
	OriginalInvoiceRef string                       `json:"original_invoice_ref"`

	EarlyPaymentDiscount *models.EarlyPaymentDiscount `json:"early_payment_discount"`

	// SelfAssessedConfidence is the extraction model's own 0-100 estimate.
	SelfAssessedConfidence float64 `json:"extraction_confidence"`
}

// TransformExtracted builds a structured document from raw extraction
// output. Missing fields get documented defaults here, once, so downstream
// stages never re-check them.
func TransformExtracted(raw RawExtraction, fileName, fileID string) models.Document {
	docType := models.DocumentType(raw.DocumentType)
	if !docType.IsValid() {
		docType = models.DocumentTypeInvoice
	}

	lines := make([]models.LineItem, 0, len(raw.LineItems))
	for _, l := range raw.LineItems {
		desc := l.Description
		if desc == "" {
			desc = "?"
		}
		lines = append(lines, models.LineItem{
			Description: desc,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Total:       l.Total,
		})
	}

	subtotal := raw.Subtotal
	if subtotal == 0 {
		subtotal = raw.TotalAmount
	}
	total := raw.TotalAmount
	if total == 0 {
		total = subtotal
	}

	totalTax := 0.0
	for _, t := range raw.TaxDetails {
		totalTax += t.Amount
	}

	vendor := raw.VendorName
	if vendor == "" {
		vendor = "Unknown"
	}
	currency := raw.Currency
	if currency == "" {
		currency = "USD"
	}

	doc := models.Document{
		ID:               fileID,
		Type:             docType,
		DocumentName:     fileName,
		Vendor:           vendor,
		VendorNormalized: vendors.Normalize(raw.VendorName),
		Currency:         currency,
		Amount:           total,
		Subtotal:         subtotal,
		TaxDetails:       raw.TaxDetails,
		TotalTax:         totalTax,
		IssueDate:        raw.IssueDate,
		Status:           models.StatusPending,
		LineItems:        lines,
		PaymentTerms:     raw.PaymentTerms,
		Notes:            raw.Notes,
		ExtractedAt:      time.Now(),
	}

	score, factors := ComputeConfidence(raw, docType)
	doc.Confidence = score
	doc.ConfidenceFactors = factors

	switch docType {
	case models.DocumentTypeInvoice:
		doc.Status = models.StatusUnpaid
		doc.InvoiceNumber = numberOr(raw.DocumentNumber, "INV-"+fileID)
		doc.PoReference = raw.PoReference
		doc.DueDate = raw.DueDate
		doc.EarlyPaymentDiscount = raw.EarlyPaymentDiscount
	case models.DocumentTypePurchaseOrder:
		doc.Status = models.StatusOpen
		doc.PoNumber = numberOr(raw.DocumentNumber, "PO-"+fileID)
		doc.DeliveryDate = raw.DeliveryDate
	case models.DocumentTypeContract:
		doc.Status = models.StatusActive
		doc.ContractNumber = numberOr(raw.DocumentNumber, "AGR-"+fileID)
		doc.PricingTerms = raw.PricingTerms
		doc.ContractTerms = raw.ContractTerms
	case models.DocumentTypeGoodsReceipt:
		doc.Status = models.StatusReceived
		doc.GrnNumber = numberOr(raw.DocumentNumber, "GRN-"+fileID)
		doc.PoReference = raw.PoReference
		doc.ReceivedDate = orFallback(raw.ReceivedDate, raw.IssueDate)
		doc.ReceivedBy = raw.ReceivedBy
		doc.ConditionNotes = raw.ConditionNotes
	case models.DocumentTypeCreditNote:
		doc.Status = models.StatusPending
		doc.InvoiceNumber = numberOr(raw.DocumentNumber, "CN-"+fileID)
		doc.OriginalInvoiceRef = raw.OriginalInvoiceRef
	}
	return doc
}

func numberOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orFallback(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
