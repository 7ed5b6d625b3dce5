// Package models defines the data structures for the invoice audit engine.
package models

import (
	"time"
)

// DocumentType represents the kind of financial document.
type DocumentType string

const (
	DocumentTypeInvoice       DocumentType = "invoice"
	DocumentTypePurchaseOrder DocumentType = "purchase_order"
	DocumentTypeGoodsReceipt  DocumentType = "goods_receipt"
	DocumentTypeContract      DocumentType = "contract"
	DocumentTypeCreditNote    DocumentType = "credit_note"
)

// ValidDocumentTypes returns all valid document type values.
func ValidDocumentTypes() []DocumentType {
	return []DocumentType{
		DocumentTypeInvoice,
		DocumentTypePurchaseOrder,
		DocumentTypeGoodsReceipt,
		DocumentTypeContract,
		DocumentTypeCreditNote,
	}
}

// IsValid checks if the document type is valid.
func (d DocumentType) IsValid() bool {
	for _, valid := range ValidDocumentTypes() {
		if d == valid {
			return true
		}
	}
	return false
}

// DocumentStatus represents the lifecycle status of a document.
type DocumentStatus string

const (
	StatusPending     DocumentStatus = "pending"
	StatusUnpaid      DocumentStatus = "unpaid"
	StatusOpen        DocumentStatus = "open"
	StatusActive      DocumentStatus = "active"
	StatusReceived    DocumentStatus = "received"
	StatusApproved    DocumentStatus = "approved"
	StatusOnHold      DocumentStatus = "on_hold"
	StatusUnderReview DocumentStatus = "under_review"
	StatusPaid        DocumentStatus = "paid"
	StatusDisputed    DocumentStatus = "disputed"
	StatusScheduled   DocumentStatus = "scheduled"
)

// TriageManaged reports whether triage may transition an invoice out of this status.
func (s DocumentStatus) TriageManaged() bool {
	switch s {
	case StatusUnpaid, StatusPending, StatusOnHold, StatusUnderReview, StatusApproved:
		return true
	}
	return false
}

// Terminal reports whether the status is final and must never be changed by triage.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusPaid, StatusDisputed, StatusScheduled:
		return true
	}
	return false
}

// LineItem is a single billed or ordered line on a document.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// TaxDetail is one tax component on an invoice.
type TaxDetail struct {
	Type   string  `json:"type"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// EarlyPaymentDiscount describes a discount offered for early settlement.
type EarlyPaymentDiscount struct {
	DiscountPercent float64 `json:"discount_percent"`
	Days            int     `json:"days"`
}

// PricingTerm is a contracted rate for an item or service.
type PricingTerm struct {
	Item string  `json:"item"`
	Rate float64 `json:"rate"`
	Unit string  `json:"unit,omitempty"`
}

// ContractTerms holds the dated terms of a contract document.
type ContractTerms struct {
	EffectiveDate string `json:"effective_date,omitempty"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
}

// ConfidenceFactor is one weighted signal of the extraction confidence score.
type ConfidenceFactor struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail"`
}

// Document is the structured record produced by the extraction pipeline.
// Optional fields are pointers or zero values; the ingest package fills
// documented defaults once at the boundary.
type Document struct {
	ID               string         `json:"id"`
	Type             DocumentType   `json:"type"`
	DocumentName     string         `json:"document_name,omitempty"`
	Vendor           string         `json:"vendor"`
	VendorNormalized string         `json:"vendor_normalized"`
	Currency         string         `json:"currency"`
	Amount           float64        `json:"amount"`
	Subtotal         float64        `json:"subtotal"`
	TaxDetails       []TaxDetail    `json:"tax_details,omitempty"`
	TotalTax         float64        `json:"total_tax"`
	IssueDate        string         `json:"issue_date,omitempty"`
	Status           DocumentStatus `json:"status"`
	LineItems        []LineItem     `json:"line_items,omitempty"`
	Confidence        float64                     `json:"confidence"`
	ConfidenceFactors map[string]ConfidenceFactor `json:"confidence_factors,omitempty"`
	PaymentTerms     string         `json:"payment_terms,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	ExtractedAt      time.Time      `json:"extracted_at"`

	// Invoice fields
	InvoiceNumber        string                `json:"invoice_number,omitempty"`
	PoReference          string                `json:"po_reference,omitempty"`
	DueDate              string                `json:"due_date,omitempty"`
	EarlyPaymentDiscount *EarlyPaymentDiscount `json:"early_payment_discount,omitempty"`

	// Purchase order fields
	PoNumber     string `json:"po_number,omitempty"`
	DeliveryDate string `json:"delivery_date,omitempty"`

	// Goods receipt fields
	GrnNumber      string `json:"grn_number,omitempty"`
	ReceivedDate   string `json:"received_date,omitempty"`
	ReceivedBy     string `json:"received_by,omitempty"`
	ConditionNotes string `json:"condition_notes,omitempty"`

	// Contract fields
	ContractNumber string         `json:"contract_number,omitempty"`
	PricingTerms   []PricingTerm  `json:"pricing_terms,omitempty"`
	ContractTerms  *ContractTerms `json:"contract_terms,omitempty"`

	// Credit / debit note fields
	OriginalInvoiceRef string `json:"original_invoice_ref,omitempty"`

	// Triage metadata, written by ApplyTriageAction.
	TriageLane       Lane      `json:"triage_lane,omitempty"`
	TriageReasons    []string  `json:"triage_reasons,omitempty"`
	TriageConfidence int       `json:"triage_confidence,omitempty"`
	TriagedAt        time.Time `json:"triaged_at,omitempty"`
	VendorRiskScore  float64   `json:"vendor_risk_score,omitempty"`
	VendorRiskLevel  RiskLevel `json:"vendor_risk_level,omitempty"`
	AutoApproved     bool      `json:"auto_approved,omitempty"`
	AutoBlocked      bool      `json:"auto_blocked,omitempty"`
	AutoReview       bool      `json:"auto_review,omitempty"`
}

// EffectiveSubtotal returns the pre-tax amount, falling back to the total
// when the extractor produced no subtotal.
func (d *Document) EffectiveSubtotal() float64 {
	if d.Subtotal > 0 {
		return d.Subtotal
	}
	return d.Amount
}

// ParseDate parses the common document date layout (YYYY-MM-DD, optionally
// with a time suffix that is ignored).
func ParseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if len(value) > 10 {
		value = value[:10]
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
