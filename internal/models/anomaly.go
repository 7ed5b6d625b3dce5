// Package models defines the data structures for the invoice audit engine.
package models

import (
	"time"
)

// AnomalyType identifies one of the deterministic detection rules.
type AnomalyType string

const (
	AnomalyLineItemTotalMismatch AnomalyType = "LINE_ITEM_TOTAL_MISMATCH"
	AnomalyMissingPO             AnomalyType = "MISSING_PO"
	AnomalyAmountDiscrepancy     AnomalyType = "AMOUNT_DISCREPANCY"
	AnomalyQuantityMismatch      AnomalyType = "QUANTITY_MISMATCH"
	AnomalyPriceOvercharge       AnomalyType = "PRICE_OVERCHARGE"
	AnomalyUnauthorizedItem      AnomalyType = "UNAUTHORIZED_ITEM"
	AnomalyTermsViolation        AnomalyType = "TERMS_VIOLATION"
	AnomalyContractPrice         AnomalyType = "CONTRACT_PRICE_VIOLATION"
	AnomalyDuplicateInvoice      AnomalyType = "DUPLICATE_INVOICE"
	AnomalyEarlyPaymentDiscount  AnomalyType = "EARLY_PAYMENT_DISCOUNT"
	AnomalyTaxRate               AnomalyType = "TAX_RATE_ANOMALY"
	AnomalyCurrencyMismatch      AnomalyType = "CURRENCY_MISMATCH"
	AnomalyRoundNumber           AnomalyType = "ROUND_NUMBER_INVOICE"
	AnomalyWeekendInvoice        AnomalyType = "WEEKEND_INVOICE"
	AnomalyStaleInvoice          AnomalyType = "STALE_INVOICE"
	AnomalyUnreceiptedInvoice    AnomalyType = "UNRECEIPTED_INVOICE"
	AnomalyOverbilledVsReceived  AnomalyType = "OVERBILLED_VS_RECEIVED"
	AnomalyQtyReceivedMismatch   AnomalyType = "QUANTITY_RECEIVED_MISMATCH"
	AnomalyShortShipment         AnomalyType = "SHORT_SHIPMENT"
)

// Severity classifies how serious an anomaly is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyStatus tracks the review lifecycle of a detected anomaly.
type AnomalyStatus string

const (
	AnomalyStatusOpen      AnomalyStatus = "open"
	AnomalyStatusResolved  AnomalyStatus = "resolved"
	AnomalyStatusDismissed AnomalyStatus = "dismissed"
)

// Anomaly is one rule firing against one document. Status is mutated by human
// reviewers; detection re-runs supersede open anomalies rather than duplicate
// them.
type Anomaly struct {
	ID             string        `json:"id"`
	Type           AnomalyType   `json:"type"`
	Severity       Severity      `json:"severity"`
	Description    string        `json:"description"`
	AmountAtRisk   float64       `json:"amount_at_risk"`
	ContractClause string        `json:"contract_clause,omitempty"`
	Recommendation string        `json:"recommendation,omitempty"`
	Status         AnomalyStatus `json:"status"`
	InvoiceID      string        `json:"invoice_id"`
	Vendor         string        `json:"vendor,omitempty"`
	DetectedAt     time.Time     `json:"detected_at"`

	// DuplicateConfidence carries the 0-100 multi-signal score for
	// DUPLICATE_INVOICE anomalies so downstream consumers never have to
	// re-parse it out of the description text.
	DuplicateConfidence int `json:"duplicate_confidence,omitempty"`
}

// Open reports whether the anomaly still needs attention.
func (a *Anomaly) Open() bool {
	return a.Status == AnomalyStatusOpen
}

// CountsAgainstInvoice reports whether the anomaly weighs against approval.
// Early-payment discounts are savings opportunities, not problems.
func (a *Anomaly) CountsAgainstInvoice() bool {
	return a.Open() && a.Type != AnomalyEarlyPaymentDiscount
}
