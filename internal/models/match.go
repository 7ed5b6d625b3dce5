// Package models defines the data structures for the invoice audit engine.
package models

import (
	"time"
)

// MatchType distinguishes two-way (invoice+PO) from three-way (invoice+PO+GRN)
// reconciliation.
type MatchType string

const (
	MatchTypeTwoWay   MatchType = "two_way"
	MatchTypeThreeWay MatchType = "three_way"
)

// GRNStatus reports whether goods receipts were found for the matched PO.
type GRNStatus string

const (
	GRNStatusNone     GRNStatus = "no_grn"
	GRNStatusReceived GRNStatus = "received"
)

// MatchStatus indicates whether a match clears the auto-match bar.
type MatchStatus string

const (
	MatchStatusAuto   MatchStatus = "auto_matched"
	MatchStatusReview MatchStatus = "review_needed"
)

// MatchSignal identifies one scoring signal that contributed to a match.
type MatchSignal string

const (
	SignalPoReferenceExact MatchSignal = "po_reference_exact"
	SignalVendorExact      MatchSignal = "vendor_exact"
	SignalVendorPartial    MatchSignal = "vendor_partial"
	SignalAmountNearExact  MatchSignal = "amount_near_exact"
	SignalAmountClose      MatchSignal = "amount_close"
	SignalAmountApprox     MatchSignal = "amount_approximate"
	SignalWithinBudget     MatchSignal = "within_po_budget"
	SignalLineItemsOverlap MatchSignal = "line_items_overlap"
)

// GRNLineItem is a received line aggregated from one or more goods receipts.
type GRNLineItem struct {
	Description      string  `json:"description"`
	QuantityReceived float64 `json:"quantity_received"`
	GrnNumber        string  `json:"grn_number"`
	ReceivedDate     string  `json:"received_date,omitempty"`
}

// GRNInfo summarizes the goods receipts linked to a purchase order.
type GRNInfo struct {
	MatchType     MatchType     `json:"match_type"`
	GrnStatus     GRNStatus     `json:"grn_status"`
	GrnIDs        []string      `json:"grn_ids"`
	GrnNumbers    []string      `json:"grn_numbers"`
	TotalReceived float64       `json:"total_received"`
	GrnLineItems  []GRNLineItem `json:"grn_line_items"`
	ReceivedDate  string        `json:"received_date,omitempty"`
}

// Match links one invoice to at most one purchase order. A match is never
// deleted; GRN linkage upgrades it from two-way to three-way in place.
type Match struct {
	ID              string        `json:"id"`
	InvoiceID       string        `json:"invoice_id"`
	InvoiceNumber   string        `json:"invoice_number,omitempty"`
	InvoiceAmount   float64       `json:"invoice_amount"`
	InvoiceSubtotal float64       `json:"invoice_subtotal"`
	Vendor          string        `json:"vendor"`
	PoID            string        `json:"po_id"`
	PoNumber        string        `json:"po_number"`
	PoAmount        float64       `json:"po_amount"`
	MatchScore      int           `json:"match_score"`
	Signals         []MatchSignal `json:"signals"`
	AmountDiff      float64       `json:"amount_difference"`
	Status          MatchStatus   `json:"status"`
	PoAlreadyBilled float64       `json:"po_already_invoiced"`
	PoRemaining     float64       `json:"po_remaining"`
	PoInvoiceCount  int           `json:"po_invoice_count"`
	OverInvoiced    bool          `json:"over_invoiced"`
	ExceedsPO       bool          `json:"exceeds_po"`
	MatchedAt       time.Time     `json:"matched_at"`

	// GRN block, populated when receipts are linked.
	GRN GRNInfo `json:"grn"`
}

// ThreeWay reports whether the match has been upgraded with receipt linkage.
func (m *Match) ThreeWay() bool {
	return m.GRN.MatchType == MatchTypeThreeWay
}
