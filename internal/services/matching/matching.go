// Package matching reconciles invoices with purchase orders (two-way) and
// goods receipts (three-way) using deterministic multi-signal scoring.
package matching

import (
	"math"
	"strings"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
	"invoice-audit-engine/internal/services/vendors"
	"invoice-audit-engine/internal/utils"
)

// Signal weights. The total is capped at 100.
const (
	scorePoReference    = 50
	scoreVendorExact    = 25
	scoreVendorPartial  = 15
	scoreAmountNear     = 20
	scoreAmountClose    = 12
	scoreAmountApprox   = 5
	scoreWithinBudget   = 5
	scoreLineOverlap    = 10
	acceptThreshold     = 40
	autoMatchThreshold  = 75
	vendorExactCutoff   = 0.95
	vendorPartialCutoff = 0.70
)

// Engine matches invoices against the store's purchase orders and receipts.
type Engine struct {
	store  *store.Store
	policy *policy.Store
}

// NewEngine wires a matching engine to its stores.
func NewEngine(st *store.Store, pol *policy.Store) *Engine {
	return &Engine{store: st, policy: pol}
}

// PoFulfillment sums how much of a PO has already been invoiced by the
// given matches, and how many invoices did so.
func PoFulfillment(poID string, matches []models.Match, invoices []models.Document) (float64, int) {
	invIDs := make(map[string]bool)
	for _, m := range matches {
		if m.PoID == poID {
			invIDs[m.InvoiceID] = true
		}
	}
	total := 0.0
	for i := range invoices {
		if invIDs[invoices[i].ID] {
			total += invoices[i].EffectiveSubtotal()
		}
	}
	return total, len(invIDs)
}

// MatchInvoiceToPO scores an invoice against every PO and returns the best
// candidate scoring at least the accept threshold, or nil. Earlier matches
// consume PO budget, so the same PO offers less remaining headroom to each
// subsequent invoice.
func MatchInvoiceToPO(inv models.Document, purchaseOrders []models.Document,
	existing []models.Match, allInvoices []models.Document, pol policy.Policy) *models.Match {

	invSubtotal := inv.EffectiveSubtotal()
	var best *models.Match
	bestScore := 0

	for i := range purchaseOrders {
		po := &purchaseOrders[i]
		score := 0
		var signals []models.MatchSignal

		if inv.PoReference != "" && inv.PoReference == po.PoNumber {
			score += scorePoReference
			signals = append(signals, models.SignalPoReferenceExact)
		}

		vs := vendors.Similarity(inv.Vendor, po.Vendor)
		if vs >= vendorExactCutoff {
			score += scoreVendorExact
			signals = append(signals, models.SignalVendorExact)
		} else if vs >= vendorPartialCutoff {
			score += scoreVendorPartial
			signals = append(signals, models.SignalVendorPartial)
		}

		poAmount := po.Amount
		already, cnt := PoFulfillment(po.ID, existing, allInvoices)
		remaining := poAmount - already

		if invSubtotal > 0 && poAmount > 0 {
			target := poAmount
			if remaining > 0 {
				target = remaining
			}
			dp := math.Abs(invSubtotal-target) / math.Max(invSubtotal, target)
			switch {
			case dp < 0.02:
				score += scoreAmountNear
				signals = append(signals, models.SignalAmountNearExact)
			case dp < 0.10:
				score += scoreAmountClose
				signals = append(signals, models.SignalAmountClose)
			case dp < 0.25:
				score += scoreAmountApprox
				signals = append(signals, models.SignalAmountApprox)
			}
			if remaining > 0 && invSubtotal <= remaining*1.1 {
				score += scoreWithinBudget
				signals = append(signals, models.SignalWithinBudget)
			}
		}

		if lineOverlap(inv.LineItems, po.LineItems) > 0.5 {
			score += scoreLineOverlap
			signals = append(signals, models.SignalLineItemsOverlap)
		}

		if score > 100 {
			score = 100
		}

		over := false
		exceeds := false
		if poAmount > 0 {
			over = already+invSubtotal > poAmount*(1+pol.OverInvoicePct/100)
			exceeds = already+invSubtotal > poAmount*1.005
		}

		status := models.MatchStatusReview
		if score >= autoMatchThreshold && !over && !exceeds {
			status = models.MatchStatusAuto
		}

		target := poAmount
		if remaining > 0 {
			target = remaining
		}

		if score > bestScore && score >= acceptThreshold {
			bestScore = score
			best = &models.Match{
				InvoiceID:       inv.ID,
				InvoiceNumber:   inv.InvoiceNumber,
				InvoiceAmount:   inv.Amount,
				InvoiceSubtotal: invSubtotal,
				Vendor:          inv.Vendor,
				PoID:            po.ID,
				PoNumber:        po.PoNumber,
				PoAmount:        poAmount,
				MatchScore:      score,
				Signals:         signals,
				AmountDiff:      round2(math.Abs(invSubtotal - target)),
				Status:          status,
				PoAlreadyBilled: round2(already),
				PoRemaining:     round2(remaining),
				PoInvoiceCount:  cnt,
				OverInvoiced:    over,
				ExceedsPO:       exceeds,
			}
		}
	}
	return best
}

func lineOverlap(a, b []models.LineItem) float64 {
	setA := descriptionSet(a)
	setB := descriptionSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for d := range setA {
		if setB[d] {
			inter++
		}
	}
	return float64(inter) / math.Max(float64(len(setA)), float64(len(setB)))
}

func descriptionSet(items []models.LineItem) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, li := range items {
		set[strings.ToLower(li.Description)] = true
	}
	delete(set, "")
	return set
}

// GRNForPO gathers the goods receipts referencing a PO by ID or number and
// summarizes them for three-way matching.
func GRNForPO(poID string, goodsReceipts, purchaseOrders []models.Document) models.GRNInfo {
	identifiers := map[string]bool{poID: true}
	for i := range purchaseOrders {
		if purchaseOrders[i].ID == poID {
			if pn := purchaseOrders[i].PoNumber; pn != "" {
				identifiers[pn] = true
			}
			break
		}
	}

	var linked []models.Document
	for i := range goodsReceipts {
		if ref := goodsReceipts[i].PoReference; ref != "" && identifiers[ref] {
			linked = append(linked, goodsReceipts[i])
		}
	}

	if len(linked) == 0 {
		return models.GRNInfo{MatchType: models.MatchTypeTwoWay, GrnStatus: models.GRNStatusNone}
	}

	info := models.GRNInfo{
		MatchType: models.MatchTypeThreeWay,
		GrnStatus: models.GRNStatusReceived,
	}
	total := 0.0
	for _, grn := range linked {
		amount := grn.Amount
		if amount == 0 {
			amount = grn.Subtotal
		}
		total += amount

		grnNumber := grn.GrnNumber
		if grnNumber == "" {
			grnNumber = grn.ID
		}
		receivedDate := grn.ReceivedDate
		if receivedDate == "" {
			receivedDate = grn.IssueDate
		}
		info.GrnIDs = append(info.GrnIDs, grn.ID)
		info.GrnNumbers = append(info.GrnNumbers, grnNumber)
		for _, li := range grn.LineItems {
			info.GrnLineItems = append(info.GrnLineItems, models.GRNLineItem{
				Description:      li.Description,
				QuantityReceived: li.Quantity,
				GrnNumber:        grnNumber,
				ReceivedDate:     receivedDate,
			})
		}
	}
	info.TotalReceived = round2(total)
	last := linked[len(linked)-1]
	info.ReceivedDate = last.ReceivedDate
	if info.ReceivedDate == "" {
		info.ReceivedDate = last.IssueDate
	}
	return info
}

// RunMatching matches every unmatched invoice and persists the results.
// Re-running is idempotent: already-matched invoices are skipped.
func (e *Engine) RunMatching() []models.Match {
	snap := e.store.Snapshot()
	pol := e.policy.Get()
	logger := utils.GetLogger()

	matched := make(map[string]bool, len(snap.Matches))
	for _, m := range snap.Matches {
		matched[m.InvoiceID] = true
	}

	working := snap.Matches
	var created []models.Match
	for i := range snap.Invoices {
		inv := snap.Invoices[i]
		if matched[inv.ID] {
			continue
		}
		m := MatchInvoiceToPO(inv, snap.PurchaseOrders, working, snap.Invoices, pol)
		if m == nil {
			continue
		}
		m.ID = utils.ShortID()
		m.MatchedAt = time.Now()
		m.GRN = GRNForPO(m.PoID, snap.GoodsReceipts, snap.PurchaseOrders)

		working = append(working, *m)
		created = append(created, *m)
		e.store.UpsertMatch(*m)

		logger.Info("invoice matched",
			utils.String("invoice_id", inv.ID),
			utils.String("po_number", m.PoNumber),
			utils.Int("score", m.MatchScore),
			utils.String("status", string(m.Status)))
	}
	return created
}

// RunGRNMatching upgrades existing two-way matches to three-way in place as
// receipts arrive. Returns how many matches were upgraded.
func (e *Engine) RunGRNMatching() int {
	snap := e.store.Snapshot()
	if len(snap.GoodsReceipts) == 0 {
		return 0
	}

	updated := 0
	for _, m := range snap.Matches {
		if m.ThreeWay() || m.PoID == "" {
			continue
		}
		info := GRNForPO(m.PoID, snap.GoodsReceipts, snap.PurchaseOrders)
		if info.MatchType != models.MatchTypeThreeWay {
			continue
		}
		if err := e.store.UpdateMatch(m.InvoiceID, func(stored *models.Match) {
			stored.GRN = info
		}); err == nil {
			updated++
		}
	}

	if updated > 0 {
		utils.GetLogger().Info("matches upgraded to three-way", utils.Int("count", updated))
	}
	return updated
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
