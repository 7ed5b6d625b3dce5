// Package store is the document store for the audit engine: an in-memory,
// mutex-guarded set of collections with an optional Postgres snapshot
// backend. Engines read via Snapshot and mutate through store methods only.
package store

import (
	"sync"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/utils"
)

// Snapshot is a point-in-time view of every collection. The slices are
// fresh copies; elements share nested structures with the store, so
// snapshot consumers treat them as read-only.
type Snapshot struct {
	Invoices           []models.Document          `json:"invoices"`
	PurchaseOrders     []models.Document          `json:"purchase_orders"`
	GoodsReceipts      []models.Document          `json:"goods_receipts"`
	Contracts          []models.Document          `json:"contracts"`
	CreditNotes        []models.Document          `json:"credit_notes"`
	Matches            []models.Match             `json:"matches"`
	Anomalies          []models.Anomaly           `json:"anomalies"`
	TriageDecisions    []models.TriageDecision    `json:"triage_decisions"`
	Cases              []models.Case              `json:"cases"`
	ActivityLog        []models.ActivityLogEntry  `json:"activity_log"`
	CorrectionPatterns []models.CorrectionPattern `json:"correction_patterns"`
	VendorProfiles     []models.VendorProfile     `json:"vendor_profiles"`
}

// Store holds all audit collections behind a single RWMutex. Cross-invoice
// work can proceed concurrently on snapshots; same-invoice pipelines
// serialize through LockInvoice.
type Store struct {
	mu   sync.RWMutex
	data Snapshot

	invLocks sync.Map
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// LockInvoice acquires the per-invoice mutex and returns its unlock func.
func (s *Store) LockInvoice(invoiceID string) func() {
	v, _ := s.invLocks.LoadOrStore(invoiceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Snapshot returns a copy of every collection.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Invoices:           copySlice(s.data.Invoices),
		PurchaseOrders:     copySlice(s.data.PurchaseOrders),
		GoodsReceipts:      copySlice(s.data.GoodsReceipts),
		Contracts:          copySlice(s.data.Contracts),
		CreditNotes:        copySlice(s.data.CreditNotes),
		Matches:            copySlice(s.data.Matches),
		Anomalies:          copySlice(s.data.Anomalies),
		TriageDecisions:    copySlice(s.data.TriageDecisions),
		Cases:              copySlice(s.data.Cases),
		ActivityLog:        copySlice(s.data.ActivityLog),
		CorrectionPatterns: copySlice(s.data.CorrectionPatterns),
		VendorProfiles:     copySlice(s.data.VendorProfiles),
	}
}

// Replace swaps in a previously persisted snapshot.
func (s *Store) Replace(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snap
}

func copySlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// ---- documents ----

func (s *Store) collectionFor(t models.DocumentType) *[]models.Document {
	switch t {
	case models.DocumentTypeInvoice:
		return &s.data.Invoices
	case models.DocumentTypePurchaseOrder:
		return &s.data.PurchaseOrders
	case models.DocumentTypeGoodsReceipt:
		return &s.data.GoodsReceipts
	case models.DocumentTypeContract:
		return &s.data.Contracts
	case models.DocumentTypeCreditNote:
		return &s.data.CreditNotes
	}
	return nil
}

// AddDocument stores a document in the collection for its type.
func (s *Store) AddDocument(doc models.Document) error {
	if !doc.Type.IsValid() {
		return models.NewValidationError("type", "unknown document type %q", doc.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collectionFor(doc.Type)
	*coll = append(*coll, doc)
	return nil
}

// Document looks an ID up across every document collection.
func (s *Store) Document(id string) (models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, coll := range s.allDocs() {
		for i := range *coll {
			if (*coll)[i].ID == id {
				return (*coll)[i], true
			}
		}
	}
	return models.Document{}, false
}

// UpdateDocument applies fn to the stored document under the write lock.
func (s *Store) UpdateDocument(id string, fn func(*models.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, coll := range s.allDocs() {
		for i := range *coll {
			if (*coll)[i].ID == id {
				fn(&(*coll)[i])
				return nil
			}
		}
	}
	return models.ErrNotFound
}

// DeleteDocument removes a document and returns whether it existed.
func (s *Store) DeleteDocument(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, coll := range s.allDocs() {
		for i := range *coll {
			if (*coll)[i].ID == id {
				*coll = append((*coll)[:i], (*coll)[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (s *Store) allDocs() []*[]models.Document {
	return []*[]models.Document{
		&s.data.Invoices, &s.data.PurchaseOrders, &s.data.GoodsReceipts,
		&s.data.Contracts, &s.data.CreditNotes,
	}
}

// DocumentsByType returns a copy of one document collection.
func (s *Store) DocumentsByType(t models.DocumentType) []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll := s.collectionFor(t)
	if coll == nil {
		return nil
	}
	return copySlice(*coll)
}

// ---- matches ----

// UpsertMatch stores a match, replacing any existing match for the same
// invoice. One invoice has at most one match.
func (s *Store) UpsertMatch(m models.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Matches {
		if s.data.Matches[i].InvoiceID == m.InvoiceID {
			s.data.Matches[i] = m
			return
		}
	}
	s.data.Matches = append(s.data.Matches, m)
}

// MatchForInvoice returns the match recorded for an invoice, if any.
func (s *Store) MatchForInvoice(invoiceID string) (models.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.data.Matches {
		if s.data.Matches[i].InvoiceID == invoiceID {
			return s.data.Matches[i], true
		}
	}
	return models.Match{}, false
}

// UpdateMatch applies fn to the match for an invoice under the write lock.
func (s *Store) UpdateMatch(invoiceID string, fn func(*models.Match)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Matches {
		if s.data.Matches[i].InvoiceID == invoiceID {
			fn(&s.data.Matches[i])
			return nil
		}
	}
	return models.ErrNotFound
}

// ---- anomalies ----

// AnomaliesForInvoice returns all anomalies recorded against an invoice.
func (s *Store) AnomaliesForInvoice(invoiceID string) []models.Anomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Anomaly
	for _, a := range s.data.Anomalies {
		if a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	return out
}

// ReplaceInvoiceAnomalies swaps every anomaly for one invoice with the
// given set. The caller is responsible for carrying over resolved and
// dismissed anomalies it wants to keep.
func (s *Store) ReplaceInvoiceAnomalies(invoiceID string, anomalies []models.Anomaly) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.data.Anomalies[:0]
	for _, a := range s.data.Anomalies {
		if a.InvoiceID != invoiceID {
			kept = append(kept, a)
		}
	}
	s.data.Anomalies = append(kept, anomalies...)
}

// UpdateAnomalyStatus moves an anomaly through its review lifecycle.
func (s *Store) UpdateAnomalyStatus(id string, status models.AnomalyStatus) (models.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Anomalies {
		if s.data.Anomalies[i].ID == id {
			s.data.Anomalies[i].Status = status
			return s.data.Anomalies[i], nil
		}
	}
	return models.Anomaly{}, models.ErrNotFound
}

// ---- triage decisions ----

// SetDecision records the current triage decision for an invoice, replacing
// any previous one. History lives in the activity log.
func (s *Store) SetDecision(d models.TriageDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.data.TriageDecisions[:0]
	for _, existing := range s.data.TriageDecisions {
		if existing.InvoiceID != d.InvoiceID {
			kept = append(kept, existing)
		}
	}
	s.data.TriageDecisions = append(kept, d)
}

// DecisionForInvoice returns the current triage decision for an invoice.
func (s *Store) DecisionForInvoice(invoiceID string) (models.TriageDecision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.data.TriageDecisions {
		if d.InvoiceID == invoiceID {
			return d, true
		}
	}
	return models.TriageDecision{}, false
}

// ---- cases ----

// AddCase stores a new case.
func (s *Store) AddCase(c models.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Cases = append(s.data.Cases, c)
}

// Case returns a case by ID.
func (s *Store) Case(id string) (models.Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.data.Cases {
		if s.data.Cases[i].ID == id {
			return s.data.Cases[i], true
		}
	}
	return models.Case{}, false
}

// UpdateCase applies fn to a stored case under the write lock.
func (s *Store) UpdateCase(id string, fn func(*models.Case) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Cases {
		if s.data.Cases[i].ID == id {
			return fn(&s.data.Cases[i])
		}
	}
	return models.ErrNotFound
}

// UpdateCases applies fn to every stored case under one write lock.
func (s *Store) UpdateCases(fn func(*models.Case)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Cases {
		fn(&s.data.Cases[i])
	}
}

// ---- activity log ----

// AppendActivity writes an append-only activity entry, stamping ID and
// timestamp when missing.
func (s *Store) AppendActivity(e models.ActivityLogEntry) {
	if e.ID == "" {
		e.ID = utils.ShortID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ActivityLog = append(s.data.ActivityLog, e)
}

// ---- vendor intelligence ----

// RecordCorrection increments the correction counter for a vendor field.
func (s *Store) RecordCorrection(vendor, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.CorrectionPatterns {
		p := &s.data.CorrectionPatterns[i]
		if p.Vendor == vendor && p.Field == field {
			p.CorrectionCount++
			p.LastCorrectedAt = time.Now()
			return
		}
	}
	s.data.CorrectionPatterns = append(s.data.CorrectionPatterns, models.CorrectionPattern{
		ID:              utils.ShortID(),
		Vendor:          vendor,
		Field:           field,
		CorrectionCount: 1,
		LastCorrectedAt: time.Now(),
	})
}

// UpsertVendorProfile stores the latest risk snapshot for a vendor.
func (s *Store) UpsertVendorProfile(p models.VendorProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.VendorProfiles {
		if s.data.VendorProfiles[i].VendorNormalized == p.VendorNormalized {
			s.data.VendorProfiles[i] = p
			return
		}
	}
	s.data.VendorProfiles = append(s.data.VendorProfiles, p)
}
