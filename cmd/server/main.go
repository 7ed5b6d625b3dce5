// Package main runs the invoice audit engine as a local HTTP server. It
// exposes the ingest, matching, anomaly, triage, policy, vendor, and case
// endpoints used by the dashboard, with Postgres snapshot persistence when a
// database is configured.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/audit"
	"invoice-audit-engine/internal/services/cases"
	"invoice-audit-engine/internal/services/docstore"
	"invoice-audit-engine/internal/services/ingest"
	"invoice-audit-engine/internal/services/notifier"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
	"invoice-audit-engine/internal/utils"
)

// Server holds all dependencies.
type Server struct {
	pipeline    *audit.Pipeline
	persistence *store.Persistence
	docs        *docstore.Service
	notify      *notifier.Service
	config      *config.Config
}

// Response represents a standard API response.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func main() {
	if err := utils.InitLogger(os.Getenv("LOG_LEVEL")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer utils.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load config from environment: %v", err)
		cfg = &config.Config{}
	}

	st := store.New()
	persistence, err := store.NewPersistence(cfg)
	if err != nil {
		log.Printf("Warning: Could not connect to database: %v", err)
		log.Println("Server will run with in-memory state only")
	} else {
		if err := persistence.Load(context.Background(), st); err != nil {
			log.Printf("Warning: Could not load persisted state: %v", err)
		}
	}

	docs, err := docstore.NewService(context.Background(), cfg)
	if err != nil {
		log.Printf("Warning: S3 document store unavailable: %v", err)
	}
	notify, err := notifier.NewService(context.Background(), cfg)
	if err != nil {
		log.Printf("Warning: SES notifier unavailable: %v", err)
	}

	server := &Server{
		pipeline:    audit.NewPipeline(st, policy.NewStore(cfg)),
		persistence: persistence,
		docs:        docs,
		notify:      notify,
		config:      cfg,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", server.healthHandler)
	mux.HandleFunc("/api/health", server.healthHandler)

	mux.HandleFunc("/api/documents", server.documentsHandler)
	mux.HandleFunc("/api/documents/", server.documentHandler)
	mux.HandleFunc("/api/upload", server.uploadHandler)
	mux.HandleFunc("/api/upload-url", server.uploadURLHandler)

	mux.HandleFunc("/api/matches", server.matchesHandler)
	mux.HandleFunc("/api/matching/run", server.runMatchingHandler)

	mux.HandleFunc("/api/anomalies", server.anomaliesHandler)
	mux.HandleFunc("/api/anomalies/", server.anomalyHandler)

	mux.HandleFunc("/api/triage/run", server.runTriageHandler)
	mux.HandleFunc("/api/triage/decisions", server.decisionsHandler)

	mux.HandleFunc("/api/audit/run", server.runAuditHandler)

	mux.HandleFunc("/api/policy", server.policyHandler)
	mux.HandleFunc("/api/policy/presets", server.policyPresetsHandler)
	mux.HandleFunc("/api/policy/presets/", server.applyPresetHandler)

	mux.HandleFunc("/api/vendors/risk", server.vendorRiskHandler)

	mux.HandleFunc("/api/cases", server.casesHandler)
	mux.HandleFunc("/api/cases/metrics", server.caseMetricsHandler)
	mux.HandleFunc("/api/cases/sla-sweep", server.slaSweepHandler)
	mux.HandleFunc("/api/cases/", server.caseHandler)

	mux.HandleFunc("/api/activity", server.activityHandler)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(mux)

	port := getEnvOrDefault("PORT", "8080")
	log.Printf("Invoice audit engine listening on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	database := "not configured"
	if s.persistence != nil {
		if err := s.persistence.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			database = "disconnected"
		} else {
			database = "connected"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    status,
		"database":  database,
		"service":   "invoice-audit-engine",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// uploadHandler accepts extraction output for a new document and runs the
// audit stages it unlocks.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		FileName   string               `json:"file_name"`
		Extraction ingest.RawExtraction `json:"extraction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	doc, err := s.pipeline.IngestDocument(req.Extraction, req.FileName, utils.ShortID(), performedBy(r))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	s.saveState(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Document ingested", Data: doc})
}

func (s *Server) documentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	snap := s.pipeline.Store.Snapshot()
	if t := r.URL.Query().Get("type"); t != "" {
		docType := models.DocumentType(t)
		if !docType.IsValid() {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Unknown document type: " + t})
			return
		}
		writeJSON(w, http.StatusOK, Response{Success: true, Data: s.pipeline.Store.DocumentsByType(docType)})
		return
	}

	all := map[string]interface{}{
		"invoices":        snap.Invoices,
		"purchase_orders": snap.PurchaseOrders,
		"goods_receipts":  snap.GoodsReceipts,
		"contracts":       snap.Contracts,
		"credit_notes":    snap.CreditNotes,
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: all})
}

func (s *Server) documentHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if sub == "file" {
		s.documentFileHandler(w, r, id)
		return
	}
	if sub != "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, ok := s.pipeline.Store.Document(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "Document not found"})
			return
		}
		writeJSON(w, http.StatusOK, Response{Success: true, Data: doc})

	case http.MethodDelete:
		doc, ok := s.pipeline.Store.Document(id)
		if !ok || !s.pipeline.Store.DeleteDocument(id) {
			writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "Document not found"})
			return
		}
		if s.docs != nil && doc.DocumentName != "" {
			if err := s.docs.Delete(r.Context(), docstore.Key(doc.ID, doc.DocumentName)); err != nil {
				utils.GetLogger().Warn("stored file not removed", utils.String("document_id", doc.ID), utils.Error(err))
			}
		}
		s.saveState(r.Context())
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "Document deleted"})

	default:
		methodNotAllowed(w)
	}
}

// documentFileHandler hands out a presigned download URL for the original
// uploaded file: GET /api/documents/{id}/file
func (s *Server) documentFileHandler(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.docs == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Error: "Document file storage is not configured"})
		return
	}

	doc, ok := s.pipeline.Store.Document(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "Document not found"})
		return
	}
	if doc.DocumentName == "" {
		writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "Document has no stored file"})
		return
	}

	result, err := s.docs.PresignDownload(r.Context(), docstore.Key(doc.ID, doc.DocumentName), 0)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

// uploadURLHandler issues a presigned S3 PUT URL so clients upload the raw
// file directly and then POST the extraction to /api/upload.
func (s *Server) uploadURLHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.docs == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Error: "Document file storage is not configured"})
		return
	}

	var req struct {
		FileName      string `json:"file_name"`
		ContentType   string `json:"content_type"`
		ExpiryMinutes int    `json:"expiry_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileName == "" {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "file_name is required"})
		return
	}
	if req.ContentType == "" {
		req.ContentType = "application/pdf"
	}

	result, err := s.docs.PresignUpload(r.Context(), docstore.Key(utils.ShortID(), req.FileName), req.ContentType, req.ExpiryMinutes)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

func (s *Server) matchesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.pipeline.Store.Snapshot().Matches})
}

func (s *Server) runMatchingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	matches := s.pipeline.Matching.RunMatching()
	upgrades := s.pipeline.Matching.RunGRNMatching()
	s.saveState(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]interface{}{
		"new_matches":  matches,
		"grn_upgrades": upgrades,
	}})
}

func (s *Server) anomaliesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	anomalies := s.pipeline.Store.Snapshot().Anomalies
	if invoiceID := r.URL.Query().Get("invoice_id"); invoiceID != "" {
		anomalies = s.pipeline.Store.AnomaliesForInvoice(invoiceID)
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: anomalies})
}

// anomalyHandler resolves or dismisses a single anomaly:
// PATCH /api/anomalies/{id} {"status": "resolved"}
func (s *Server) anomalyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/anomalies/")
	var req struct {
		Status models.AnomalyStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	a, err := s.pipeline.SetAnomalyStatus(id, req.Status, performedBy(r))
	if err != nil {
		writeJSON(w, statusFor(err), Response{Success: false, Error: err.Error()})
		return
	}

	s.saveState(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Data: a})
}

func (s *Server) runTriageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		InvoiceID string      `json:"invoice_id,omitempty"`
		Role      models.Role `json:"role,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.InvoiceID != "" {
		decision, err := s.pipeline.AuditInvoice(req.InvoiceID, req.Role, performedBy(r))
		if err != nil {
			writeJSON(w, statusFor(err), Response{Success: false, Error: err.Error()})
			return
		}
		s.saveState(r.Context())
		writeJSON(w, http.StatusOK, Response{Success: true, Data: decision})
		return
	}

	decisions := s.pipeline.Triage.RunTriage(req.Role, performedBy(r))
	s.saveState(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Data: decisions})
}

func (s *Server) decisionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.pipeline.Store.Snapshot().TriageDecisions})
}

func (s *Server) runAuditHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		Role models.Role `json:"role,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result := s.pipeline.RunFullAudit(req.Role, performedBy(r))
	s.saveState(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

func (s *Server) policyHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, Response{Success: true, Data: s.pipeline.Policy.Get()})

	case http.MethodPatch, http.MethodPut:
		var updates map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
			return
		}
		if _, err := s.pipeline.Policy.Update(updates); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
		s.saveState(r.Context())
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "Policy updated", Data: s.pipeline.Policy.Get()})

	case http.MethodDelete:
		s.pipeline.Policy.Reset()
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "Policy reset to defaults", Data: s.pipeline.Policy.Get()})

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) policyPresetsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: policy.Presets})
}

// applyPresetHandler: POST /api/policy/presets/{name}
func (s *Server) applyPresetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/policy/presets/")
	if _, err := s.pipeline.Policy.ApplyPreset(name); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	s.saveState(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Preset applied: " + name, Data: s.pipeline.Policy.Get()})
}

func (s *Server) vendorRiskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	vendor := r.URL.Query().Get("vendor")
	if vendor == "" {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "vendor query parameter is required"})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.pipeline.VendorRisk(vendor)})
}

func (s *Server) casesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, Response{Success: true, Data: s.pipeline.Store.Snapshot().Cases})

	case http.MethodPost:
		var req cases.CreateParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
			return
		}
		if req.CreatedBy == "" {
			req.CreatedBy = performedBy(r)
		}
		c, err := s.pipeline.Cases.Create(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
		if s.notify != nil {
			if _, err := s.notify.SendCaseNotification(r.Context(), c); err != nil {
				utils.GetLogger().Warn("case notification not sent", utils.String("case_id", c.ID), utils.Error(err))
			}
		}
		s.saveState(r.Context())
		writeJSON(w, http.StatusCreated, Response{Success: true, Data: c})

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) caseMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.pipeline.Cases.ComputeMetrics()})
}

func (s *Server) slaSweepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	alerts := s.pipeline.Cases.RunSLASweep()
	if s.notify != nil && len(alerts) > 0 {
		if _, err := s.notify.SendSLAAlerts(r.Context(), alerts); err != nil {
			utils.GetLogger().Warn("SLA alert email not sent", utils.Error(err))
		}
	}
	s.saveState(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Data: alerts})
}

// caseHandler routes case sub-resources:
//
//	GET    /api/cases/{id}
//	POST   /api/cases/{id}/transition {"status": "...", "reason": "..."}
//	POST   /api/cases/{id}/assign     {"assigned_to": "..."}
//	POST   /api/cases/{id}/notes      {"text": "..."}
//	POST   /api/cases/{id}/escalate   {"escalated_to": "...", "reason": "..."}
func (s *Server) caseHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cases/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		c, ok := s.pipeline.Store.Case(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "Case not found"})
			return
		}
		writeJSON(w, http.StatusOK, Response{Success: true, Data: c})
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		Status      models.CaseStatus `json:"status"`
		Reason      string            `json:"reason"`
		AssignedTo  string            `json:"assigned_to"`
		Text        string            `json:"text"`
		EscalatedTo string            `json:"escalated_to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	by := performedBy(r)
	var (
		c   models.Case
		err error
	)
	switch action {
	case "transition":
		c, err = s.pipeline.Cases.Transition(id, req.Status, by, req.Reason)
	case "assign":
		c, err = s.pipeline.Cases.Assign(id, req.AssignedTo, by)
	case "notes":
		c, err = s.pipeline.Cases.AddNote(id, req.Text, by)
	case "escalate":
		c, err = s.pipeline.Cases.Escalate(id, req.EscalatedTo, req.Reason, by)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		writeJSON(w, statusFor(err), Response{Success: false, Error: err.Error()})
		return
	}
	s.saveState(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Data: c})
}

func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	entries := s.pipeline.Store.Snapshot().ActivityLog
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: entries})
}

// saveState persists the snapshot when a database is configured. Failures
// are logged; the in-memory state stays authoritative.
func (s *Server) saveState(ctx context.Context) {
	if s.persistence == nil {
		return
	}
	if err := s.persistence.Save(ctx, s.pipeline.Store); err != nil {
		utils.GetLogger().Error("failed to persist state", utils.Error(err))
	}
}

func performedBy(r *http.Request) string {
	if v := r.Header.Get("X-User"); v != "" {
		return v
	}
	return "System"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStatusLocked):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		fmt.Printf("Failed to encode response: %v\n", err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
