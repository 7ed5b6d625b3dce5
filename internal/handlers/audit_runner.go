package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	appConfig "invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/audit"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
	"invoice-audit-engine/internal/utils"
)

// AuditRunnerHandler runs the full audit sweep on a schedule or on demand.
// State is loaded from Postgres at the start of each invocation and saved
// back when the sweep finishes.
type AuditRunnerHandler struct {
	cfg         *appConfig.Config
	persistence *store.Persistence
}

// NewAuditRunnerHandler creates a new audit runner handler.
func NewAuditRunnerHandler() (*AuditRunnerHandler, error) {
	cfg, err := appConfig.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	p, err := store.NewPersistence(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &AuditRunnerHandler{cfg: cfg, persistence: p}, nil
}

// auditRunnerRequest is the optional invocation payload.
type auditRunnerRequest struct {
	Role        string `json:"role,omitempty"`
	PerformedBy string `json:"performed_by,omitempty"`
}

// auditRunnerResponse wraps the sweep result.
type auditRunnerResponse struct {
	Success bool            `json:"success"`
	Result  audit.RunResult `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Handle loads state, runs the sweep, and persists the outcome.
func (h *AuditRunnerHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := map[string]string{
		"Access-Control-Allow-Origin": "*",
		"Content-Type":                "application/json",
	}

	var req auditRunnerRequest
	if request.Body != "" {
		_ = json.Unmarshal([]byte(request.Body), &req)
	}
	if req.PerformedBy == "" {
		req.PerformedBy = "scheduler"
	}

	st := store.New()
	if err := h.persistence.Load(ctx, st); err != nil {
		return errorResponse(headers, http.StatusInternalServerError, fmt.Errorf("failed to load state: %w", err))
	}

	pipeline := audit.NewPipeline(st, policy.NewStore(h.cfg))
	result := pipeline.RunFullAudit(models.Role(req.Role), req.PerformedBy)

	if err := h.persistence.Save(ctx, st); err != nil {
		return errorResponse(headers, http.StatusInternalServerError, fmt.Errorf("failed to save state: %w", err))
	}

	utils.GetLogger().Info("audit runner finished",
		utils.Int("invoices", result.Invoices),
		utils.Int("blocked", result.Blocked))

	body, _ := json.Marshal(auditRunnerResponse{Success: true, Result: result})
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       string(body),
	}, nil
}

// Close cleans up resources.
func (h *AuditRunnerHandler) Close() {
	if h.persistence != nil {
		h.persistence.Close()
	}
}

func errorResponse(headers map[string]string, status int, err error) (events.APIGatewayProxyResponse, error) {
	utils.GetLogger().Error("audit runner failed", utils.Error(err))
	body, _ := json.Marshal(auditRunnerResponse{Success: false, Error: err.Error()})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(body),
	}, nil
}
