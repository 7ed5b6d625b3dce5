// Package cases manages investigation workflows opened against flagged
// invoices. Cases are created automatically when triage routes an invoice to
// BLOCK or REVIEW, or manually for ad-hoc work. Each case carries an SLA
// derived from its priority, an append-only status history, and links to the
// anomalies under investigation.
package cases

import (
	"fmt"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
	"invoice-audit-engine/internal/utils"
)

// slaWarningPct is the fraction of the SLA window after which a case is
// flagged as at risk.
const slaWarningPct = 0.75

// allowedTransitions is the case workflow. Resolved cases can reopen to
// investigating; closed is terminal.
var allowedTransitions = map[models.CaseStatus][]models.CaseStatus{
	models.CaseOpen:            {models.CaseInvestigating, models.CaseEscalated, models.CaseResolved, models.CaseClosed},
	models.CaseInvestigating:   {models.CasePendingVendor, models.CasePendingApproval, models.CaseEscalated, models.CaseResolved, models.CaseClosed},
	models.CasePendingVendor:   {models.CaseInvestigating, models.CaseEscalated, models.CaseResolved, models.CaseClosed},
	models.CasePendingApproval: {models.CaseInvestigating, models.CaseEscalated, models.CaseResolved, models.CaseClosed},
	models.CaseEscalated:       {models.CaseInvestigating, models.CaseResolved, models.CaseClosed},
	models.CaseResolved:        {models.CaseClosed, models.CaseInvestigating},
	models.CaseClosed:          {},
}

func transitionAllowed(from, to models.CaseStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Manager owns case lifecycle against the shared store.
type Manager struct {
	store  *store.Store
	policy *policy.Store
}

func NewManager(st *store.Store, pol *policy.Store) *Manager {
	return &Manager{store: st, policy: pol}
}

func (m *Manager) slaHours(priority models.CasePriority) int {
	pol := m.policy.Get()
	switch priority {
	case models.PriorityCritical:
		return pol.SLACriticalHours
	case models.PriorityHigh:
		return pol.SLAHighHours
	case models.PriorityLow:
		return pol.SLALowHours
	default:
		return pol.SLAMediumHours
	}
}

func (m *Manager) newSLA(priority models.CasePriority, from time.Time) models.SLAState {
	hours := m.slaHours(priority)
	return models.SLAState{
		TargetHours: hours,
		Deadline:    from.Add(time.Duration(hours) * time.Hour),
		WarningAt:   from.Add(time.Duration(float64(hours)*slaWarningPct) * time.Hour),
	}
}

// CreateParams describes a case to open.
type CreateParams struct {
	Type         models.CaseType
	Title        string
	Description  string
	Priority     models.CasePriority
	InvoiceID    string
	AnomalyIDs   []string
	Vendor       string
	AmountAtRisk float64
	Currency     string
	CreatedBy    string
	AssignedTo   string
}

// Create opens a new case and persists it.
func (m *Manager) Create(p CreateParams) (models.Case, error) {
	if !p.Type.IsValid() {
		return models.Case{}, models.NewValidationError("type", "unknown case type %q", p.Type)
	}
	if p.Title == "" {
		return models.Case{}, models.NewValidationError("title", "title is required")
	}
	if p.Priority == "" {
		p.Priority = models.PriorityMedium
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.CreatedBy == "" {
		p.CreatedBy = "system"
	}

	now := time.Now()
	c := models.Case{
		ID:           utils.PrefixedID("CASE"),
		Type:         p.Type,
		Title:        p.Title,
		Description:  p.Description,
		Status:       models.CaseOpen,
		Priority:     p.Priority,
		InvoiceID:    p.InvoiceID,
		AnomalyIDs:   append([]string{}, p.AnomalyIDs...),
		Vendor:       p.Vendor,
		AmountAtRisk: p.AmountAtRisk,
		Currency:     p.Currency,
		CreatedAt:    now,
		CreatedBy:    p.CreatedBy,
		SLA:          m.newSLA(p.Priority, now),
		Notes:        []models.CaseNote{},
		StatusHistory: []models.StatusChange{
			{Status: models.CaseOpen, At: now, By: p.CreatedBy, Reason: "Case created"},
		},
	}
	if p.AssignedTo != "" {
		c.AssignedTo = p.AssignedTo
		c.AssignedAt = &now
	}
	m.store.AddCase(c)

	utils.GetLogger().Info("case created",
		utils.String("case_id", c.ID),
		utils.String("type", string(c.Type)),
		utils.String("priority", string(c.Priority)),
		utils.String("invoice_id", c.InvoiceID))
	return c, nil
}

// Transition moves a case along the workflow, stamping resolution,
// closure, or escalation metadata as appropriate.
func (m *Manager) Transition(caseID string, to models.CaseStatus, by, reason string) (models.Case, error) {
	var out models.Case
	err := m.store.UpdateCase(caseID, func(c *models.Case) error {
		if !transitionAllowed(c.Status, to) {
			return models.NewValidationError("status",
				"cannot transition from %q to %q", c.Status, to)
		}
		applyTransition(c, to, by, reason, time.Now())
		out = *c
		return nil
	})
	return out, err
}

func applyTransition(c *models.Case, to models.CaseStatus, by, reason string, now time.Time) {
	c.Status = to
	c.StatusHistory = append(c.StatusHistory, models.StatusChange{
		Status: to, At: now, By: by, Reason: reason,
	})
	switch to {
	case models.CaseResolved:
		c.ResolvedAt = &now
		c.ResolvedBy = by
		c.Resolution = reason
	case models.CaseClosed:
		c.ClosedAt = &now
		c.ClosedBy = by
	case models.CaseEscalated:
		c.EscalatedAt = &now
		c.EscalationReason = reason
	}
}

// Assign sets the case owner. Open cases auto-advance to investigating.
func (m *Manager) Assign(caseID, assignedTo, by string) (models.Case, error) {
	var out models.Case
	err := m.store.UpdateCase(caseID, func(c *models.Case) error {
		now := time.Now()
		reason := "Assigned to " + assignedTo
		if c.AssignedTo != "" {
			reason += fmt.Sprintf(" (was: %s)", c.AssignedTo)
		}
		c.AssignedTo = assignedTo
		c.AssignedAt = &now
		c.StatusHistory = append(c.StatusHistory, models.StatusChange{
			Status: c.Status, At: now, By: by, Reason: reason,
		})
		if c.Status == models.CaseOpen {
			c.Status = models.CaseInvestigating
			c.StatusHistory = append(c.StatusHistory, models.StatusChange{
				Status: models.CaseInvestigating, At: now, By: by,
				Reason: "Auto-transitioned on assignment",
			})
		}
		out = *c
		return nil
	})
	return out, err
}

// AddNote appends a comment to the case.
func (m *Manager) AddNote(caseID, text, by string) (models.Case, error) {
	if text == "" {
		return models.Case{}, models.NewValidationError("text", "note text is required")
	}
	var out models.Case
	err := m.store.UpdateCase(caseID, func(c *models.Case) error {
		c.Notes = append(c.Notes, models.CaseNote{
			ID:   utils.ShortID(),
			Text: text,
			By:   by,
			At:   time.Now(),
		})
		out = *c
		return nil
	})
	return out, err
}

// Escalate routes the case to a higher authority.
func (m *Manager) Escalate(caseID, escalatedTo, reason, by string) (models.Case, error) {
	var out models.Case
	err := m.store.UpdateCase(caseID, func(c *models.Case) error {
		if !transitionAllowed(c.Status, models.CaseEscalated) {
			return models.NewValidationError("status",
				"cannot transition from %q to %q", c.Status, models.CaseEscalated)
		}
		applyTransition(c, models.CaseEscalated, by, reason, time.Now())
		c.EscalatedTo = escalatedTo
		out = *c
		return nil
	})
	return out, err
}
