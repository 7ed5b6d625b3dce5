package cases

import (
	"fmt"
	"math"
	"time"

	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/utils"
)

// SLAStatus summarizes where a case stands against its deadline.
type SLAStatus struct {
	Status         string  `json:"status"`
	Breached       bool    `json:"breached"`
	HoursOverdue   float64 `json:"hours_overdue,omitempty"`
	HoursRemaining float64 `json:"hours_remaining,omitempty"`
}

// SLAAlert flags a case that needs attention.
type SLAAlert struct {
	CaseID     string              `json:"case_id"`
	Title      string              `json:"title"`
	Priority   models.CasePriority `json:"priority"`
	AssignedTo string              `json:"assigned_to,omitempty"`
	SLAStatus  string              `json:"sla_status"`
	Detail     SLAStatus           `json:"detail"`
}

// CheckSLA evaluates a case's SLA without mutating it.
func CheckSLA(c models.Case, now time.Time) SLAStatus {
	if !c.Status.Active() {
		status := "met"
		if c.SLA.Breached {
			status = "breached_then_resolved"
		}
		return SLAStatus{Status: status, Breached: c.SLA.Breached}
	}
	if now.After(c.SLA.Deadline) {
		return SLAStatus{
			Status:       "breached",
			Breached:     true,
			HoursOverdue: round1(now.Sub(c.SLA.Deadline).Hours()),
		}
	}
	remaining := round1(c.SLA.Deadline.Sub(now).Hours())
	if now.After(c.SLA.WarningAt) {
		return SLAStatus{Status: "at_risk", HoursRemaining: remaining}
	}
	return SLAStatus{Status: "on_track", HoursRemaining: remaining}
}

// RunSLASweep checks every active case, records breaches, and auto-escalates
// breached cases to the manager queue. Returns the cases needing attention.
func (m *Manager) RunSLASweep() []SLAAlert {
	now := time.Now()
	var alerts []SLAAlert

	m.store.UpdateCases(func(c *models.Case) {
		if !c.Status.Active() {
			return
		}
		sla := CheckSLA(*c, now)
		if sla.Breached {
			c.SLA.Breached = true
			if c.SLA.BreachedAt == nil {
				t := now
				c.SLA.BreachedAt = &t
			}
			if c.Status != models.CaseEscalated && transitionAllowed(c.Status, models.CaseEscalated) {
				applyTransition(c, models.CaseEscalated, "system",
					fmt.Sprintf("SLA breached — auto-escalated (%.1fh overdue)", sla.HoursOverdue), now)
				c.EscalatedTo = "manager"
			}
		}
		if sla.Status == "breached" || sla.Status == "at_risk" {
			alerts = append(alerts, SLAAlert{
				CaseID:     c.ID,
				Title:      c.Title,
				Priority:   c.Priority,
				AssignedTo: c.AssignedTo,
				SLAStatus:  sla.Status,
				Detail:     sla,
			})
		}
	})

	if len(alerts) > 0 {
		utils.GetLogger().Info("sla sweep complete", utils.Int("alerts", len(alerts)))
	}
	return alerts
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
