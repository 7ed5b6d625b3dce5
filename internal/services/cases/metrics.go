package cases

import (
	"math"
	"time"

	"invoice-audit-engine/internal/models"
)

// SLACounters aggregates SLA standing across active cases.
type SLACounters struct {
	Breached int `json:"breached"`
	AtRisk   int `json:"at_risk"`
	OnTrack  int `json:"on_track"`
}

// Metrics is the case dashboard rollup.
type Metrics struct {
	Total              int                            `json:"total"`
	Active             int                            `json:"active"`
	Resolved           int                            `json:"resolved"`
	Closed             int                            `json:"closed"`
	Unassigned         int                            `json:"unassigned"`
	ByStatus           map[models.CaseStatus]int      `json:"by_status"`
	ByPriority         map[models.CasePriority]int    `json:"by_priority"`
	ByAssignee         map[string]int                 `json:"by_assignee"`
	ByType             map[models.CaseType]int        `json:"by_type"`
	SLA                SLACounters                    `json:"sla"`
	AvgResolutionHours float64                        `json:"avg_resolution_hours"`
	TotalAmountAtRisk  float64                        `json:"total_amount_at_risk"`
}

// ComputeMetrics rolls up the case dashboard. Priority and assignee
// distributions cover active cases only; status and type cover everything.
func (m *Manager) ComputeMetrics() Metrics {
	snap := m.store.Snapshot()
	now := time.Now()

	out := Metrics{
		ByStatus:   map[models.CaseStatus]int{},
		ByPriority: map[models.CasePriority]int{},
		ByAssignee: map[string]int{},
		ByType:     map[models.CaseType]int{},
	}

	var resolutionHours []float64
	for _, c := range snap.Cases {
		out.Total++
		out.ByStatus[c.Status]++
		out.ByType[c.Type]++

		switch c.Status {
		case models.CaseResolved:
			out.Resolved++
		case models.CaseClosed:
			out.Closed++
		}
		if c.ResolvedAt != nil {
			resolutionHours = append(resolutionHours, c.ResolvedAt.Sub(c.CreatedAt).Hours())
		}

		if !c.Status.Active() {
			continue
		}
		out.Active++
		out.ByPriority[c.Priority]++
		assignee := c.AssignedTo
		if assignee == "" {
			assignee = "Unassigned"
			out.Unassigned++
		}
		out.ByAssignee[assignee]++
		out.TotalAmountAtRisk += c.AmountAtRisk

		switch {
		case c.SLA.Breached:
			out.SLA.Breached++
		case CheckSLA(c, now).Status == "at_risk":
			out.SLA.AtRisk++
		default:
			out.SLA.OnTrack++
		}
	}

	if len(resolutionHours) > 0 {
		sum := 0.0
		for _, h := range resolutionHours {
			sum += h
		}
		out.AvgResolutionHours = round1(sum / float64(len(resolutionHours)))
	}
	out.TotalAmountAtRisk = math.Round(out.TotalAmountAtRisk*100) / 100
	return out
}
