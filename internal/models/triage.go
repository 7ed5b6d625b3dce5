// Package models defines the data structures for the invoice audit engine.
package models

import (
	"time"
)

// Lane is the triage output category.
type Lane string

const (
	LaneAutoApprove Lane = "AUTO_APPROVE"
	LaneReview      Lane = "REVIEW"
	LaneBlock       Lane = "BLOCK"
)

// RiskLevel buckets a vendor risk score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// RiskTrend describes the direction of a vendor's recent behavior.
type RiskTrend string

const (
	RiskTrendNew       RiskTrend = "new"
	RiskTrendImproving RiskTrend = "improving"
	RiskTrendStable    RiskTrend = "stable"
	RiskTrendWorsening RiskTrend = "worsening"
)

// RiskFactor is one weighted component of a vendor risk score.
type RiskFactor struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail"`
}

// VendorRisk is the composite risk assessment for a vendor, recomputed on
// demand and never cached across policy changes.
type VendorRisk struct {
	Score             float64               `json:"score"`
	Level             RiskLevel             `json:"level"`
	Trend             RiskTrend             `json:"trend"`
	InvoiceCount      int                   `json:"invoice_count"`
	TotalSpend        float64               `json:"total_spend"`
	OpenAnomalyCount  int                   `json:"open_anomaly_count"`
	TotalAnomalyCount int                   `json:"total_anomaly_count"`
	Factors           map[string]RiskFactor `json:"factors,omitempty"`
}

// Role is a spending-authority role.
type Role string

const (
	RoleAnalyst Role = "analyst"
	RoleManager Role = "manager"
	RoleVP      Role = "vp"
	RoleCFO     Role = "cfo"
)

// DefaultRole is assumed when no role is supplied.
const DefaultRole = RoleAnalyst

// ApproverInfo names the role whose authority covers an amount.
type ApproverInfo struct {
	Role  Role    `json:"role"`
	Title string  `json:"title"`
	Limit float64 `json:"limit"`
}

// AnomalySummary are the per-severity counts recorded with a decision.
type AnomalySummary struct {
	Total     int     `json:"total"`
	High      int     `json:"high"`
	Medium    int     `json:"medium"`
	Low       int     `json:"low"`
	TotalRisk float64 `json:"total_risk"`
	HasEPD    bool    `json:"has_epd"`
}

// TriageDecision is the classification of one invoice. Exactly one decision
// is current per invoice; the activity log preserves history.
type TriageDecision struct {
	ID               string         `json:"id"`
	InvoiceID        string         `json:"invoice_id"`
	Lane             Lane           `json:"lane"`
	Reasons          []string       `json:"reasons"`
	Confidence       int            `json:"confidence"`
	VendorRisk       VendorRisk     `json:"vendor_risk"`
	AnomalySummary   AnomalySummary `json:"anomaly_summary"`
	MatchQuality     int            `json:"match_quality"`
	ActiveRole       Role           `json:"active_role"`
	RequiredApprover ApproverInfo   `json:"required_approver"`
	AutoAction       DocumentStatus `json:"auto_action,omitempty"`
	TriagedAt        time.Time      `json:"triaged_at"`
}

// ActivityLogEntry is an append-only audit record of a state-changing action.
// Written entries are never mutated.
type ActivityLogEntry struct {
	ID             string    `json:"id"`
	Action         string    `json:"action"`
	DocumentID     string    `json:"document_id"`
	DocumentNumber string    `json:"document_number,omitempty"`
	Vendor         string    `json:"vendor,omitempty"`
	Lane           Lane      `json:"lane,omitempty"`
	Confidence     int       `json:"confidence,omitempty"`
	VendorRisk     float64   `json:"vendor_risk,omitempty"`
	AnomalyCount   int       `json:"anomaly_count,omitempty"`
	Reasons        []string  `json:"reasons,omitempty"`
	PerformedBy    string    `json:"performed_by"`
	Timestamp      time.Time `json:"timestamp"`
}
