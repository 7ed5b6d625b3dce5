package models

import "time"

// CaseStatus tracks the investigation workflow of a case.
type CaseStatus string

const (
	CaseOpen            CaseStatus = "open"
	CaseInvestigating   CaseStatus = "investigating"
	CasePendingVendor   CaseStatus = "pending_vendor"
	CasePendingApproval CaseStatus = "pending_approval"
	CaseEscalated       CaseStatus = "escalated"
	CaseResolved        CaseStatus = "resolved"
	CaseClosed          CaseStatus = "closed"
)

// Active reports whether the case still needs work.
func (s CaseStatus) Active() bool {
	return s != CaseResolved && s != CaseClosed
}

// CasePriority drives the SLA target.
type CasePriority string

const (
	PriorityCritical CasePriority = "critical"
	PriorityHigh     CasePriority = "high"
	PriorityMedium   CasePriority = "medium"
	PriorityLow      CasePriority = "low"
)

// CaseType classifies what a case investigates.
type CaseType string

const (
	CaseAnomalyInvestigation CaseType = "anomaly_investigation"
	CaseDuplicateReview      CaseType = "duplicate_review"
	CaseVendorDispute        CaseType = "vendor_dispute"
	CaseContractViolation    CaseType = "contract_violation"
	CaseAuthorityEscalation  CaseType = "authority_escalation"
	CaseGeneralInvestigation CaseType = "general_investigation"
)

// ValidCaseTypes lists the accepted case types for manual creation.
var ValidCaseTypes = []CaseType{
	CaseAnomalyInvestigation,
	CaseDuplicateReview,
	CaseVendorDispute,
	CaseContractViolation,
	CaseAuthorityEscalation,
	CaseGeneralInvestigation,
}

func (t CaseType) IsValid() bool {
	for _, v := range ValidCaseTypes {
		if t == v {
			return true
		}
	}
	return false
}

// SLAState is the priority-derived resolution deadline for a case.
type SLAState struct {
	TargetHours int        `json:"target_hours"`
	Deadline    time.Time  `json:"deadline"`
	WarningAt   time.Time  `json:"warning_at"`
	Breached    bool       `json:"breached"`
	BreachedAt  *time.Time `json:"breached_at,omitempty"`
}

// CaseNote is a free-form comment attached to a case.
type CaseNote struct {
	ID   string    `json:"id"`
	Text string    `json:"text"`
	By   string    `json:"by"`
	At   time.Time `json:"at"`
}

// StatusChange records one step in a case's status history.
type StatusChange struct {
	Status CaseStatus `json:"status"`
	At     time.Time  `json:"at"`
	By     string     `json:"by"`
	Reason string     `json:"reason"`
}

// Case is an investigation opened against one or more anomalies on an
// invoice, or manually for ad-hoc review.
type Case struct {
	ID               string         `json:"id"`
	Type             CaseType       `json:"type"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Status           CaseStatus     `json:"status"`
	Priority         CasePriority   `json:"priority"`
	InvoiceID        string         `json:"invoice_id,omitempty"`
	AnomalyIDs       []string       `json:"anomaly_ids"`
	Vendor           string         `json:"vendor,omitempty"`
	AmountAtRisk     float64        `json:"amount_at_risk"`
	Currency         string         `json:"currency"`
	CreatedAt        time.Time      `json:"created_at"`
	CreatedBy        string         `json:"created_by"`
	AssignedTo       string         `json:"assigned_to,omitempty"`
	AssignedAt       *time.Time     `json:"assigned_at,omitempty"`
	SLA              SLAState       `json:"sla"`
	Resolution       string         `json:"resolution,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy       string         `json:"resolved_by,omitempty"`
	ClosedAt         *time.Time     `json:"closed_at,omitempty"`
	ClosedBy         string         `json:"closed_by,omitempty"`
	EscalatedTo      string         `json:"escalated_to,omitempty"`
	EscalatedAt      *time.Time     `json:"escalated_at,omitempty"`
	EscalationReason string         `json:"escalation_reason,omitempty"`
	Notes            []CaseNote     `json:"notes"`
	StatusHistory    []StatusChange `json:"status_history"`
}
