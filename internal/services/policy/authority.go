package policy

import (
	"invoice-audit-engine/internal/models"
)

// RoleAuthority is one row of the delegation-of-authority matrix.
type RoleAuthority struct {
	Title  string             `json:"title"`
	Level  int                `json:"level"`
	Limits map[string]float64 `json:"limits"`
}

// authorityOrder is the escalation walk, lowest authority first.
var authorityOrder = []models.Role{
	models.RoleAnalyst,
	models.RoleManager,
	models.RoleVP,
	models.RoleCFO,
}

// AuthorityMatrix maps roles to per-currency spending limits. Amounts in
// unlisted currencies fall back to the "default" limit.
var AuthorityMatrix = map[models.Role]RoleAuthority{
	models.RoleAnalyst: {Title: "AP Analyst", Level: 1, Limits: map[string]float64{
		"USD": 10000, "EUR": 8000, "GBP": 7000, "INR": 800000, "default": 10000,
	}},
	models.RoleManager: {Title: "AP Manager", Level: 2, Limits: map[string]float64{
		"USD": 100000, "EUR": 85000, "GBP": 75000, "INR": 8000000, "default": 100000,
	}},
	models.RoleVP: {Title: "VP Finance", Level: 3, Limits: map[string]float64{
		"USD": 500000, "EUR": 425000, "GBP": 375000, "INR": 40000000, "default": 500000,
	}},
	models.RoleCFO: {Title: "CFO", Level: 4, Limits: map[string]float64{
		"USD": 999999999, "EUR": 999999999, "GBP": 999999999, "INR": 999999999, "default": 999999999,
	}},
}

// RoleInfo resolves a role, falling back to the default role when unknown.
func RoleInfo(role models.Role) RoleAuthority {
	if info, ok := AuthorityMatrix[role]; ok {
		return info
	}
	return AuthorityMatrix[models.DefaultRole]
}

// AuthorityLimit returns the spending limit for a role in a currency.
func AuthorityLimit(role models.Role, currency string) float64 {
	info := RoleInfo(role)
	if limit, ok := info.Limits[currency]; ok {
		return limit
	}
	return info.Limits["default"]
}

// RequiredApprover walks the authority matrix upward and returns the lowest
// role whose limit covers the amount. Amounts beyond every limit land on
// the CFO.
func RequiredApprover(amount float64, currency string) models.ApproverInfo {
	for _, role := range authorityOrder {
		limit := AuthorityLimit(role, currency)
		if amount <= limit {
			return models.ApproverInfo{Role: role, Title: AuthorityMatrix[role].Title, Limit: limit}
		}
	}
	return models.ApproverInfo{
		Role:  models.RoleCFO,
		Title: AuthorityMatrix[models.RoleCFO].Title,
		Limit: AuthorityLimit(models.RoleCFO, currency),
	}
}
