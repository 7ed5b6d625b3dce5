package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return NewStore(cfg)
}

func TestDefaultPolicy(t *testing.T) {
	s := testStore(t)
	pol := s.Get()

	assert.Equal(t, 1, pol.Version)
	assert.Equal(t, ModeFlexible, pol.MatchingMode)
	assert.True(t, pol.TriageEnabled)
	assert.Equal(t, 100000.0, pol.AutoApproveLimits["USD"])
	assert.Equal(t, 7500000.0, pol.AutoApproveLimits["INR"])
	assert.InDelta(t, 1.0, pol.VendorRiskWeights.AnomalyRate+
		pol.VendorRiskWeights.CorrectionFrequency+
		pol.VendorRiskWeights.ContractCompliance+
		pol.VendorRiskWeights.DuplicateHistory+
		pol.VendorRiskWeights.VolumeConsistency, 0.001)
}

func TestGetReturnsCopy(t *testing.T) {
	s := testStore(t)

	pol := s.Get()
	pol.AmountTolerancePct = 99
	pol.AutoApproveLimits["USD"] = 1

	fresh := s.Get()
	assert.NotEqual(t, 99.0, fresh.AmountTolerancePct)
	assert.Equal(t, 100000.0, fresh.AutoApproveLimits["USD"])
}

func TestUpdate(t *testing.T) {
	t.Run("applies valid changes and bumps version", func(t *testing.T) {
		s := testStore(t)
		before := s.Get().Version

		updated, err := s.Update(map[string]any{
			"amount_tolerance_pct": 5.0,
			"matching_mode":        "three_way",
			"triage_enabled":       false,
		})
		require.NoError(t, err)
		assert.Equal(t, 5.0, updated.AmountTolerancePct)
		assert.Equal(t, ModeThreeWay, updated.MatchingMode)
		assert.False(t, updated.TriageEnabled)
		assert.Equal(t, before+1, updated.Version)
	})

	t.Run("rejects unknown keys without mutating", func(t *testing.T) {
		s := testStore(t)
		before := s.Get()

		_, err := s.Update(map[string]any{
			"amount_tolerance_pct": 9.0,
			"no_such_field":        1,
		})
		require.Error(t, err)

		after := s.Get()
		assert.Equal(t, before.AmountTolerancePct, after.AmountTolerancePct)
		assert.Equal(t, before.Version, after.Version)
	})

	t.Run("rejects invalid matching mode", func(t *testing.T) {
		s := testStore(t)
		_, err := s.Update(map[string]any{"matching_mode": "four_way"})
		assert.Error(t, err)
	})

	t.Run("clamps percentages to 0-100", func(t *testing.T) {
		s := testStore(t)
		updated, err := s.Update(map[string]any{"amount_tolerance_pct": 250.0})
		require.NoError(t, err)
		assert.Equal(t, 100.0, updated.AmountTolerancePct)

		updated, err = s.Update(map[string]any{"amount_tolerance_pct": -3.0})
		require.NoError(t, err)
		assert.Equal(t, 0.0, updated.AmountTolerancePct)
	})

	t.Run("rejects tightening outside 0-1", func(t *testing.T) {
		s := testStore(t)
		_, err := s.Update(map[string]any{"risk_tolerance_tightening": 1.5})
		assert.Error(t, err)
	})

	t.Run("floors day counts at zero", func(t *testing.T) {
		s := testStore(t)
		updated, err := s.Update(map[string]any{"duplicate_window_days": -10})
		require.NoError(t, err)
		assert.Equal(t, 0, updated.DuplicateWindowDays)
	})

	t.Run("merges auto approve limits", func(t *testing.T) {
		s := testStore(t)
		updated, err := s.Update(map[string]any{
			"auto_approve_limits": map[string]any{"USD": 50000.0},
		})
		require.NoError(t, err)
		assert.Equal(t, 50000.0, updated.AutoApproveLimits["USD"])
		assert.Equal(t, 90000.0, updated.AutoApproveLimits["EUR"])
	})
}

func TestReset(t *testing.T) {
	s := testStore(t)
	_, err := s.Update(map[string]any{"amount_tolerance_pct": 42.0})
	require.NoError(t, err)

	pol := s.Reset()
	assert.NotEqual(t, 42.0, pol.AmountTolerancePct)
}

func TestApplyPreset(t *testing.T) {
	s := testStore(t)

	pol, err := s.ApplyPreset("strict_audit")
	require.NoError(t, err)
	assert.Equal(t, ModeThreeWay, pol.MatchingMode)
	assert.True(t, pol.FlagRoundNumberInvoices)

	_, err = s.ApplyPreset("nonexistent")
	assert.Error(t, err)
}

func TestAuthority(t *testing.T) {
	t.Run("limits per role and currency", func(t *testing.T) {
		assert.Equal(t, 10000.0, AuthorityLimit(models.RoleAnalyst, "USD"))
		assert.Equal(t, 8000000.0, AuthorityLimit(models.RoleManager, "INR"))
		assert.Equal(t, 999999999.0, AuthorityLimit(models.RoleCFO, "GBP"))
	})

	t.Run("unknown currency falls back to default", func(t *testing.T) {
		assert.Equal(t, AuthorityLimit(models.RoleAnalyst, "default"),
			AuthorityLimit(models.RoleAnalyst, "CHF"))
	})

	t.Run("unknown role falls back to analyst", func(t *testing.T) {
		assert.Equal(t, AuthorityLimit(models.RoleAnalyst, "USD"),
			AuthorityLimit(models.Role("intern"), "USD"))
	})

	t.Run("required approver walks up the chain", func(t *testing.T) {
		assert.Equal(t, models.RoleAnalyst, RequiredApprover(5000, "USD").Role)
		assert.Equal(t, models.RoleManager, RequiredApprover(50000, "USD").Role)
		assert.Equal(t, models.RoleVP, RequiredApprover(250000, "USD").Role)
		assert.Equal(t, models.RoleCFO, RequiredApprover(750000, "USD").Role)
	})
}
