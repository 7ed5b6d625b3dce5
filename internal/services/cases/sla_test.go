package cases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/models"
)

func TestCheckSLA(t *testing.T) {
	now := time.Now()

	base := models.Case{
		Status: models.CaseOpen,
		SLA: models.SLAState{
			TargetHours: 24,
			Deadline:    now.Add(12 * time.Hour),
			WarningAt:   now.Add(6 * time.Hour),
		},
	}

	t.Run("on track", func(t *testing.T) {
		s := CheckSLA(base, now)
		assert.Equal(t, "on_track", s.Status)
		assert.False(t, s.Breached)
		assert.Equal(t, 12.0, s.HoursRemaining)
	})

	t.Run("at risk past the warning mark", func(t *testing.T) {
		s := CheckSLA(base, now.Add(7*time.Hour))
		assert.Equal(t, "at_risk", s.Status)
		assert.Equal(t, 5.0, s.HoursRemaining)
	})

	t.Run("breached past the deadline", func(t *testing.T) {
		s := CheckSLA(base, now.Add(15*time.Hour))
		assert.Equal(t, "breached", s.Status)
		assert.True(t, s.Breached)
		assert.Equal(t, 3.0, s.HoursOverdue)
	})

	t.Run("resolved case reports met", func(t *testing.T) {
		c := base
		c.Status = models.CaseResolved
		s := CheckSLA(c, now.Add(48*time.Hour))
		assert.Equal(t, "met", s.Status)
	})

	t.Run("resolved after a breach keeps the record", func(t *testing.T) {
		c := base
		c.Status = models.CaseResolved
		c.SLA.Breached = true
		s := CheckSLA(c, now)
		assert.Equal(t, "breached_then_resolved", s.Status)
		assert.True(t, s.Breached)
	})
}

func TestRunSLASweep(t *testing.T) {
	m, st, _ := newTestManager(t)

	healthy := mustCreate(t, m, basicParams())
	breached := mustCreate(t, m, basicParams())
	require.NoError(t, st.UpdateCase(breached.ID, func(c *models.Case) error {
		c.SLA.Deadline = time.Now().Add(-5 * time.Hour)
		c.SLA.WarningAt = time.Now().Add(-10 * time.Hour)
		return nil
	}))

	alerts := m.RunSLASweep()
	require.Len(t, alerts, 1)
	assert.Equal(t, breached.ID, alerts[0].CaseID)
	assert.Equal(t, "breached", alerts[0].SLAStatus)

	got, ok := st.Case(breached.ID)
	require.True(t, ok)
	assert.True(t, got.SLA.Breached)
	require.NotNil(t, got.SLA.BreachedAt)
	assert.Equal(t, models.CaseEscalated, got.Status)
	assert.Equal(t, "manager", got.EscalatedTo)
	last := got.StatusHistory[len(got.StatusHistory)-1]
	assert.Contains(t, last.Reason, "SLA breached — auto-escalated")

	// The healthy case is untouched.
	hc, found := st.Case(healthy.ID)
	require.True(t, found)
	assert.Equal(t, models.CaseOpen, hc.Status)
	assert.False(t, hc.SLA.Breached)

	// A second sweep alerts again but does not re-escalate.
	alerts = m.RunSLASweep()
	require.Len(t, alerts, 1)
	after, _ := st.Case(breached.ID)
	assert.Equal(t, len(got.StatusHistory), len(after.StatusHistory))
}

func TestComputeMetrics(t *testing.T) {
	m, _, _ := newTestManager(t)

	a := mustCreate(t, m, basicParams())
	b := mustCreate(t, m, basicParams())
	mustCreate(t, m, basicParams())

	_, err := m.Assign(a.ID, "analyst2", "manager1")
	require.NoError(t, err)
	_, err = m.Transition(b.ID, models.CaseResolved, "analyst1", "done")
	require.NoError(t, err)

	got := m.ComputeMetrics()
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Active)
	assert.Equal(t, 1, got.Resolved)
	assert.Equal(t, 1, got.Unassigned)
	assert.Equal(t, 1, got.ByAssignee["analyst2"])
	assert.Equal(t, 1, got.ByAssignee["Unassigned"])
	assert.Equal(t, 2, got.ByPriority[models.PriorityHigh])
	assert.Equal(t, 3, got.ByType[models.CaseAnomalyInvestigation])
	assert.Equal(t, 2, got.SLA.OnTrack)
	assert.Equal(t, 2400.0, got.TotalAmountAtRisk)
	assert.GreaterOrEqual(t, got.AvgResolutionHours, 0.0)
}
