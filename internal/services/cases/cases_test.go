package cases

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/policy"
	"invoice-audit-engine/internal/services/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store, *policy.Store) {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	st := store.New()
	pol := policy.NewStore(cfg)
	return NewManager(st, pol), st, pol
}

func mustCreate(t *testing.T, m *Manager, p CreateParams) models.Case {
	t.Helper()
	c, err := m.Create(p)
	require.NoError(t, err)
	return c
}

func basicParams() CreateParams {
	return CreateParams{
		Type:         models.CaseAnomalyInvestigation,
		Title:        "Anomaly Review: INV-4001",
		Description:  "Two anomalies requiring review",
		Priority:     models.PriorityHigh,
		InvoiceID:    "inv1",
		AnomalyIDs:   []string{"a1", "a2"},
		Vendor:       "Acme Corp",
		AmountAtRisk: 1200,
		Currency:     "USD",
		CreatedBy:    "analyst1",
	}
}

func TestCreate(t *testing.T) {
	m, st, _ := newTestManager(t)

	t.Run("valid case", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		assert.True(t, strings.HasPrefix(c.ID, "CASE-"))
		assert.Equal(t, models.CaseOpen, c.Status)
		assert.Equal(t, models.PriorityHigh, c.Priority)
		require.Len(t, c.StatusHistory, 1)
		assert.Equal(t, "Case created", c.StatusHistory[0].Reason)

		stored, ok := st.Case(c.ID)
		require.True(t, ok)
		assert.Equal(t, c.Title, stored.Title)
	})

	t.Run("sla follows priority", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		assert.Equal(t, 24, c.SLA.TargetHours)
		assert.Equal(t, c.CreatedAt.Add(24*time.Hour), c.SLA.Deadline)
		assert.True(t, c.SLA.WarningAt.Before(c.SLA.Deadline))
	})

	t.Run("defaults fill in", func(t *testing.T) {
		p := basicParams()
		p.Priority = ""
		p.Currency = ""
		p.CreatedBy = ""
		c := mustCreate(t, m, p)
		assert.Equal(t, models.PriorityMedium, c.Priority)
		assert.Equal(t, "USD", c.Currency)
		assert.Equal(t, "system", c.CreatedBy)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		p := basicParams()
		p.Type = "witch_hunt"
		_, err := m.Create(p)
		assert.Error(t, err)
	})

	t.Run("missing title rejected", func(t *testing.T) {
		p := basicParams()
		p.Title = ""
		_, err := m.Create(p)
		assert.Error(t, err)
	})
}

func TestTransitions(t *testing.T) {
	m, _, _ := newTestManager(t)

	t.Run("open to investigating", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		got, err := m.Transition(c.ID, models.CaseInvestigating, "analyst1", "Taking a look")
		require.NoError(t, err)
		assert.Equal(t, models.CaseInvestigating, got.Status)
		assert.Len(t, got.StatusHistory, 2)
	})

	t.Run("resolve stamps resolution", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		got, err := m.Transition(c.ID, models.CaseResolved, "analyst1", "Vendor issued credit note")
		require.NoError(t, err)
		assert.Equal(t, "Vendor issued credit note", got.Resolution)
		assert.Equal(t, "analyst1", got.ResolvedBy)
		require.NotNil(t, got.ResolvedAt)
	})

	t.Run("resolved can reopen to investigating", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		_, err := m.Transition(c.ID, models.CaseResolved, "analyst1", "done")
		require.NoError(t, err)
		got, err := m.Transition(c.ID, models.CaseInvestigating, "manager1", "Reopening, vendor disputed")
		require.NoError(t, err)
		assert.Equal(t, models.CaseInvestigating, got.Status)
	})

	t.Run("closed is terminal", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		_, err := m.Transition(c.ID, models.CaseClosed, "analyst1", "done")
		require.NoError(t, err)
		_, err = m.Transition(c.ID, models.CaseInvestigating, "analyst1", "nope")
		assert.Error(t, err)
	})

	t.Run("open cannot go pending vendor directly", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		_, err := m.Transition(c.ID, models.CasePendingVendor, "analyst1", "waiting")
		assert.Error(t, err)
	})

	t.Run("unknown case", func(t *testing.T) {
		_, err := m.Transition("CASE-NOPE", models.CaseClosed, "x", "y")
		assert.Error(t, err)
	})
}

func TestAssign(t *testing.T) {
	m, _, _ := newTestManager(t)

	t.Run("assignment auto-advances open case", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		got, err := m.Assign(c.ID, "analyst2", "manager1")
		require.NoError(t, err)
		assert.Equal(t, "analyst2", got.AssignedTo)
		assert.Equal(t, models.CaseInvestigating, got.Status)
		last := got.StatusHistory[len(got.StatusHistory)-1]
		assert.Equal(t, "Auto-transitioned on assignment", last.Reason)
	})

	t.Run("reassignment records previous owner", func(t *testing.T) {
		c := mustCreate(t, m, basicParams())
		_, err := m.Assign(c.ID, "analyst2", "manager1")
		require.NoError(t, err)
		got, err := m.Assign(c.ID, "analyst3", "manager1")
		require.NoError(t, err)
		assert.Equal(t, "analyst3", got.AssignedTo)
		found := false
		for _, h := range got.StatusHistory {
			if h.Reason == "Assigned to analyst3 (was: analyst2)" {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestAddNote(t *testing.T) {
	m, _, _ := newTestManager(t)
	c := mustCreate(t, m, basicParams())

	got, err := m.AddNote(c.ID, "Called the vendor, awaiting callback", "analyst1")
	require.NoError(t, err)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "analyst1", got.Notes[0].By)
	assert.NotEmpty(t, got.Notes[0].ID)

	_, err = m.AddNote(c.ID, "", "analyst1")
	assert.Error(t, err)
}

func TestEscalate(t *testing.T) {
	m, _, _ := newTestManager(t)
	c := mustCreate(t, m, basicParams())

	got, err := m.Escalate(c.ID, "manager1", "Vendor unresponsive for a week", "analyst1")
	require.NoError(t, err)
	assert.Equal(t, models.CaseEscalated, got.Status)
	assert.Equal(t, "manager1", got.EscalatedTo)
	assert.Equal(t, "Vendor unresponsive for a week", got.EscalationReason)
	require.NotNil(t, got.EscalatedAt)
}
