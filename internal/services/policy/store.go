package policy

import (
	"sort"
	"sync"

	"invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/utils"
)

// Store is the thread-safe holder of the live policy. Reads return value
// copies; updates are all-or-nothing and bump the version on success.
type Store struct {
	mu       sync.RWMutex
	active   Policy
	defaults Policy
}

// NewStore seeds a store from configuration.
func NewStore(cfg *config.Config) *Store {
	base := Default(cfg)
	return &Store{active: base.clone(), defaults: base.clone()}
}

// Get returns a copy of the active policy.
func (s *Store) Get() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.clone()
}

// Version returns the current policy version without copying the policy.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Version
}

// Reset restores the seeded defaults and bumps the version.
func (s *Store) Reset() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	version := s.active.Version + 1
	s.active = s.defaults.clone()
	s.active.Version = version
	return s.active.clone()
}

// Update applies a partial update by field name. The update is atomic: if
// any key is unknown or any value fails validation, no field changes and
// the first error is returned. On success the version is bumped and the
// new policy returned.
func (s *Store) Update(updates map[string]any) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.active.clone()
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		setter, ok := setters[key]
		if !ok {
			return Policy{}, models.NewValidationError(key, "unknown policy field")
		}
		if err := setter(&next, updates[key]); err != nil {
			return Policy{}, err
		}
	}

	next.Version = s.active.Version + 1
	s.active = next
	utils.GetLogger().Info("policy updated",
		utils.Int("version", next.Version),
		utils.Int("fields", len(updates)))
	return next.clone(), nil
}

// ApplyPreset replaces the active policy with defaults overlaid by the
// named preset. Unknown preset names leave the policy untouched.
func (s *Store) ApplyPreset(name string) (Policy, error) {
	preset, ok := Presets[name]
	if !ok {
		return Policy{}, models.NewValidationError("preset", "unknown preset %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.defaults.clone()
	for _, key := range sortedKeys(preset.Overrides) {
		if setter, ok := setters[key]; ok {
			if err := setter(&next, preset.Overrides[key]); err != nil {
				return Policy{}, err
			}
		}
	}
	next.Version = s.active.Version + 1
	s.active = next
	utils.GetLogger().Info("policy preset applied",
		utils.String("preset", name),
		utils.Int("version", next.Version))
	return next.clone(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
