package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
)

// PresetStore implements ports.PresetStore in memory.
// Safe for concurrent use.
type PresetStore struct {
	data map[string]domain.Preset
	mu   sync.RWMutex
}

// NewPresetStore creates a new in-memory preset store.
func NewPresetStore() *PresetStore {
	return &PresetStore{
		data: make(map[string]domain.Preset),
	}
}

// Save persists a copy of the preset.
func (s *PresetStore) Save(ctx context.Context, preset domain.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[preset.AgentID] = preset.Clone()
	return nil
}

// Get returns a copy so callers can't mutate store state through the slice.
func (s *PresetStore) Get(ctx context.Context, agentID string) (*domain.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[agentID]
	if !ok {
		return nil, domain.ErrPresetNotFound
	}
	c := p.Clone()
	return &c, nil
}

// Delete removes the preset.
func (s *PresetStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[agentID]; !ok {
		return domain.ErrPresetNotFound
	}
	delete(s.data, agentID)
	return nil
}

// List returns every preset ordered by agent id.
func (s *PresetStore) List(ctx context.Context) ([]domain.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	presets := make([]domain.Preset, 0, len(s.data))
	for _, p := range s.data {
		presets = append(presets, p.Clone())
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].AgentID < presets[j].AgentID })
	return presets, nil
}
