package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// PresetStore implements ports.PresetStore using Redis.
// Each preset is a JSON value; a set indexes the agent ids.
type PresetStore struct {
	base
}

// NewPresetStore creates a preset store on an existing client.
func NewPresetStore(client *backend.Client, opts ...Option) *PresetStore {
	return &PresetStore{base: newBase(client, opts)}
}

func (s *PresetStore) key(agentID string) string {
	return s.prefix + "preset:" + agentID
}

func (s *PresetStore) indexKey() string {
	return s.prefix + "presets"
}

// Save persists the preset.
func (s *PresetStore) Save(ctx context.Context, preset domain.Preset) error {
	data, err := json.Marshal(preset)
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(preset.AgentID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), preset.AgentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save preset to redis: %w", err)
	}
	return nil
}

// Get loads a preset.
func (s *PresetStore) Get(ctx context.Context, agentID string) (*domain.Preset, error) {
	val, err := s.client.Get(ctx, s.key(agentID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrPresetNotFound
		}
		return nil, fmt.Errorf("failed to get preset from redis: %w", err)
	}

	var p domain.Preset
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preset: %w", err)
	}
	return &p, nil
}

// Delete removes the preset.
func (s *PresetStore) Delete(ctx context.Context, agentID string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(agentID))
	pipe.SRem(ctx, s.indexKey(), agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrPresetNotFound
	}
	return nil
}

// List returns every indexed preset ordered by agent id.
// Index entries whose value has vanished are skipped.
func (s *PresetStore) List(ctx context.Context) ([]domain.Preset, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	sort.Strings(ids)

	presets := make([]domain.Preset, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrPresetNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		presets = append(presets, *p)
	}
	return presets, nil
}
