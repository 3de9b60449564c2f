package memory

import (
	"context"
	"sync"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
)

// TranscriptStore implements ports.TranscriptStore in memory.
type TranscriptStore struct {
	data map[string][]domain.Message
	mu   sync.RWMutex
}

// NewTranscriptStore creates an empty transcript store.
func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{
		data: make(map[string][]domain.Message),
	}
}

// Append adds messages to the session history.
func (s *TranscriptStore) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append(s.data[sessionID], msgs...)
	return nil
}

// History returns the most recent messages, oldest first.
func (s *TranscriptStore) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.data[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message{}, msgs...), nil
}

// Delete drops the session history.
func (s *TranscriptStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}
