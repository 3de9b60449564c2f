package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// TranscriptStore implements ports.TranscriptStore with one Redis list per session.
// WithTTL makes idle conversations expire.
type TranscriptStore struct {
	base
}

// NewTranscriptStore creates a transcript store on an existing client.
func NewTranscriptStore(client *backend.Client, opts ...Option) *TranscriptStore {
	return &TranscriptStore{base: newBase(client, opts)}
}

func (s *TranscriptStore) key(sessionID string) string {
	return s.prefix + "transcript:" + sessionID
}

// Append pushes messages to the end of the session list and refreshes its TTL.
func (s *TranscriptStore) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key(sessionID), values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// History returns the last limit messages (all when limit <= 0), oldest first.
func (s *TranscriptStore) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := s.client.LRange(ctx, s.key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	msgs := make([]domain.Message, 0, len(vals))
	for _, v := range vals {
		var m domain.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Delete drops the session history.
func (s *TranscriptStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
