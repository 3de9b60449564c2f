package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// CredentialStore implements ports.CredentialStore with one hash per caller,
// field = provider name.
type CredentialStore struct {
	base
}

// NewCredentialStore creates a credential store on an existing client.
func NewCredentialStore(client *backend.Client, opts ...Option) *CredentialStore {
	return &CredentialStore{base: newBase(client, opts)}
}

func (s *CredentialStore) key(caller string) string {
	return s.prefix + "credentials:" + caller
}

func (s *CredentialStore) Credential(ctx context.Context, caller, provider string) (string, error) {
	tok, err := s.client.HGet(ctx, s.key(caller), provider).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return "", domain.ErrCredentialNotFound
		}
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return tok, nil
}

func (s *CredentialStore) SetCredential(ctx context.Context, caller, provider, token string) error {
	if err := s.client.HSet(ctx, s.key(caller), provider, token).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}
