package memory

import (
	"context"
	"sync"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
)

type credentialKey struct {
	caller   string
	provider string
}

// CredentialStore implements ports.CredentialStore in memory.
type CredentialStore struct {
	data map[credentialKey]string
	mu   sync.RWMutex
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		data: make(map[credentialKey]string),
	}
}

// Credential returns the caller's token for provider.
func (s *CredentialStore) Credential(ctx context.Context, caller, provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.data[credentialKey{caller, provider}]
	if !ok {
		return "", domain.ErrCredentialNotFound
	}
	return tok, nil
}

// SetCredential stores or replaces the caller's token for provider.
func (s *CredentialStore) SetCredential(ctx context.Context, caller, provider, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[credentialKey{caller, provider}] = token
	return nil
}
