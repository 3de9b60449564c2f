package domain_test

import (
	"testing"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "alice/s1", domain.SessionKey("alice", "s1"))
	assert.NotEqual(t, domain.SessionKey("alice", "s1"), domain.SessionKey("bob", "s1"))
	assert.NotEqual(t, domain.SessionKey("a/b", "c"), domain.SessionKey("a", "b/c"))
}
