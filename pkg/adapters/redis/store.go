// Package redis provides Redis-backed implementations of the persistence ports.
package redis

import (
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "foodai:"

type base struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a store.
type Option func(*base)

// WithTTL sets the expiration of written keys, where the store supports it.
func WithTTL(ttl time.Duration) Option {
	return func(b *base) {
		b.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(b *base) {
		b.prefix = prefix
	}
}

func newBase(client *backend.Client, opts []Option) base {
	b := base{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// NewClient creates a go-redis client.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}
