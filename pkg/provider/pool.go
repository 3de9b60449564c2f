package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/metrics"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
)

// RetryPolicy decides what happens after a transport error during an invocation.
type RetryPolicy int

const (
	// RetryReconnectOnce reconnects once and retries the invocation when a session that was
	// already Ready fails. A session connected by the failing call itself is not retried.
	RetryReconnectOnce RetryPolicy = iota
	// RetryNone reports the failure; the next invocation reconnects lazily.
	RetryNone
)

// ParseRetryPolicy maps a config value to a RetryPolicy.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch s {
	case "", "reconnect_once":
		return RetryReconnectOnce, nil
	case "none":
		return RetryNone, nil
	default:
		return RetryNone, fmt.Errorf("unknown retry policy %q", s)
	}
}

// Key identifies a pooled session.
type Key struct {
	Caller   string
	Provider string
}

// Pool holds at most one Session per (caller, provider).
// Sessions are never shared between callers.
type Pool struct {
	endpoints   map[string]Endpoint
	credentials ports.CredentialStore
	retry       *RetryPolicy // Overrides Endpoint.Retry when set
	cfg         *sessionConfig

	mu       sync.Mutex // Guards the map only; each session has its own lock
	sessions map[Key]*Session
}

// Option configures the Pool and its sessions.
type Option func(*Pool)

// WithDialer replaces the mcp-go dialer.
func WithDialer(d Dialer) Option {
	return func(p *Pool) {
		p.cfg.dial = d
	}
}

// WithRetryPolicy sets the policy applied after transport errors for every endpoint,
// overriding Endpoint.Retry.
func WithRetryPolicy(r RetryPolicy) Option {
	return func(p *Pool) {
		p.retry = &r
	}
}

// WithFormatter registers a post-formatter for a tool name.
func WithFormatter(tool string, f Formatter) Option {
	return func(p *Pool) {
		if p.cfg.formatters == nil {
			p.cfg.formatters = Formatters{}
		}
		p.cfg.formatters[tool] = f
	}
}

// WithLocker serialises handshakes across replicas.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(p *Pool) {
		p.cfg.locker = locker
		if ttl > 0 {
			p.cfg.lockTTL = ttl
		}
	}
}

// WithClientVersion sets the version announced during the handshake.
func WithClientVersion(v string) Option {
	return func(p *Pool) {
		p.cfg.clientVersion = v
	}
}

// WithLogger configures a logger for the Pool.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.cfg.logger = logger
	}
}

// WithMetrics records handshakes and pool size.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pool) {
		p.cfg.metrics = c
	}
}

// NewPool creates a pool for the given endpoints.
// credentials may be nil, in which case only endpoint tokens are used.
func NewPool(endpoints []Endpoint, credentials ports.CredentialStore, opts ...Option) *Pool {
	p := &Pool{
		endpoints:   make(map[string]Endpoint, len(endpoints)),
		credentials: credentials,
		cfg:         defaultSessionConfig(),
		sessions:    make(map[Key]*Session),
	}
	for _, ep := range endpoints {
		p.endpoints[ep.Name] = ep
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Providers returns the configured provider names, sorted.
func (p *Pool) Providers() []string {
	names := make([]string, 0, len(p.endpoints))
	for name := range p.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of pooled sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Session returns the caller's session for provider, creating a disconnected one if needed.
// A retired entry is replaced.
func (p *Pool) Session(ctx context.Context, caller, provider string) (*Session, error) {
	endpoint, ok := p.endpoints[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	key := Key{Caller: caller, Provider: provider}

	p.mu.Lock()
	sess, exists := p.sessions[key]
	p.mu.Unlock()
	if exists && !sess.retired.Load() {
		return sess, nil
	}

	credential, err := p.credential(ctx, caller, endpoint)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sess, exists := p.sessions[key]; exists && !sess.retired.Load() {
		return sess, nil
	}
	sess = newSession(caller, endpoint, credential, p.cfg)
	sess.pooled = true
	p.sessions[key] = sess
	p.cfg.metrics.SetSessions(len(p.sessions))
	return sess, nil
}

func (p *Pool) credential(ctx context.Context, caller string, endpoint Endpoint) (string, error) {
	if p.credentials != nil {
		token, err := p.credentials.Credential(ctx, caller, endpoint.Name)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, domain.ErrCredentialNotFound) {
			return "", fmt.Errorf("load credential for %s: %w", endpoint.Name, err)
		}
	}
	if endpoint.Token != "" {
		return endpoint.Token, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrCredentialNotFound, endpoint.Name)
}

// maxRetiredHops bounds how often one operation follows a retired session to its successor.
const maxRetiredHops = 3

// retire closes sess for good and removes it from the pool if it is still the entry for key.
func (p *Pool) retire(key Key, sess *Session) {
	sess.retire()
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.sessions[key]; ok && current == sess {
		delete(p.sessions, key)
		p.cfg.metrics.SetSessions(len(p.sessions))
	}
}

// use runs fn on the caller's pooled session. When a concurrent failure retired the session
// first, fn runs again on its successor. Any other error retires the session.
func (p *Pool) use(ctx context.Context, key Key, fn func(*Session) error) error {
	for hop := 0; ; hop++ {
		sess, err := p.Session(ctx, key.Caller, key.Provider)
		if err != nil {
			return err
		}
		err = fn(sess)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSessionRetired) && hop < maxRetiredHops && ctx.Err() == nil {
			continue
		}
		p.retire(key, sess)
		return err
	}
}

// ListTools discovers the tools of provider on the caller's session.
func (p *Pool) ListTools(ctx context.Context, caller, provider string) ([]domain.ToolDescriptor, error) {
	var tools []domain.ToolDescriptor
	err := p.use(ctx, Key{Caller: caller, Provider: provider}, func(sess *Session) error {
		var err error
		tools, err = sess.ListTools(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tools, nil
}

// Invoke calls tool on the caller's session for provider.
// It never returns an error: transport failures tear the session down, remove it from the
// pool and are reported as a failed ToolResult after the retry policy has been applied.
func (p *Pool) Invoke(ctx context.Context, caller, provider, tool string, args map[string]any) domain.ToolResult {
	key := Key{Caller: caller, Provider: provider}

	var res domain.ToolResult
	var reused bool
	call := func(sess *Session) error {
		reused = sess.State() == StateReady
		var err error
		res, err = sess.Call(ctx, tool, args)
		return err
	}

	err := p.use(ctx, key, call)
	if err == nil {
		return res
	}
	p.cfg.logger.Warn("Provider call failed, session discarded",
		"provider", provider,
		"caller", caller,
		"tool", tool,
		"err", err,
	)

	if p.policy(provider) != RetryReconnectOnce || !reused || ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return domain.Failure("", err.Error())
	}

	if err := p.use(ctx, key, call); err != nil {
		p.cfg.logger.Warn("Provider call failed after reconnect",
			"provider", provider,
			"caller", caller,
			"tool", tool,
			"err", err,
		)
		return domain.Failure("", err.Error())
	}
	return res
}

func (p *Pool) policy(provider string) RetryPolicy {
	if p.retry != nil {
		return *p.retry
	}
	return p.endpoints[provider].Retry
}

// Evict closes and removes the caller's session for provider.
// The next use reconnects, picking up a changed credential.
func (p *Pool) Evict(caller, provider string) {
	key := Key{Caller: caller, Provider: provider}
	p.mu.Lock()
	sess, ok := p.sessions[key]
	delete(p.sessions, key)
	p.cfg.metrics.SetSessions(len(p.sessions))
	p.mu.Unlock()
	if ok {
		sess.retire()
	}
}

// Close closes every pooled session.
func (p *Pool) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[Key]*Session)
	p.cfg.metrics.SetSessions(0)
	p.mu.Unlock()

	for _, sess := range sessions {
		sess.retire()
	}
}
