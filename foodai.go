package foodai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dengzhuofu/foodai-agent/internal/config"
	"github.com/dengzhuofu/foodai-agent/internal/logging"
	"github.com/dengzhuofu/foodai-agent/pkg/adapters/memory"
	"github.com/dengzhuofu/foodai-agent/pkg/adapters/openai"
	redisAdapter "github.com/dengzhuofu/foodai-agent/pkg/adapters/redis"
	"github.com/dengzhuofu/foodai-agent/pkg/agent"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/kitchen"
	"github.com/dengzhuofu/foodai-agent/pkg/metrics"
	"github.com/dengzhuofu/foodai-agent/pkg/persistence/middleware"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
	"github.com/dengzhuofu/foodai-agent/pkg/preset"
	"github.com/dengzhuofu/foodai-agent/pkg/provider"
	"github.com/dengzhuofu/foodai-agent/pkg/registry"
	"github.com/dengzhuofu/foodai-agent/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
)

// Version is the release of the engine. Overridden at build time with -ldflags.
var Version = "0.1.0"

// Stores groups the persistence ports used by the engine.
type Stores struct {
	Presets     ports.PresetStore
	Transcripts ports.TranscriptStore
	Credentials ports.CredentialStore
	Kitchen     ports.KitchenStore
	// Locker is nil for in-memory stores.
	Locker ports.DistributedLocker
}

// Engine is the wired application: tool registry, provider pool, preset resolver and agent.
type Engine struct {
	Agent    *agent.Agent
	Registry *registry.Registry
	Pool     *provider.Pool
	Presets  *preset.Resolver
	Sessions *session.Manager
	Stores   Stores
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	redis *backend.Client
}

// Option defines a functional option for configuring the Engine.
type Option func(*options)

type options struct {
	model  ports.ChatModel
	logger *slog.Logger
	redis  *backend.Client
	dialer provider.Dialer
	reg    *prometheus.Registry
}

// WithModel injects a chat model, bypassing the OpenAI-compatible client built from the config.
func WithModel(m ports.ChatModel) Option {
	return func(o *options) {
		o.model = m
	}
}

// WithLogger configures a logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRedisClient uses client instead of dialing cfg.Redis.Addr. The caller keeps ownership of client.
func WithRedisClient(client *backend.Client) Option {
	return func(o *options) {
		o.redis = client
	}
}

// WithDialer replaces the MCP dialer of the provider pool.
func WithDialer(d provider.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithPrometheusRegistry registers the engine metrics on reg instead of a private registry.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.reg = reg
	}
}

// New wires an Engine from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.reg == nil {
		o.reg = prometheus.NewRegistry()
	}

	e := &Engine{
		Registry: registry.NewRegistry(),
		Metrics:  metrics.New(o.reg),
		Gatherer: o.reg,
		Logger:   o.logger,
	}

	stores, client, err := newStores(cfg.Redis, o.redis)
	if err != nil {
		return nil, err
	}
	if o.redis == nil {
		e.redis = client
	}
	if stores, err = secureStores(stores, cfg.Security); err != nil {
		e.Close()
		return nil, err
	}
	e.Stores = stores

	sessionOpts := []session.Option{session.WithLogger(o.logger)}
	if stores.Locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(stores.Locker, cfg.Session.LockTTL))
	}
	e.Sessions = session.NewManager(stores.Transcripts, sessionOpts...)

	if err := e.seedKitchen(ctx, cfg); err != nil {
		e.Close()
		return nil, err
	}
	if err := kitchen.Register(e.Registry, stores.Kitchen); err != nil {
		e.Close()
		return nil, err
	}

	e.Presets = preset.NewResolver(stores.Presets,
		preset.WithDefaultPrompt(cfg.Agent.DefaultPrompt),
		preset.WithDefaultTools(cfg.Agent.DefaultTools...),
		preset.WithLogger(o.logger),
	)
	if err := e.Presets.SeedSystem(ctx, cfg.Presets...); err != nil {
		e.Close()
		return nil, fmt.Errorf("seed presets: %w", err)
	}

	e.Pool, err = newPool(ctx, cfg, stores, o, e.Metrics)
	if err != nil {
		e.Close()
		return nil, err
	}

	model := o.model
	if model == nil {
		model, err = openai.New(openai.Config{
			BaseURL:     cfg.Model.BaseURL,
			APIKey:      cfg.Model.APIKey,
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxTokens,
			Timeout:     cfg.Model.Timeout,
		})
		if err != nil {
			e.Close()
			return nil, err
		}
	}

	e.Agent = agent.New(model, e.Registry, e.Presets,
		agent.WithMaxTurns(cfg.Agent.MaxTurns),
		agent.WithResultLimit(cfg.Agent.ResultLimit),
		agent.WithHistoryLimit(cfg.Agent.HistoryLimit),
		agent.WithRequestTimeout(cfg.Agent.RequestTimeout),
		agent.WithToolTimeout(cfg.Agent.ToolTimeout),
		agent.WithRemotes(e.Pool),
		agent.WithTranscripts(stores.Transcripts),
		agent.WithSessions(e.Sessions),
		agent.WithLogger(o.logger),
		agent.WithMetrics(e.Metrics),
	)

	o.logger.Info("Engine ready",
		"version", Version,
		"tools", len(e.Registry.Names()),
		"providers", len(e.Pool.Providers()),
		"presets", len(cfg.Presets),
		"redis", client != nil,
		"encrypted_credentials", cfg.Security.EncryptionKey != "",
	)
	return e, nil
}

// Close releases every provider session and the redis connection opened by New.
func (e *Engine) Close() error {
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.redis != nil {
		return e.redis.Close()
	}
	return nil
}

func newStores(cfg config.RedisConfig, client *backend.Client) (Stores, *backend.Client, error) {
	if client == nil && cfg.Addr == "" {
		return Stores{
			Presets:     memory.NewPresetStore(),
			Transcripts: memory.NewTranscriptStore(),
			Credentials: memory.NewCredentialStore(),
			Kitchen:     memory.NewKitchenStore(),
		}, nil, nil
	}
	if client == nil {
		client = redisAdapter.NewClient(cfg.Addr, cfg.Password, cfg.DB)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = redisAdapter.DefaultPrefix
	}
	opts := []redisAdapter.Option{redisAdapter.WithPrefix(prefix)}
	return Stores{
		Presets:     redisAdapter.NewPresetStore(client, opts...),
		Transcripts: redisAdapter.NewTranscriptStore(client, append(opts, redisAdapter.WithTTL(cfg.TTL))...),
		Credentials: redisAdapter.NewCredentialStore(client, opts...),
		Kitchen:     redisAdapter.NewKitchenStore(client, opts...),
		Locker:      redisAdapter.NewLocker(client, prefix+"lock:"),
	}, client, nil
}

// secureStores wraps the credential and transcript stores with the configured middlewares.
func secureStores(stores Stores, cfg config.SecurityConfig) (Stores, error) {
	if cfg.EncryptionKey != "" {
		active, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return stores, fmt.Errorf("security.encryption_key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return stores, fmt.Errorf("security.fallback_keys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return stores, err
		}
		stores.Credentials = mw(stores.Credentials)
	}
	if len(cfg.PIIPatterns) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return stores, fmt.Errorf("security.pii_patterns: %w", err)
		}
		stores.Transcripts = mw(stores.Transcripts)
	}
	return stores, nil
}

// recipeLoader is the seeding side of the redis kitchen store.
type recipeLoader interface {
	AddRecipes(ctx context.Context, recipes ...domain.Recipe) error
}

func (e *Engine) seedKitchen(ctx context.Context, cfg *config.Config) error {
	if len(cfg.Recipes) == 0 {
		return nil
	}
	switch s := e.Stores.Kitchen.(type) {
	case *memory.KitchenStore:
		s.AddRecipes(cfg.Recipes...)
	case recipeLoader:
		if err := s.AddRecipes(ctx, cfg.Recipes...); err != nil {
			return fmt.Errorf("seed recipes: %w", err)
		}
	default:
		return errors.New("seed recipes: kitchen store cannot load recipes")
	}
	return nil
}

func newPool(ctx context.Context, cfg *config.Config, stores Stores, o *options, m *metrics.Collector) (*provider.Pool, error) {
	endpoints := make([]provider.Endpoint, 0, len(cfg.Providers))
	poolOpts := []provider.Option{
		provider.WithClientVersion(Version),
		provider.WithLogger(o.logger),
		provider.WithMetrics(m),
	}
	if o.dialer != nil {
		poolOpts = append(poolOpts, provider.WithDialer(o.dialer))
	}
	if stores.Locker != nil {
		poolOpts = append(poolOpts, provider.WithLocker(stores.Locker, cfg.Redis.LockTTL))
	}

	for _, pc := range cfg.Providers {
		retry, err := provider.ParseRetryPolicy(pc.Retry)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		for tool, name := range pc.Formatters {
			f, err := provider.FormatterByName(name)
			if err != nil {
				return nil, fmt.Errorf("provider %s: tool %s: %w", pc.Name, tool, err)
			}
			if f != nil {
				poolOpts = append(poolOpts, provider.WithFormatter(tool, f))
			}
		}
		endpoints = append(endpoints, provider.Endpoint{
			Name:        pc.Name,
			URL:         pc.URL,
			Transport:   provider.Transport(pc.Transport),
			CallTimeout: pc.CallTimeout,
			Token:       pc.Token,
			Retry:       retry,
		})
	}

	for _, c := range cfg.Credentials {
		if err := stores.Credentials.SetCredential(ctx, c.Caller, c.Provider, c.Token); err != nil {
			return nil, fmt.Errorf("seed credential for %s/%s: %w", c.Caller, c.Provider, err)
		}
	}
	return provider.NewPool(endpoints, stores.Credentials, poolOpts...), nil
}
