// Package config loads the service configuration from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Model       ModelConfig        `yaml:"model"`
	Agent       AgentConfig        `yaml:"agent"`
	Providers   []ProviderConfig   `yaml:"providers"`
	Credentials []CredentialConfig `yaml:"credentials"`
	Redis       RedisConfig        `yaml:"redis"`
	HTTP        HTTPConfig         `yaml:"http"`
	MCP         MCPConfig          `yaml:"mcp"`
	Log         LogConfig          `yaml:"log"`
	Security    SecurityConfig     `yaml:"security"`
	Session     SessionConfig      `yaml:"session"`
	Presets     []domain.Preset    `yaml:"presets"`
	Recipes     []domain.Recipe    `yaml:"recipes"`
}

// ModelConfig points at an OpenAI-compatible chat completion endpoint.
type ModelConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Name        string        `yaml:"name"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type AgentConfig struct {
	MaxTurns       int           `yaml:"max_turns"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	ResultLimit    int           `yaml:"result_limit"`
	HistoryLimit   int           `yaml:"history_limit"`
	DefaultPrompt  string        `yaml:"default_prompt"`
	DefaultTools   []string      `yaml:"default_tools"`
}

// ProviderConfig describes a remote MCP tool provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	URL         string        `yaml:"url"`
	Transport   string        `yaml:"transport"` // streamable | sse | auto
	Retry       string        `yaml:"retry"`     // reconnect_once | none
	CallTimeout time.Duration `yaml:"call_timeout"`
	// Token is used for callers without a credential of their own.
	Token string `yaml:"token"`
	// Formatters maps a tool name to a post-formatter name (json_table, none).
	Formatters map[string]string `yaml:"formatters"`
}

// CredentialConfig seeds a caller's credential for a provider.
type CredentialConfig struct {
	Caller   string `yaml:"caller"`
	Provider string `yaml:"provider"`
	Token    string `yaml:"token"`
}

// RedisConfig enables the redis stores when Addr is set. Otherwise state lives in memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// MCPConfig configures the MCP server exposing the local tools.
type MCPConfig struct {
	Addr   string `yaml:"addr"`
	Caller string `yaml:"caller"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SecurityConfig protects data at rest.
type SecurityConfig struct {
	// EncryptionKey is a base64 AES-256 key. When set, provider credentials are stored encrypted.
	EncryptionKey string `yaml:"encryption_key"`
	// FallbackKeys decrypt credentials written before a key rotation.
	FallbackKeys []string `yaml:"fallback_keys"`
	// PIIPatterns are masked in stored transcripts. Empty disables masking.
	PIIPatterns []string `yaml:"pii_patterns"`
}

// SessionConfig bounds chat requests on a session.
type SessionConfig struct {
	// MaxInputBytes rejects larger user messages. Zero disables the check.
	MaxInputBytes int `yaml:"max_input_bytes"`
	// LockTTL bounds the distributed session lock held during a run.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Name:        "qwen-plus",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Agent: AgentConfig{
			MaxTurns:       5,
			RequestTimeout: 2 * time.Minute,
			ToolTimeout:    30 * time.Second,
			ResultLimit:    2000,
			HistoryLimit:   20,
		},
		Redis: RedisConfig{
			Prefix:  "foodai:",
			TTL:     7 * 24 * time.Hour,
			LockTTL: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 3 * time.Minute,
		},
		MCP: MCPConfig{
			Addr:   ":8090",
			Caller: "1",
		},
		Log: LogConfig{Level: "info"},
		Session: SessionConfig{
			MaxInputBytes: 8 * 1024,
			LockTTL:       3 * time.Minute,
		},
	}
}

// Load reads path on top of the defaults, then applies environment overrides.
// An empty path yields the defaults plus the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Environment variables that override file values.
const (
	EnvModelBaseURL = "FOODAI_MODEL_BASE_URL"
	EnvModelAPIKey  = "FOODAI_MODEL_API_KEY"
	EnvModelName    = "FOODAI_MODEL_NAME"
	EnvRedisAddr    = "FOODAI_REDIS_ADDR"
	EnvHTTPAddr     = "FOODAI_HTTP_ADDR"
	EnvLogLevel     = "FOODAI_LOG_LEVEL"
	EnvMaxTurns     = "FOODAI_AGENT_MAX_TURNS"
	EnvEncryptKey   = "FOODAI_ENCRYPTION_KEY"
)

// ApplyEnv overrides cfg with the variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvModelBaseURL, &cfg.Model.BaseURL)
	set(EnvModelAPIKey, &cfg.Model.APIKey)
	set(EnvModelName, &cfg.Model.Name)
	set(EnvRedisAddr, &cfg.Redis.Addr)
	set(EnvHTTPAddr, &cfg.HTTP.Addr)
	set(EnvLogLevel, &cfg.Log.Level)
	set(EnvEncryptKey, &cfg.Security.EncryptionKey)

	if v, ok := lookup(EnvMaxTurns); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxTurns, err)
		}
		cfg.Agent.MaxTurns = n
	}
	return nil
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Model.Name == "" {
		errs = append(errs, "model.name is required")
	}
	if cfg.Agent.MaxTurns < 1 || cfg.Agent.MaxTurns > 50 {
		errs = append(errs, "agent.max_turns must be between 1 and 50")
	}
	if cfg.Agent.ResultLimit < 0 {
		errs = append(errs, "agent.result_limit must be >= 0")
	}

	seen := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Sprintf("providers[%d]: name is required", i))
		case seen[p.Name]:
			errs = append(errs, fmt.Sprintf("providers.%s: duplicate name", p.Name))
		}
		seen[p.Name] = true
		if p.URL == "" {
			errs = append(errs, fmt.Sprintf("providers.%s: url is required", p.Name))
		}
		switch p.Transport {
		case "", "streamable", "sse", "auto":
		default:
			errs = append(errs, fmt.Sprintf("providers.%s: transport must be one of: streamable, sse, auto", p.Name))
		}
		switch p.Retry {
		case "", "reconnect_once", "none":
		default:
			errs = append(errs, fmt.Sprintf("providers.%s: retry must be one of: reconnect_once, none", p.Name))
		}
	}

	for i, c := range cfg.Credentials {
		if c.Caller == "" || c.Provider == "" {
			errs = append(errs, fmt.Sprintf("credentials[%d]: caller and provider are required", i))
		} else if !seen[c.Provider] {
			errs = append(errs, fmt.Sprintf("credentials[%d]: unknown provider %s", i, c.Provider))
		}
	}

	for i, p := range cfg.Presets {
		if p.AgentID == "" {
			errs = append(errs, fmt.Sprintf("presets[%d]: agent_id is required", i))
		}
	}

	if cfg.Session.MaxInputBytes < 0 {
		errs = append(errs, "session.max_input_bytes must be >= 0")
	}
	if len(cfg.Security.FallbackKeys) > 0 && cfg.Security.EncryptionKey == "" {
		errs = append(errs, "security.fallback_keys requires security.encryption_key")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses default when VAR is unset or empty. Unknown variables are kept verbatim.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		val, ok := os.LookupEnv(groups[1])
		if ok && val != "" {
			return val
		}
		if strings.Contains(match, ":-") {
			return groups[2]
		}
		return match
	})
}
