// Package preset resolves an agent id into the system prompt and tool allow-list of a run.
//
// Resolution fails closed: a preset that names no tools, or only tools that are not
// registered, gets no tools at all.
package preset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dengzhuofu/foodai-agent/internal/logging"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
)

// DefaultAgentID names the built-in kitchen assistant.
const DefaultAgentID = "kitchen_agent"

// DefaultPrompt is the system prompt of the built-in agent.
const DefaultPrompt = `You are FoodAI, a friendly kitchen assistant.
You can look into the user's fridge, manage the shopping list, search recipes and use
the connected services (food delivery, maps) through tools.
Call a tool whenever the answer depends on the user's data. Answer in the user's language,
formatted as markdown.`

// Resolution is what the agent loop needs from a preset.
type Resolution struct {
	AgentID      string
	SystemPrompt string
	// Allowed is the allow-list intersected with the catalog. Never nil.
	Allowed []string
	// Requested is the allow-list before intersection. Nil means every catalog tool.
	Requested []string
	// Preset is nil for the built-in agent.
	Preset *domain.Preset
}

// Rebind recomputes Allowed against a catalog that has grown since Resolve.
func (r Resolution) Rebind(catalog []string) Resolution {
	tools := r.Requested
	if tools == nil {
		tools = catalog
	}
	r.Allowed = Intersect(tools, catalog)
	return r
}

// Allows reports whether name is in the resolved allow-list.
func (r Resolution) Allows(name string) bool {
	for _, n := range r.Allowed {
		if n == name {
			return true
		}
	}
	return false
}

// Resolver looks up presets and guards preset writes.
type Resolver struct {
	store         ports.PresetStore
	defaultPrompt string
	defaultTools  []string
	logger        *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDefaultPrompt overrides the system prompt of the built-in agent.
func WithDefaultPrompt(prompt string) Option {
	return func(r *Resolver) {
		if strings.TrimSpace(prompt) != "" {
			r.defaultPrompt = prompt
		}
	}
}

// WithDefaultTools restricts the built-in agent to names. By default it may use every tool.
func WithDefaultTools(names ...string) Option {
	return func(r *Resolver) {
		r.defaultTools = append([]string(nil), names...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver backed by store.
func NewResolver(store ports.PresetStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:         store,
		defaultPrompt: DefaultPrompt,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps agentID, as seen by caller, to a prompt and an allow-list drawn from catalog.
// An empty agentID selects the built-in agent. Presets owned by another caller are reported
// as domain.ErrPresetNotFound.
func (r *Resolver) Resolve(ctx context.Context, agentID, caller string, catalog []string) (Resolution, error) {
	if agentID == "" || agentID == DefaultAgentID {
		res := Resolution{AgentID: DefaultAgentID, SystemPrompt: r.defaultPrompt}
		if len(r.defaultTools) > 0 {
			res.Requested = append([]string(nil), r.defaultTools...)
		}
		return res.Rebind(catalog), nil
	}

	p, err := r.get(ctx, caller, agentID)
	if err != nil {
		return Resolution{}, err
	}

	allowed := Intersect(p.AllowedTools, catalog)
	if len(allowed) < len(p.AllowedTools) {
		r.logger.Debug("Preset names unavailable tools",
			"agent_id", agentID,
			"requested", len(p.AllowedTools),
			"available", len(allowed),
		)
	}
	prompt := p.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = r.defaultPrompt
	}
	return Resolution{
		AgentID:      p.AgentID,
		SystemPrompt: prompt,
		Allowed:      allowed,
		Requested:    append([]string{}, p.AllowedTools...),
		Preset:       p,
	}, nil
}

// Get returns a preset visible to caller.
func (r *Resolver) Get(ctx context.Context, caller, agentID string) (*domain.Preset, error) {
	return r.get(ctx, caller, agentID)
}

func (r *Resolver) get(ctx context.Context, caller, agentID string) (*domain.Preset, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPresetNotFound, agentID)
	}
	p, err := r.store.Get(ctx, agentID)
	if err != nil {
		if errors.Is(err, domain.ErrPresetNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPresetNotFound, agentID)
		}
		return nil, fmt.Errorf("load preset %s: %w", agentID, err)
	}
	if !p.VisibleTo(caller) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPresetNotFound, agentID)
	}
	return p, nil
}

// List returns the system presets and the presets owned by caller.
func (r *Resolver) List(ctx context.Context, caller string) ([]domain.Preset, error) {
	if r.store == nil {
		return []domain.Preset{}, nil
	}
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	out := make([]domain.Preset, 0, len(all))
	for _, p := range all {
		if p.VisibleTo(caller) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Save creates or replaces a preset owned by caller.
// System presets and presets of other callers cannot be overwritten.
func (r *Resolver) Save(ctx context.Context, caller string, p domain.Preset) error {
	if caller == "" {
		return fmt.Errorf("%w: anonymous callers cannot save presets", domain.ErrPresetForbidden)
	}
	if err := validate(p); err != nil {
		return err
	}
	if p.AgentID == DefaultAgentID {
		return fmt.Errorf("%w: %s", domain.ErrPresetForbidden, p.AgentID)
	}
	if err := r.checkOwner(ctx, caller, p.AgentID, true); err != nil {
		return err
	}
	p.Owner = caller
	if err := r.store.Save(ctx, p.Clone()); err != nil {
		return fmt.Errorf("save preset %s: %w", p.AgentID, err)
	}
	return nil
}

// Delete removes a preset owned by caller.
func (r *Resolver) Delete(ctx context.Context, caller, agentID string) error {
	if err := r.checkOwner(ctx, caller, agentID, false); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, agentID); err != nil {
		if errors.Is(err, domain.ErrPresetNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrPresetNotFound, agentID)
		}
		return fmt.Errorf("delete preset %s: %w", agentID, err)
	}
	return nil
}

// checkOwner fails unless caller may write agentID. A missing preset passes when create is set.
func (r *Resolver) checkOwner(ctx context.Context, caller, agentID string, create bool) error {
	if r.store == nil {
		return errors.New("preset: no store configured")
	}
	existing, err := r.store.Get(ctx, agentID)
	switch {
	case errors.Is(err, domain.ErrPresetNotFound):
		if create {
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrPresetNotFound, agentID)
	case err != nil:
		return fmt.Errorf("load preset %s: %w", agentID, err)
	case existing.Owner == caller:
		return nil
	case existing.IsSystem():
		return fmt.Errorf("%w: %s is a system preset", domain.ErrPresetForbidden, agentID)
	default:
		// Someone else's preset is not visible, let alone writable.
		if !create {
			return fmt.Errorf("%w: %s", domain.ErrPresetNotFound, agentID)
		}
		return fmt.Errorf("%w: %s", domain.ErrPresetForbidden, agentID)
	}
}

// SeedSystem stores presets as system presets, replacing earlier versions.
func (r *Resolver) SeedSystem(ctx context.Context, presets ...domain.Preset) error {
	if r.store == nil {
		return errors.New("preset: no store configured")
	}
	for _, p := range presets {
		if err := validate(p); err != nil {
			return err
		}
		p.Owner = ""
		if err := r.store.Save(ctx, p.Clone()); err != nil {
			return fmt.Errorf("seed preset %s: %w", p.AgentID, err)
		}
		r.logger.Debug("Seeded system preset", "agent_id", p.AgentID, "tools", len(p.AllowedTools))
	}
	return nil
}

func validate(p domain.Preset) error {
	if strings.TrimSpace(p.AgentID) == "" {
		return fmt.Errorf("%w: agent_id is required", domain.ErrInvalidPreset)
	}
	return nil
}

// Intersect returns the names of wanted that appear in available, in wanted order,
// without duplicates. The result is never nil.
func Intersect(wanted, available []string) []string {
	set := make(map[string]struct{}, len(available))
	for _, n := range available {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(wanted))
	seen := make(map[string]struct{}, len(wanted))
	for _, n := range wanted {
		if _, ok := set[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
