package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/getkin/kin-openapi/openapi3"
)

// LocalFunc defines the signature for an in-process tool implementation.
// It receives the identity of the caller the tool acts for and the decoded arguments.
type LocalFunc func(ctx context.Context, caller string, args map[string]any) (string, error)

// RemoteCaller performs invocations against remote providers on behalf of a caller.
// It never returns an error: failures are reported as ToolResult data.
type RemoteCaller interface {
	Invoke(ctx context.Context, caller, provider, tool string, args map[string]any) domain.ToolResult
}

// Invoker is the closed set of ways a tool can be executed: Local or Remote.
type Invoker interface {
	isInvoker()
}

// Local runs a function inside the process.
type Local struct {
	Fn LocalFunc
}

// Remote delegates to a tool exposed by a remote provider.
type Remote struct {
	Provider string
	Tool     string
	Via      RemoteCaller
}

func (Local) isInvoker()  {}
func (Remote) isInvoker() {}

type entry struct {
	desc    domain.ToolDescriptor
	invoker Invoker
	schema  *openapi3.Schema // Local tools only
}

// Registry maps tool names to their descriptor and invoker.
// A Registry created with Overlay sees every tool of its parent, while
// registrations on the overlay never reach the parent.
type Registry struct {
	parent *Registry

	mu    sync.RWMutex
	tools map[string]entry
	order []string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// Overlay returns a child registry layered over r.
func (r *Registry) Overlay() *Registry {
	child := NewRegistry()
	child.parent = r
	return child
}

// Register adds a tool. Names are unique across the registry and its parents.
func (r *Registry) Register(desc domain.ToolDescriptor, invoker Invoker) error {
	if desc.Name == "" {
		return errors.New("registry: tool name is required")
	}

	e := entry{desc: desc, invoker: invoker}
	switch inv := invoker.(type) {
	case Local:
		if inv.Fn == nil {
			return fmt.Errorf("registry: tool %q has no function", desc.Name)
		}
		e.desc.Kind = domain.ToolKindLocal
		e.desc.Provider = ""
		schema, err := compileSchema(desc.Parameters)
		if err != nil {
			return fmt.Errorf("registry: tool %q: %w", desc.Name, err)
		}
		e.schema = schema
	case Remote:
		if inv.Via == nil || inv.Provider == "" {
			return fmt.Errorf("registry: remote tool %q needs a provider", desc.Name)
		}
		e.desc.Kind = domain.ToolKindRemote
		e.desc.Provider = inv.Provider
	default:
		return fmt.Errorf("registry: unsupported invoker %T", invoker)
	}

	if r.parent != nil && r.parent.Has(desc.Name) {
		return fmt.Errorf("registry: tool %q already registered", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("registry: tool %q already registered", desc.Name)
	}
	r.tools[desc.Name] = e
	r.order = append(r.order, desc.Name)
	return nil
}

// MustRegister is like Register but panics on error. Intended for startup wiring.
func (r *Registry) MustRegister(desc domain.ToolDescriptor, invoker Invoker) {
	if err := r.Register(desc, invoker); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if ok {
		return e, true
	}
	if r.parent != nil {
		return r.parent.lookup(name)
	}
	return entry{}, false
}

// Resolve returns the invoker and descriptor registered under name.
func (r *Registry) Resolve(name string) (Invoker, domain.ToolDescriptor, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, domain.ToolDescriptor{}, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return e.invoker, e.desc, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Names returns every registered tool name, parents first, in registration order.
func (r *Registry) Names() []string {
	var names []string
	if r.parent != nil {
		names = r.parent.Names()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(names, r.order...)
}

// Descriptors returns the descriptors of the given names, in order. Unknown names are skipped.
func (r *Registry) Descriptors(names []string) []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, 0, len(names))
	for _, name := range names {
		if e, ok := r.lookup(name); ok {
			out = append(out, e.desc)
		}
	}
	return out
}

// Invoke executes a tool call for caller.
// It never returns an error: every failure, including policy rejections,
// unknown tools and panics in local functions, is reported in the result.
func (r *Registry) Invoke(ctx context.Context, caller string, call domain.ToolCall, interceptors ...Interceptor) domain.ToolResult {
	if len(interceptors) > 0 {
		allowed, result, err := Chain(interceptors...)(ctx, call)
		if err != nil {
			return domain.Failure(call.ID, err.Error())
		}
		if !allowed {
			result.ID = call.ID
			result.OK = false
			return result
		}
	}

	e, ok := r.lookup(call.Name)
	if !ok {
		return domain.ToolResult{ID: call.ID, Error: domain.ErrToolNotAllowed.Error(), Denied: true}
	}
	if call.Malformed() {
		return domain.Failure(call.ID, "invalid arguments: not a JSON object")
	}

	switch inv := e.invoker.(type) {
	case Local:
		args, err := normalizeArgs(call.Arguments)
		if err != nil {
			return domain.Failure(call.ID, "invalid arguments: "+err.Error())
		}
		if err := validateArgs(e.schema, args); err != nil {
			return domain.Failure(call.ID, "invalid arguments: "+err.Error())
		}
		return runLocal(ctx, inv.Fn, caller, call.ID, args)
	case Remote:
		result := inv.Via.Invoke(ctx, caller, inv.Provider, inv.Tool, call.Arguments)
		result.ID = call.ID
		return result
	default:
		return domain.Failure(call.ID, fmt.Sprintf("unsupported invoker %T", inv))
	}
}

func runLocal(ctx context.Context, fn LocalFunc, caller, id string, args map[string]any) (result domain.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = domain.Failure(id, fmt.Sprintf("tool panicked: %v", rec))
		}
	}()

	text, err := fn(ctx, caller, args)
	if err != nil {
		return domain.Failure(id, err.Error())
	}
	return domain.Success(id, text)
}

func compileSchema(params map[string]any) (*openapi3.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter schema: %w", err)
	}
	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("invalid parameter schema: %w", err)
	}
	return schema, nil
}

// normalizeArgs gives arguments the shape produced by JSON decoding.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateArgs(schema *openapi3.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	err := schema.VisitJSON(args)
	if err == nil {
		return nil
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) && schemaErr.Reason != "" {
		return errors.New(schemaErr.Reason)
	}
	return err
}
