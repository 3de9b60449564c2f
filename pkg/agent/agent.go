// Package agent runs the bounded conversation between the language model and the tool registry.
//
// A run alternates model calls and tool invocations until the model answers without
// requesting tools, or until MaxTurns tool-requesting turns have been spent. In the latter
// case a last model call without tools produces a summary. Every failure below the loop is
// folded back to the model as data; failures of the loop itself become an apology.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dengzhuofu/foodai-agent/internal/logging"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/metrics"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
	"github.com/dengzhuofu/foodai-agent/pkg/preset"
	"github.com/dengzhuofu/foodai-agent/pkg/registry"
	"github.com/google/uuid"
)

const (
	// DefaultMaxTurns bounds the tool-requesting model turns of one run.
	DefaultMaxTurns = 5
	// DefaultResultLimit bounds the tool output, in runes, shown to the model.
	DefaultResultLimit = 2000
	// DefaultHistoryLimit bounds the messages loaded from the transcript store.
	DefaultHistoryLimit = 20

	// TraceResultLimit bounds the result summary kept in a trace entry.
	TraceResultLimit = 200
)

// Fixed texts of the loop.
const (
	SummaryDirective = "You have reached the maximum number of tool calls. " +
		"Do not call any more tools. Summarize what you found so far and give the user your final answer."
	FallbackAnswer = "I have finished working on your request."
	ApologyAnswer  = "Sorry, something went wrong while handling your request. Please try again later."

	truncatedSuffix = "...(truncated)"
)

// Resolver maps an agent id to a prompt and allow-list.
type Resolver interface {
	Resolve(ctx context.Context, agentID, caller string, catalog []string) (preset.Resolution, error)
}

// RemoteSource discovers and invokes the tools of remote providers for a caller.
type RemoteSource interface {
	registry.RemoteCaller
	Providers() []string
	ListTools(ctx context.Context, caller, provider string) ([]domain.ToolDescriptor, error)
}

// SessionLocker serialises runs on the same session.
type SessionLocker interface {
	WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error
}

// Request is one user message addressed to an agent.
// SessionID is scoped to Caller: two callers using the same id never share a transcript.
type Request struct {
	Caller    string
	SessionID string
	Message   string
	// History holds the earlier turns. When nil it is loaded from the transcript store.
	History []domain.Message
	AgentID string
}

// Response is the outcome of a run. Answer is never empty.
type Response struct {
	Answer string              `json:"answer"`
	Trace  []domain.TraceEntry `json:"trace"`
	// Denied lists the calls rejected because the tool is unknown or not allowed.
	Denied []domain.DeniedCall `json:"denied,omitempty"`
	// Summarized is set when the turn bound was hit and the answer comes from the forced summary.
	Summarized bool   `json:"summarized"`
	Turns      int    `json:"turns"`
	AgentID    string `json:"agent_id,omitempty"`
}

// Agent drives runs. It is safe for concurrent use; every run works on its own state.
type Agent struct {
	model    ports.ChatModel
	registry *registry.Registry
	resolver Resolver

	remotes      RemoteSource
	transcripts  ports.TranscriptStore
	sessions     SessionLocker
	logger       *slog.Logger
	metrics      *metrics.Collector
	interceptors []registry.Interceptor

	maxTurns       int
	resultLimit    int
	historyLimit   int
	requestTimeout time.Duration
	toolTimeout    time.Duration
}

// Option configures an Agent.
type Option func(*Agent)

func WithMaxTurns(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxTurns = n
		}
	}
}

func WithResultLimit(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.resultLimit = n
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(a *Agent) {
		a.historyLimit = n
	}
}

// WithRequestTimeout bounds a whole run.
func WithRequestTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.requestTimeout = d
	}
}

// WithToolTimeout bounds each tool invocation. An expired tool is a failed tool.
func WithToolTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.toolTimeout = d
	}
}

// WithRemotes enables discovery of remote provider tools.
func WithRemotes(src RemoteSource) Option {
	return func(a *Agent) {
		a.remotes = src
	}
}

// WithTranscripts persists the exchange of every successful run.
func WithTranscripts(store ports.TranscriptStore) Option {
	return func(a *Agent) {
		a.transcripts = store
	}
}

// WithSessions runs requests that carry a session id under the session lock,
// so the history load and the transcript append of concurrent runs never interleave.
func WithSessions(l SessionLocker) Option {
	return func(a *Agent) {
		a.sessions = l
	}
}

// WithInterceptors adds interceptors that run before every allowed tool call.
func WithInterceptors(interceptors ...registry.Interceptor) Option {
	return func(a *Agent) {
		a.interceptors = append(a.interceptors, interceptors...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(a *Agent) {
		a.metrics = c
	}
}

// New creates an Agent. reg holds the process-wide tools and is never mutated by runs.
func New(model ports.ChatModel, reg *registry.Registry, resolver Resolver, opts ...Option) *Agent {
	a := &Agent{
		model:        model,
		registry:     reg,
		resolver:     resolver,
		logger:       logging.NewNop(),
		maxTurns:     DefaultMaxTurns,
		resultLimit:  DefaultResultLimit,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes one request. It never fails: errors and panics become ApologyAnswer
// with an empty trace.
func (a *Agent) Run(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("Agent run panicked",
				"caller", req.Caller,
				"agent_id", req.AgentID,
				"panic", rec,
			)
			resp = apology(req.AgentID)
			a.metrics.ObserveRun(metrics.OutcomeFailed, 0, time.Since(start))
		}
	}()

	if a.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		defer cancel()
	}

	r := &run{Agent: a, req: req, resp: Response{Trace: []domain.TraceEntry{}}}
	execute := r.execute
	if a.sessions != nil && req.SessionID != "" {
		execute = func(ctx context.Context) error {
			return a.sessions.WithLock(ctx, domain.SessionKey(req.Caller, req.SessionID), r.execute)
		}
	}
	if err := execute(ctx); err != nil {
		a.logger.Error("Agent run failed",
			"caller", req.Caller,
			"agent_id", req.AgentID,
			"turns", r.resp.Turns,
			"err", err,
		)
		a.metrics.ObserveRun(metrics.OutcomeFailed, r.resp.Turns, time.Since(start))
		return apology(req.AgentID)
	}

	outcome := metrics.OutcomeAnswered
	if r.resp.Summarized {
		outcome = metrics.OutcomeSummarized
	}
	a.metrics.ObserveRun(outcome, r.resp.Turns, time.Since(start))
	a.logger.Info("Agent run finished",
		"caller", req.Caller,
		"agent_id", r.resp.AgentID,
		"turns", r.resp.Turns,
		"tools", len(r.resp.Trace),
		"denied", len(r.resp.Denied),
		"summarized", r.resp.Summarized,
	)
	return r.resp
}

func apology(agentID string) Response {
	return Response{
		Answer:  ApologyAnswer,
		Trace:   []domain.TraceEntry{},
		AgentID: agentID,
	}
}

// run holds the state of a single request.
type run struct {
	*Agent
	req  Request
	resp Response

	tools      *registry.Registry
	resolution preset.Resolution
	messages   []domain.Message
}

func (r *run) execute(ctx context.Context) error {
	r.tools = r.registry.Overlay()

	res, err := r.resolver.Resolve(ctx, r.req.AgentID, r.req.Caller, r.tools.Names())
	if err != nil {
		return fmt.Errorf("resolve agent %q: %w", r.req.AgentID, err)
	}
	if r.wantsRemote(res) {
		r.discover(ctx)
		res = res.Rebind(r.tools.Names())
	}
	r.resolution = res
	r.resp.AgentID = res.AgentID
	bound := r.tools.Descriptors(res.Allowed)

	r.messages = buildMessages(res.SystemPrompt, r.history(ctx), r.req.Message)

	answered := false
	var answer string
	for turn := 0; turn < r.maxTurns; turn++ {
		out, err := r.model.Chat(ctx, domain.ChatRequest{Messages: r.messages, Tools: bound})
		if err != nil {
			return fmt.Errorf("model call (turn %d): %w", turn+1, err)
		}

		calls := assignIDs(out.ToolCalls)
		r.messages = append(r.messages, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   out.Content,
			ToolCalls: calls,
		})
		if len(calls) == 0 {
			answer = out.Content
			answered = true
			break
		}

		r.resp.Turns++
		for _, call := range calls {
			r.messages = append(r.messages, r.invoke(ctx, call))
		}
	}

	if !answered {
		r.logger.Debug("Turn bound reached, forcing summary",
			"caller", r.req.Caller,
			"turns", r.resp.Turns,
		)
		r.messages = append(r.messages, domain.Message{Role: domain.RoleUser, Content: SummaryDirective})
		out, err := r.model.Chat(ctx, domain.ChatRequest{Messages: r.messages})
		if err != nil {
			return fmt.Errorf("summary call: %w", err)
		}
		answer = out.Content
		r.resp.Summarized = true
	}

	if strings.TrimSpace(answer) == "" {
		answer = FallbackAnswer
	}
	r.resp.Answer = answer
	r.record(ctx)
	return nil
}

// wantsRemote reports whether the resolved allow-list may name a remote tool.
// Providers are only dialed when it does.
func (r *run) wantsRemote(res preset.Resolution) bool {
	if r.remotes == nil {
		return false
	}
	if res.Requested == nil {
		return true
	}
	for _, name := range res.Requested {
		if !r.tools.Has(name) {
			return true
		}
	}
	return false
}

// discover registers the remote tools visible to the caller into the run's overlay.
// A provider that cannot be reached is skipped.
func (r *run) discover(ctx context.Context) {
	if r.remotes == nil {
		return
	}
	for _, name := range r.remotes.Providers() {
		tools, err := r.remotes.ListTools(ctx, r.req.Caller, name)
		if err != nil {
			r.logger.Warn("Provider discovery failed",
				"provider", name,
				"caller", r.req.Caller,
				"err", err,
			)
			continue
		}
		for _, desc := range tools {
			inv := registry.Remote{Provider: name, Tool: desc.Name, Via: r.remotes}
			if err := r.tools.Register(desc, inv); err != nil {
				r.logger.Debug("Skipping remote tool", "provider", name, "tool", desc.Name, "err", err)
			}
		}
	}
}

func (r *run) history(ctx context.Context) []domain.Message {
	if r.req.History != nil || r.transcripts == nil || r.req.SessionID == "" {
		return r.req.History
	}
	msgs, err := r.transcripts.History(ctx, domain.SessionKey(r.req.Caller, r.req.SessionID), r.historyLimit)
	if err != nil {
		r.logger.Warn("Failed to load history, continuing without it",
			"session_id", r.req.SessionID,
			"err", err,
		)
		return nil
	}
	return msgs
}

// invoke runs one tool call and returns the tool message for the model.
// Calls outside the allow-list are answered without being executed or traced.
func (r *run) invoke(ctx context.Context, call domain.ToolCall) domain.Message {
	if !r.resolution.Allows(call.Name) || !r.tools.Has(call.Name) {
		res := domain.ToolResult{ID: call.ID, Error: domain.ErrToolNotAllowed.Error(), Denied: true}
		r.resp.Denied = append(r.resp.Denied, domain.DeniedCall{
			Tool:      call.Name,
			Arguments: call.Arguments,
			Reason:    res.Error,
		})
		r.metrics.ObserveTool(call.Name, res, 0)
		r.logger.Warn("Tool call denied", "caller", r.req.Caller, "tool", call.Name)
		return toolMessage(call, res, r.resultLimit)
	}

	idx := len(r.resp.Trace)
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	r.resp.Trace = append(r.resp.Trace, domain.TraceEntry{
		Tool:        call.Name,
		Arguments:   args,
		Description: fmt.Sprintf("Calling tool: %s...", call.Name),
	})

	tctx := ctx
	if r.toolTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, r.toolTimeout)
		defer cancel()
	}

	interceptors := append([]registry.Interceptor{registry.AllowList(r.resolution.Allowed)}, r.interceptors...)
	start := time.Now()
	res := r.tools.Invoke(tctx, r.req.Caller, call, interceptors...)
	elapsed := time.Since(start)

	r.resp.Trace[idx].Result = truncate(res.Summary(), TraceResultLimit)
	r.resp.Trace[idx].OK = res.OK
	r.metrics.ObserveTool(call.Name, res, elapsed)
	r.logger.Debug("Tool call finished",
		"caller", r.req.Caller,
		"tool", call.Name,
		"ok", res.OK,
		"duration", elapsed,
	)
	return toolMessage(call, res, r.resultLimit)
}

// record appends the exchange to the caller's transcript.
func (r *run) record(ctx context.Context) {
	if r.transcripts == nil || r.req.SessionID == "" {
		return
	}
	err := r.transcripts.Append(ctx, domain.SessionKey(r.req.Caller, r.req.SessionID),
		domain.Message{Role: domain.RoleUser, Content: r.req.Message},
		domain.Message{Role: domain.RoleAssistant, Content: r.resp.Answer},
	)
	if err != nil {
		r.logger.Warn("Failed to save transcript", "session_id", r.req.SessionID, "err", err)
	}
}

func assignIDs(calls []domain.ToolCall) []domain.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]domain.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		out[i] = c
	}
	return out
}
