package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dengzhuofu/foodai-agent/internal/logging"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/metrics"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
)

// State is the connection state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// ClientName is announced to providers during the handshake.
const ClientName = "foodai-agent"

// ErrSessionRetired is returned by a pooled session after the pool dropped it.
// The pool already holds (or will create) its successor.
var ErrSessionRetired = errors.New("provider session retired")

// sessionConfig is shared by every session of a pool.
type sessionConfig struct {
	dial          Dialer
	formatters    Formatters
	locker        ports.DistributedLocker
	lockTTL       time.Duration
	clientVersion string
	logger        *slog.Logger
	metrics       *metrics.Collector
}

func defaultSessionConfig() *sessionConfig {
	return &sessionConfig{
		dial:          DialMCP(DefaultUserAgent),
		lockTTL:       30 * time.Second,
		clientVersion: "dev",
		logger:        logging.NewNop(),
	}
}

// Session is a live (or lazily re-established) connection to one provider for one caller.
// Every operation holds the session lock, so calls on the same session are serialised.
// A session owned by a Pool never reconnects after a failure: it is retired and replaced.
type Session struct {
	caller     string
	endpoint   Endpoint
	credential string
	cfg        *sessionConfig
	pooled     bool

	state   atomic.Int32
	retired atomic.Bool

	mu    sync.Mutex
	conn  Conn
	tools []domain.ToolDescriptor
}

// NewSession creates a disconnected session. Nothing is dialed until first use.
func NewSession(caller string, endpoint Endpoint, credential string, opts ...Option) *Session {
	p := &Pool{cfg: defaultSessionConfig()}
	for _, opt := range opts {
		opt(p)
	}
	return newSession(caller, endpoint, credential, p.cfg)
}

func newSession(caller string, endpoint Endpoint, credential string, cfg *sessionConfig) *Session {
	return &Session{
		caller:     caller,
		endpoint:   endpoint,
		credential: credential,
		cfg:        cfg,
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// EnsureConnected opens and initialises the transport if none is open.
// It is idempotent: a Ready session performs no handshake.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.retired.Load() {
		return ErrSessionRetired
	}
	if s.conn != nil && s.State() == StateReady {
		return nil
	}
	s.setState(StateConnecting)

	if s.cfg.locker != nil {
		unlock, err := s.cfg.locker.Lock(ctx, "provider:"+s.endpoint.Name+":"+s.caller, s.cfg.lockTTL)
		if err != nil {
			s.setState(StateDisconnected)
			return fmt.Errorf("%w: %s: lock: %v", domain.ErrConnection, s.endpoint.Name, err)
		}
		defer func() {
			// The lock must be released even when the request was cancelled mid-handshake.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.cfg.logger.Warn("Failed to release handshake lock (will expire via TTL)",
					"provider", s.endpoint.Name,
					"caller", s.caller,
					"err", err,
				)
			}
		}()
	}

	var errs []error
	for _, t := range s.endpoint.transports() {
		conn, err := s.handshake(ctx, t)
		s.cfg.metrics.ObserveConnect(s.endpoint.Name, err)
		if err != nil {
			s.cfg.logger.Debug("Provider handshake failed",
				"provider", s.endpoint.Name,
				"transport", t,
				"err", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
			continue
		}
		s.conn = conn
		s.tools = nil
		s.setState(StateReady)
		s.cfg.logger.Info("Provider session ready",
			"provider", s.endpoint.Name,
			"caller", s.caller,
			"transport", t,
		)
		return nil
	}

	s.setState(StateDisconnected)
	return fmt.Errorf("%w: %s: %w", domain.ErrConnection, s.endpoint.Name, errors.Join(errs...))
}

func (s *Session) handshake(ctx context.Context, t Transport) (Conn, error) {
	conn, err := s.cfg.dial(ctx, s.endpoint, t, s.credential)
	if err != nil {
		return nil, err
	}

	// The transport outlives the request that opened it.
	if err := conn.Start(context.WithoutCancel(ctx)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    ClientName,
		Version: s.cfg.clientVersion,
	}
	if _, err := conn.Initialize(ctx, req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return conn, nil
}

// ListTools discovers the provider's tools. The result is cached until the next reconnect.
// Any error tears the session down.
func (s *Session) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(ctx); err != nil {
		s.failLocked(err)
		return nil, err
	}
	if s.tools != nil {
		return append([]domain.ToolDescriptor(nil), s.tools...), nil
	}

	var tools []domain.ToolDescriptor
	req := mcp.ListToolsRequest{}
	for {
		res, err := s.conn.ListTools(ctx, req)
		if err != nil {
			s.failLocked(err)
			return nil, fmt.Errorf("list tools from %s: %w", s.endpoint.Name, err)
		}
		for _, t := range res.Tools {
			tools = append(tools, s.describe(t))
		}
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}

	s.tools = tools
	return append([]domain.ToolDescriptor(nil), tools...), nil
}

func (s *Session) describe(t mcp.Tool) domain.ToolDescriptor {
	return domain.ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  inputSchema(t),
		Kind:        domain.ToolKindRemote,
		Provider:    s.endpoint.Name,
	}
}

// inputSchema extracts the tool's JSON schema as a plain map.
func inputSchema(t mcp.Tool) map[string]any {
	var wire struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if data, err := json.Marshal(t); err == nil {
		_ = json.Unmarshal(data, &wire)
	}
	schema := wire.InputSchema
	if schema == nil {
		schema = map[string]any{}
	}
	if v, ok := schema["type"]; !ok || v == "" {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// Call performs exactly one tools/call.
// A result flagged as an error by the provider is returned as a failed ToolResult with a nil error.
// A non-nil error means the transport failed; the session has already been torn down.
func (s *Session) Call(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(ctx); err != nil {
		s.failLocked(err)
		return domain.Failure("", err.Error()), err
	}

	if s.endpoint.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.endpoint.CallTimeout)
		defer cancel()
	}

	if args == nil {
		args = map[string]any{}
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.conn.CallTool(ctx, req)
	if err != nil {
		s.failLocked(err)
		err = fmt.Errorf("call %s on %s: %w", name, s.endpoint.Name, err)
		return domain.Failure("", err.Error()), err
	}

	text := s.cfg.formatters.Apply(name, RenderContent(res.Content))
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return domain.Failure("", text), nil
	}
	return domain.Success("", text), nil
}

// Close releases the transport. Safe to call on a closed session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// retire closes the transport for good. Waiters on the session lock get ErrSessionRetired.
func (s *Session) retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.retired.Store(true)
}

// failLocked tears the transport down after err. A pooled session is also retired:
// callers queued behind the failure must use the pool's replacement.
func (s *Session) failLocked(err error) {
	if errors.Is(err, ErrSessionRetired) {
		return
	}
	s.teardownLocked()
	if s.pooled {
		s.retired.Store(true)
	}
}

func (s *Session) teardownLocked() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.cfg.logger.Debug("Provider transport close failed",
				"provider", s.endpoint.Name,
				"err", err,
			)
		}
	}
	s.conn = nil
	s.tools = nil
	s.setState(StateDisconnected)
}
