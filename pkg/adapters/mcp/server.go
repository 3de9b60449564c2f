// Package mcp publishes the local tools of a registry as an MCP server,
// so other agents can use the kitchen the same way this one uses remote providers.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dengzhuofu/foodai-agent/internal/logging"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/registry"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// CallerHeader overrides the default caller on the HTTP transport.
const CallerHeader = "X-User-ID"

type callerKey struct{}

// WithCaller returns a context whose tool calls act for caller.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Server exposes local tools over MCP.
type Server struct {
	registry  *registry.Registry
	caller    string
	logger    *slog.Logger
	mcpServer *server.MCPServer
	tools     []string
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer publishes every local tool of reg. Calls without an explicit caller act for defaultCaller.
func NewServer(reg *registry.Registry, defaultCaller, version string, opts ...Option) *Server {
	s := &Server{
		registry:  reg,
		caller:    defaultCaller,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("foodai-kitchen", strings.TrimSpace(version), server.WithToolCapabilities(false)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Tools returns the names of the published tools.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

func (s *Server) registerTools() {
	for _, desc := range s.registry.Descriptors(s.registry.Names()) {
		if desc.Kind != domain.ToolKindLocal {
			continue
		}
		schema := desc.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			s.logger.Warn("Skipping tool with unencodable schema", "tool", desc.Name, "err", err)
			continue
		}
		s.mcpServer.AddTool(mcp.NewToolWithRawSchema(desc.Name, desc.Description, raw), s.handler(desc.Name))
		s.tools = append(s.tools, desc.Name)
	}
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caller := s.caller
		if c, ok := ctx.Value(callerKey{}).(string); ok && c != "" {
			caller = c
		}

		res := s.registry.Invoke(ctx, caller, domain.ToolCall{
			ID:        "mcp_" + uuid.NewString(),
			Name:      name,
			Arguments: req.GetArguments(),
		})
		if !res.OK {
			s.logger.Debug("MCP tool failed", "tool", name, "caller", caller, "err", res.Error)
			return mcp.NewToolResultError(res.Error), nil
		}
		return mcp.NewToolResultText(res.Text), nil
	}
}

// ServeStdio serves on Stdin/Stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Handler returns the streamable HTTP handler. The X-User-ID header selects the caller.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if caller := strings.TrimSpace(r.Header.Get(CallerHeader)); caller != "" {
				return WithCaller(ctx, caller)
			}
			return ctx
		}),
	)
}

// ServeHTTP listens on addr with the streamable HTTP transport until ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.Handler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (streamable HTTP)", "address", addr, "tools", len(s.tools))
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}
