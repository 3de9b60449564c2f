package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transport selects the MCP wire transport of an endpoint.
type Transport string

const (
	TransportStreamable Transport = "streamable"
	TransportSSE        Transport = "sse"
	// TransportAuto tries streamable HTTP first and falls back to SSE.
	TransportAuto Transport = "auto"
)

// DefaultUserAgent is sent on every provider request.
const DefaultUserAgent = "FoodAI-Backend/1.0"

// Endpoint describes a remote provider.
type Endpoint struct {
	Name      string
	URL       string
	Transport Transport
	// CallTimeout bounds a single tools/call. Zero means only the caller deadline applies.
	CallTimeout time.Duration
	// Token is used when the caller has no credential of its own.
	Token string
	Retry RetryPolicy
}

func (e Endpoint) transports() []Transport {
	switch e.Transport {
	case TransportAuto:
		return []Transport{TransportStreamable, TransportSSE}
	case "":
		return []Transport{TransportStreamable}
	default:
		return []Transport{e.Transport}
	}
}

// Conn is the part of an MCP client a Session relies on.
// *client.Client from mcp-go satisfies it.
type Conn interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer creates an unstarted connection to endpoint using the given transport.
type Dialer func(ctx context.Context, endpoint Endpoint, t Transport, credential string) (Conn, error)

// DialMCP returns a Dialer building mcp-go HTTP clients.
// The credential is sent as a bearer token.
func DialMCP(userAgent string) Dialer {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return func(ctx context.Context, endpoint Endpoint, t Transport, credential string) (Conn, error) {
		headers := map[string]string{"User-Agent": userAgent}
		if credential != "" {
			headers["Authorization"] = "Bearer " + credential
		}

		var (
			c   *client.Client
			err error
		)
		switch t {
		case TransportStreamable:
			c, err = client.NewStreamableHttpClient(endpoint.URL, transport.WithHTTPHeaders(headers))
		case TransportSSE:
			c, err = client.NewSSEMCPClient(endpoint.URL, transport.WithHeaders(headers))
		default:
			return nil, fmt.Errorf("unsupported transport %q", t)
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
