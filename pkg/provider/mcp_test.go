package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dengzhuofu/foodai-agent/pkg/provider"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCouponServer() *server.MCPServer {
	s := server.NewMCPServer("coupon-provider", "1.0.0")

	s.AddTool(mcp.NewTool("available-coupons",
		mcp.WithDescription("List coupons the user can claim"),
		mcp.WithString("city", mcp.Required(), mcp.Description("City name")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		city := req.GetString("city", "")
		return mcp.NewToolResultText("2 coupons in " + city), nil
	})

	s.AddTool(mcp.NewTool("coupon-qrcode",
		mcp.WithDescription("Render the QR code of a coupon"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultImage("Scan at the counter", "aGVsbG8=", "image/png"), nil
	})

	s.AddTool(mcp.NewTool("claim-coupon",
		mcp.WithDescription("Claim a coupon"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("coupon already claimed"), nil
	})
	return s
}

func inProcessDialer(srv *server.MCPServer) provider.Dialer {
	return func(ctx context.Context, ep provider.Endpoint, t provider.Transport, credential string) (provider.Conn, error) {
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func TestPool_InProcessProvider(t *testing.T) {
	ep := provider.Endpoint{Name: "coupons", Token: "svc"}
	pool := provider.NewPool([]provider.Endpoint{ep}, nil, provider.WithDialer(inProcessDialer(newCouponServer())))
	defer pool.Close()
	ctx := context.Background()

	tools, err := pool.ListTools(ctx, "alice", "coupons")
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"available-coupons", "coupon-qrcode", "claim-coupon"}, names)

	res := pool.Invoke(ctx, "alice", "coupons", "available-coupons", map[string]any{"city": "Hangzhou"})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "2 coupons in Hangzhou", res.Text)

	res = pool.Invoke(ctx, "alice", "coupons", "coupon-qrcode", nil)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "Scan at the counter\n![image](data:image/png;base64,aGVsbG8=)", res.Text)

	res = pool.Invoke(ctx, "alice", "coupons", "claim-coupon", nil)
	assert.False(t, res.OK)
	assert.Equal(t, "coupon already claimed", res.Error)

	assert.Equal(t, 1, pool.Len())
}

func TestDialMCP_StreamableHTTPSendsBearerToken(t *testing.T) {
	var (
		mu      sync.Mutex
		auth    []string
		agents  []string
		handler = server.NewStreamableHTTPServer(newCouponServer())
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	defer ts.Close()

	ep := provider.Endpoint{Name: "coupons", URL: ts.URL + "/mcp", Transport: provider.TransportStreamable}
	sess := provider.NewSession("alice", ep, "alice-token")
	defer sess.Close()

	res, err := sess.Call(context.Background(), "available-coupons", map[string]any{"city": "Beijing"})
	require.NoError(t, err)
	assert.True(t, res.OK, res.Error)
	assert.Equal(t, "2 coupons in Beijing", res.Text)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, auth)
	for i := range auth {
		assert.Equal(t, "Bearer alice-token", auth[i])
		assert.Equal(t, provider.DefaultUserAgent, agents[i])
	}
}
