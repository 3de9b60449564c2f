package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/adapters/memory"
	"github.com/dengzhuofu/foodai-agent/pkg/agent"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/preset"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent echoes the request back.
type fakeAgent struct {
	mu   sync.Mutex
	reqs []agent.Request
}

func (f *fakeAgent) Run(ctx context.Context, req agent.Request) agent.Response {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return agent.Response{
		Answer:  "echo: " + req.Message,
		AgentID: req.AgentID,
		Trace:   []domain.TraceEntry{},
	}
}

// fakeProviders serves a single "coupons" provider.
type fakeProviders struct {
	mu      sync.Mutex
	evicted []string
}

func (f *fakeProviders) Providers() []string { return []string{"coupons"} }

func (f *fakeProviders) ListTools(ctx context.Context, caller, provider string) ([]domain.ToolDescriptor, error) {
	if provider != "coupons" {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	if caller == "offline" {
		return nil, fmt.Errorf("%w: coupons: dial tcp: refused", domain.ErrConnection)
	}
	return []domain.ToolDescriptor{{Name: "available-coupons", Kind: domain.ToolKindRemote, Provider: "coupons"}}, nil
}

func (f *fakeProviders) Invoke(ctx context.Context, caller, provider, tool string, args map[string]any) domain.ToolResult {
	if tool != "available-coupons" {
		return domain.Failure("", "unknown tool "+tool)
	}
	return domain.Success("", fmt.Sprintf("coupons for %s in %v", caller, args["city"]))
}

func (f *fakeProviders) Evict(caller, provider string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, caller+"/"+provider)
}

type fixture struct {
	handler   http.Handler
	server    *Server
	agent     *fakeAgent
	providers *fakeProviders
	creds     *memory.CredentialStore
	sessions  *memory.TranscriptStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	resolver := preset.NewResolver(memory.NewPresetStore())
	require.NoError(t, resolver.SeedSystem(context.Background(), domain.Preset{
		AgentID:      "fridge_only",
		Name:         "Fridge",
		SystemPrompt: "Only look in the fridge.",
		AllowedTools: []string{"get_fridge_items"},
	}))

	f := &fixture{
		agent:     &fakeAgent{},
		providers: &fakeProviders{},
		creds:     memory.NewCredentialStore(),
		sessions:  memory.NewTranscriptStore(),
	}
	f.handler, f.server = newServer(Deps{
		Agent:         f.agent,
		Providers:     f.providers,
		Credentials:   f.creds,
		Presets:       resolver,
		Sessions:      f.sessions,
		MaxInputBytes: 64,
		Gatherer:      prometheus.NewRegistry(),
		Version:       "1.2.3",
	})
	return f
}

func (f *fixture) do(method, path, caller string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestGetHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do("GET", "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rr)["status"])
}

func TestGetInfo(t *testing.T) {
	f := newFixture(t)
	rr := f.do("GET", "/info", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[map[string]string](t, rr)
	assert.Equal(t, "foodai-agent", resp["app"])
	assert.Equal(t, "1.2.3", resp["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do("GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rr := f.do("OPTIONS", "/v1/agent/chat", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), CallerHeader)
}

func TestCORS_EchoesAllowedOrigin(t *testing.T) {
	f := newFixture(t)
	handler, _ := newServer(Deps{
		Agent:       f.agent,
		CORSOrigins: []string{"https://a.example", "https://b.example"},
		Gatherer:    prometheus.NewRegistry(),
	})
	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("OPTIONS", "/v1/agent/chat", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	rr := preflight("https://b.example")
	assert.Equal(t, "https://b.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))

	rr = preflight("https://evil.example")
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))
}

func TestChat(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/agent/chat", "alice", ChatRequest{
		Message: "what is in my fridge?",
		AgentID: "fridge_only",
		History: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody[agent.Response](t, rr)
	assert.Equal(t, "echo: what is in my fridge?", resp.Answer)
	assert.Equal(t, "fridge_only", resp.AgentID)

	require.Len(t, f.agent.reqs, 1)
	assert.Equal(t, "alice", f.agent.reqs[0].Caller)
	assert.Len(t, f.agent.reqs[0].History, 1)
}

func TestChat_RequiresCaller(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/agent/chat", "", ChatRequest{Message: "hello"})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, f.agent.reqs)
}

func TestChat_BadRequests(t *testing.T) {
	f := newFixture(t)

	rr := f.do("POST", "/v1/agent/chat", "alice", ChatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest("POST", "/v1/agent/chat", strings.NewReader("{not json"))
	req.Header.Set(CallerHeader, "alice")
	raw := httptest.NewRecorder()
	f.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
	assert.Contains(t, decodeBody[map[string]string](t, raw)["error"], "invalid request body")

	rr = f.do("POST", "/v1/agent/chat", "alice", ChatRequest{Message: strings.Repeat("a", 65)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody[map[string]string](t, rr)["error"], "maximum allowed size")
	assert.Empty(t, f.agent.reqs)
}

func TestChat_StripsControlCharacters(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/agent/chat", "alice", ChatRequest{Message: "eggs\x1b[31m\x00"})

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, f.agent.reqs, 1)
	assert.Equal(t, "eggs[31m", f.agent.reqs[0].Message)
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Append(ctx, domain.SessionKey("alice", "s1"),
		domain.Message{Role: domain.RoleUser, Content: "hi"},
		domain.Message{Role: domain.RoleAssistant, Content: "hello"},
	))

	rr := f.do("GET", "/v1/sessions/s1/history?limit=1", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decodeBody[map[string][]domain.Message](t, rr)["messages"]
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)

	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/v1/sessions/s1/history?limit=x", "alice", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/v1/sessions/s1/history", "", nil).Code)

	assert.Equal(t, http.StatusNoContent, f.do("DELETE", "/v1/sessions/s1", "alice", nil).Code)
	rr = f.do("GET", "/v1/sessions/s1/history", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeBody[map[string][]domain.Message](t, rr)["messages"])
}

func TestSessions_ScopedToCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Append(ctx, domain.SessionKey("alice", "s1"),
		domain.Message{Role: domain.RoleUser, Content: "my address is 1 Main St"},
	))

	rr := f.do("GET", "/v1/sessions/s1/history", "bob", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeBody[map[string][]domain.Message](t, rr)["messages"])

	assert.Equal(t, http.StatusNoContent, f.do("DELETE", "/v1/sessions/s1", "bob", nil).Code)
	history, err := f.sessions.History(ctx, domain.SessionKey("alice", "s1"), 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "bob cannot delete alice's transcript")
}

func TestProviders(t *testing.T) {
	f := newFixture(t)

	rr := f.do("GET", "/v1/providers", "alice", nil)
	assert.Equal(t, []string{"coupons"}, decodeBody[map[string][]string](t, rr)["providers"])

	rr = f.do("GET", "/v1/providers/coupons/tools", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	tools := decodeBody[map[string][]domain.ToolDescriptor](t, rr)["tools"]
	require.Len(t, tools, 1)
	assert.Equal(t, "available-coupons", tools[0].Name)

	rr = f.do("GET", "/v1/providers/amap/tools", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do("GET", "/v1/providers/coupons/tools", "offline", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestInvokeProviderTool(t *testing.T) {
	f := newFixture(t)

	rr := f.do("POST", "/v1/providers/coupons/tools/available-coupons", "alice", map[string]any{"city": "Hangzhou"})
	require.Equal(t, http.StatusOK, rr.Code)
	res := decodeBody[domain.ToolResult](t, rr)
	assert.True(t, res.OK)
	assert.Equal(t, "coupons for alice in Hangzhou", res.Text)

	// A failed tool is still a successful request.
	rr = f.do("POST", "/v1/providers/coupons/tools/claim", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	res = decodeBody[domain.ToolResult](t, rr)
	assert.False(t, res.OK)
	assert.Equal(t, "unknown tool claim", res.Error)

	rr = f.do("POST", "/v1/providers/amap/tools/geo", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPutCredential(t *testing.T) {
	f := newFixture(t)

	rr := f.do("PUT", "/v1/providers/coupons/credential", "alice", map[string]string{"token": "tok-1"})
	require.Equal(t, http.StatusNoContent, rr.Code)

	tok, err := f.creds.Credential(context.Background(), "alice", "coupons")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, []string{"alice/coupons"}, f.providers.evicted)

	rr = f.do("PUT", "/v1/providers/coupons/credential", "alice", map[string]string{"token": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do("PUT", "/v1/providers/amap/credential", "alice", map[string]string{"token": "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPresets(t *testing.T) {
	f := newFixture(t)

	rr := f.do("PUT", "/v1/presets/my_helper", "alice", domain.Preset{
		Name:         "Helper",
		SystemPrompt: "Help with shopping.",
		AllowedTools: []string{"get_shopping_list"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	saved := decodeBody[domain.Preset](t, rr)
	assert.Equal(t, "my_helper", saved.AgentID)
	assert.Equal(t, "alice", saved.Owner)

	rr = f.do("GET", "/v1/presets", "alice", nil)
	assert.Len(t, decodeBody[map[string][]domain.Preset](t, rr)["presets"], 2)

	rr = f.do("GET", "/v1/presets", "bob", nil)
	assert.Len(t, decodeBody[map[string][]domain.Preset](t, rr)["presets"], 1)

	rr = f.do("GET", "/v1/presets/my_helper", "bob", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do("PUT", "/v1/presets/my_helper", "bob", domain.Preset{Name: "Mine now", SystemPrompt: "x"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do("PUT", "/v1/presets/fridge_only", "alice", domain.Preset{Name: "Hijack", SystemPrompt: "x"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do("DELETE", "/v1/presets/my_helper", "alice", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do("GET", "/v1/presets/my_helper", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrPresetNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", domain.ErrToolNotFound), http.StatusNotFound},
		{domain.ErrPresetForbidden, http.StatusForbidden},
		{domain.ErrInvalidPreset, http.StatusBadRequest},
		{domain.ErrCredentialNotFound, http.StatusBadRequest},
		{domain.ErrConnection, http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestSubscribeEvents_Session(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/sessions/s-1/events", nil)
	require.NoError(t, err)
	req.Header.Set(CallerHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "":
				return event, data
			}
		}
	}

	event, _ := readEvent()
	require.Equal(t, "ping", event)
	require.Eventually(t, func() bool {
		return f.server.Streams.Subscribers(domain.SessionKey("alice", "s-1")) == 1
	}, time.Second, 10*time.Millisecond)

	// Other sessions and other callers reusing the id are not delivered here.
	f.do("POST", "/v1/agent/chat", "bob", ChatRequest{Message: "from bob", SessionID: "s-1"})
	f.do("POST", "/v1/agent/chat", "alice", ChatRequest{Message: "elsewhere", SessionID: "s-2"})
	rr := f.do("POST", "/v1/agent/chat", "alice", ChatRequest{Message: "hello", SessionID: "s-1"})
	require.Equal(t, http.StatusOK, rr.Code)

	event, data := readEvent()
	assert.Equal(t, "chat", event)
	var got agent.Response
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "echo: hello", got.Answer)
}

func TestSubscribeEvents_RequiresCaller(t *testing.T) {
	f := newFixture(t)
	rr := f.do("GET", "/v1/sessions/s-1/events", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 0, f.server.Streams.Subscribers(domain.SessionKey("", "s-1")))
}

func TestStreamManager_UnsubscribeCleansUp(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s")
	assert.Equal(t, 1, sm.Subscribers("s"))

	sm.Broadcast("s", "one")
	assert.Equal(t, "one", <-ch)

	cancel()
	assert.Equal(t, 0, sm.Subscribers("s"))
	_, open := <-ch
	assert.False(t, open)
}
