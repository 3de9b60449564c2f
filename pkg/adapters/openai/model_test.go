package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	adapter "github.com/dengzhuofu/foodai-agent/pkg/adapters/openai"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handle func(req openai.ChatCompletionRequest) openai.ChatCompletionResponse) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(req))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newModel(t *testing.T, ts *httptest.Server) *adapter.Model {
	t.Helper()
	m, err := adapter.New(adapter.Config{BaseURL: ts.URL + "/v1/", APIKey: "sk-test", Model: "qwen-plus"})
	require.NoError(t, err)
	return m
}

func TestChat_ToolCallsRoundTrip(t *testing.T) {
	var got openai.ChatCompletionRequest
	ts := newServer(t, func(req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		got = req
		return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{
					{ID: "call_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "search_recipes", Arguments: `{"keyword":"egg"}`}},
					{ID: "call_2", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "get_fridge_items", Arguments: ""}},
					{ID: "call_3", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "add_fridge_item", Arguments: `{"name":`}},
				},
			},
		}}}
	})

	resp, err := newModel(t, ts).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "sys"},
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "old", Name: "get_fridge_items"}}},
			{Role: domain.RoleTool, Content: "eggs", ToolCallID: "old", Name: "get_fridge_items"},
		},
		Tools: []domain.ToolDescriptor{
			{Name: "get_fridge_items", Description: "Fridge"},
			{Name: "search_recipes", Parameters: map[string]any{"type": "object", "properties": map[string]any{"keyword": map[string]any{"type": "string"}}}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "qwen-plus", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "{}", got.Messages[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "old", got.Messages[3].ToolCallID)
	require.Len(t, got.Tools, 2)
	assert.Equal(t, "get_fridge_items", got.Tools[0].Function.Name)

	require.Len(t, resp.ToolCalls, 3)
	assert.Equal(t, map[string]any{"keyword": "egg"}, resp.ToolCalls[0].Arguments)
	assert.Equal(t, map[string]any{}, resp.ToolCalls[1].Arguments)
	assert.True(t, resp.ToolCalls[2].Malformed())
	assert.Equal(t, `{"name":`, resp.ToolCalls[2].RawArguments)
}

func TestChat_TextAnswerWithoutTools(t *testing.T) {
	ts := newServer(t, func(req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		assert.Empty(t, req.Tools)
		return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Summary."},
		}}}
	})

	resp, err := newModel(t, ts).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "sum up"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Summary.", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestChat_NoChoicesIsAnError(t *testing.T) {
	ts := newServer(t, func(req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		return openai.ChatCompletionResponse{}
	})

	_, err := newModel(t, ts).Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorContains(t, err, "no choices")
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := adapter.New(adapter.Config{})
	assert.Error(t, err)
}
