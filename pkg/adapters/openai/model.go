// Package openai adapts OpenAI-compatible chat completion endpoints to ports.ChatModel.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/sashabaranov/go-openai"
)

// Config describes the model endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Model is a ports.ChatModel backed by go-openai.
type Model struct {
	client *openai.Client
	cfg    Config
}

// New creates a Model. An empty BaseURL targets api.openai.com.
func New(cfg Config) (*Model, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai: model name is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Model{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

// Chat sends one chat completion request.
func (m *Model) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	creq := openai.ChatCompletionRequest{
		Model:       m.cfg.Model,
		Messages:    toMessages(req.Messages),
		Tools:       toTools(req.Tools),
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
	}

	resp, err := m.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: no choices returned")
	}

	msg := resp.Choices[0].Message
	out := &domain.ChatResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, fromToolCall(tc))
	}
	return out, nil
}

func toMessages(msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case domain.RoleAssistant:
			for _, c := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, toToolCall(c))
			}
		case domain.RoleTool:
			cm.ToolCallID = m.ToolCallID
			cm.Name = m.Name
		}
		out = append(out, cm)
	}
	return out
}

func toTools(descs []domain.ToolDescriptor) []openai.Tool {
	if len(descs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(descs))
	for _, d := range descs {
		params := d.Parameters
		if len(params) == 0 {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func toToolCall(c domain.ToolCall) openai.ToolCall {
	args := c.RawArguments
	if !c.Malformed() {
		args = "{}"
		if len(c.Arguments) > 0 {
			if data, err := json.Marshal(c.Arguments); err == nil {
				args = string(data)
			}
		}
	}
	return openai.ToolCall{
		ID:   c.ID,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      c.Name,
			Arguments: args,
		},
	}
}

// fromToolCall decodes the argument string. Undecodable arguments are kept raw.
func fromToolCall(tc openai.ToolCall) domain.ToolCall {
	call := domain.ToolCall{ID: tc.ID, Name: tc.Function.Name}
	raw := strings.TrimSpace(tc.Function.Arguments)
	if raw == "" {
		call.Arguments = map[string]any{}
		return call
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		call.RawArguments = raw
		return call
	}
	call.Arguments = args
	return call
}
