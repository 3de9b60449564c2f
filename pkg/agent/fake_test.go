package agent_test

import (
	"context"
	"sync"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/stretchr/testify/mock"
)

// reply is one scripted model turn.
type reply struct {
	resp  domain.ChatResponse
	err   error
	panic bool
}

// scriptedModel answers with the scripted replies in order, then repeats the last one.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []reply
	requests []domain.ChatRequest
}

func script(replies ...reply) *scriptedModel {
	return &scriptedModel{replies: replies}
}

func (m *scriptedModel) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := req
	snapshot.Messages = append([]domain.Message(nil), req.Messages...)
	m.requests = append(m.requests, snapshot)

	i := len(m.requests) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	r := m.replies[i]
	if r.panic {
		panic("model exploded")
	}
	if r.err != nil {
		return nil, r.err
	}
	resp := r.resp
	return &resp, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *scriptedModel) request(i int) domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func text(s string) reply {
	return reply{resp: domain.ChatResponse{Content: s}}
}

func toolCalls(calls ...domain.ToolCall) reply {
	return reply{resp: domain.ChatResponse{ToolCalls: calls}}
}

func call(id, name string, args map[string]any) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: args}
}

type mockRemotes struct {
	mock.Mock
}

func (m *mockRemotes) Providers() []string {
	return m.Called().Get(0).([]string)
}

func (m *mockRemotes) ListTools(ctx context.Context, caller, provider string) ([]domain.ToolDescriptor, error) {
	ret := m.Called(caller, provider)
	tools, _ := ret.Get(0).([]domain.ToolDescriptor)
	return tools, ret.Error(1)
}

func (m *mockRemotes) Invoke(ctx context.Context, caller, provider, tool string, args map[string]any) domain.ToolResult {
	ret := m.Called(caller, provider, tool, args)
	return ret.Get(0).(domain.ToolResult)
}
