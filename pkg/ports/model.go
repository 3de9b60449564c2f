package ports

import (
	"context"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
)

// ChatModel is the language model transport.
// Implementations must honour ctx cancellation.
type ChatModel interface {
	// Chat sends the conversation and returns the model reply.
	// When req.Tools is empty the model must not be offered any tool.
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}
