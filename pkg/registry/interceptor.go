package registry

import (
	"context"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
)

// Interceptor is a middleware that can inspect or block a tool call before it runs.
// It returns true if execution should proceed, or false to block it.
// If blocked, it should return a ToolResult describing the denial.
type Interceptor func(ctx context.Context, call domain.ToolCall) (bool, domain.ToolResult, error)

// Chain combines interceptors. The first one to block wins.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(ctx context.Context, call domain.ToolCall) (bool, domain.ToolResult, error) {
		for _, interceptor := range interceptors {
			allowed, result, err := interceptor(ctx, call)
			if err != nil {
				return false, domain.ToolResult{}, err
			}
			if !allowed {
				return false, result, nil
			}
		}
		return true, domain.ToolResult{}, nil
	}
}

// AllowList blocks every tool whose name is not in names.
func AllowList(names []string) Interceptor {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return func(ctx context.Context, call domain.ToolCall) (bool, domain.ToolResult, error) {
		if _, ok := allowed[call.Name]; ok {
			return true, domain.ToolResult{}, nil
		}
		return false, domain.ToolResult{
			ID:     call.ID,
			Error:  domain.ErrToolNotAllowed.Error(),
			Denied: true,
		}, nil
	}
}
