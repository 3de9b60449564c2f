package agent

import (
	"fmt"
	"strings"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
)

// buildMessages assembles the prompt: system prompt, finished turns, then the new message.
// Only non-empty user and assistant messages are kept from history. A trailing user
// message equal to the new one is dropped so it is not sent twice.
func buildMessages(systemPrompt string, history []domain.Message, message string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})

	kept := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, domain.Message{Role: m.Role, Content: m.Content})
	}
	if n := len(kept); n > 0 && kept[n-1].Role == domain.RoleUser && kept[n-1].Content == message {
		kept = kept[:n-1]
	}

	msgs = append(msgs, kept...)
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: message})
}

func toolMessage(call domain.ToolCall, res domain.ToolResult, limit int) domain.Message {
	content := truncate(res.Text, limit)
	if !res.OK {
		content = fmt.Sprintf("Error calling %s: %s", call.Name, res.Error)
	}
	return domain.Message{
		Role:       domain.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

// truncate cuts s to limit runes and marks the cut.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + truncatedSuffix
		}
		n++
	}
	return s
}
