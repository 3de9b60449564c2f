package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
)

// Mask replaces every match in stored content.
const Mask = "***"

// DefaultPIIPatterns match e-mail addresses and mainland China mobile numbers.
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	`\b1[3-9]\d{9}\b`,
}

type piiMiddleware struct {
	next     ports.TranscriptStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks matches of the patterns in transcript
// messages before they are stored. What the model sees during a run is not affected.
func NewPIIMiddleware(patternStrings []string) (TranscriptMiddleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %d: %w", i, err)
		}
		patterns[i] = re
	}
	return func(next ports.TranscriptStore) ports.TranscriptStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	// Copy to avoid side effects on the caller's messages.
	masked := make([]domain.Message, len(msgs))
	for i, msg := range msgs {
		masked[i] = msg
		masked[i].Content = m.mask(msg.Content)
	}
	return m.next.Append(ctx, sessionID, masked...)
}

func (m *piiMiddleware) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	return m.next.History(ctx, sessionID, limit)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}
