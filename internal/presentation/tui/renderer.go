// Package tui renders agent output for terminals.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/muesli/termenv"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer when styled is set, and a pass-through otherwise.
// Pipes and files get the raw markdown.
func NewRenderer(styled bool, width int) Renderer {
	if !styled {
		return Plain
	}
	opts := []glamour.TermRendererOption{
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return Plain
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// Plain returns markdown unchanged, with a trailing newline.
func Plain(markdown string) (string, error) {
	return strings.TrimRight(markdown, "\n") + "\n", nil
}

// FormatTrace lists the tool calls of a run, one per line.
func FormatTrace(trace []domain.TraceEntry, denied []domain.DeniedCall, styled bool) string {
	if len(trace) == 0 && len(denied) == 0 {
		return ""
	}
	p := termenv.Ascii
	if styled {
		p = termenv.ColorProfile()
	}

	var b strings.Builder
	for i, t := range trace {
		mark := p.String("ok").Foreground(p.Color("#4ade80"))
		if !t.OK {
			mark = p.String("failed").Foreground(p.Color("#f87171"))
		}
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, t.Description, mark)
		if t.Result != "" {
			fmt.Fprintf(&b, "   %s\n", p.String(oneLine(t.Result)).Faint())
		}
	}
	for _, d := range denied {
		fmt.Fprintf(&b, "-  %s [%s]\n", d.Tool, p.String(d.Reason).Foreground(p.Color("#facc15")))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
