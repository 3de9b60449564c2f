package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the FoodAI banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	// Warm gradient, tomato to basil.
	lines := []struct {
		text, color string
	}{
		{"  ___              _   _   ___ ", "#f87171"},
		{" | __|__  ___  __| | /_\\ |_ _|", "#fb923c"},
		{" | _/ _ \\/ _ \\/ _` |/ _ \\ | | ", "#facc15"},
		{" |_|\\___/\\___/\\__,_/_/ \\_\\___|", "#4ade80"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  kitchen assistant "+version).Faint())
	fmt.Fprintln(w)
}
