package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Formatter post-processes the rendered text of a specific tool.
type Formatter func(text string) string

// Formatters maps tool names to their Formatter.
type Formatters map[string]Formatter

// Apply runs the formatter registered for tool, if any.
func (f Formatters) Apply(tool, text string) string {
	if fn, ok := f[tool]; ok && fn != nil {
		return fn(text)
	}
	return text
}

// FormatterByName returns a built-in formatter.
func FormatterByName(name string) (Formatter, error) {
	switch name {
	case "json_table":
		return JSONTable, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown formatter %q", name)
	}
}

// JSONTable renders a JSON array of objects as a markdown table.
// Anything else is returned unchanged.
func JSONTable(text string) string {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &rows); err != nil || len(rows) == 0 {
		return text
	}

	seen := map[string]struct{}{}
	var cols []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	if len(cols) == 0 {
		return text
	}
	sort.Strings(cols)

	var b strings.Builder
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = cell(row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func cell(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = ""
	case string:
		s = val
	case map[string]any, []any:
		data, _ := json.Marshal(val)
		s = string(data)
	default:
		s = fmt.Sprint(val)
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
