// Package output renders engine results for terminal and file sinks.
package output

import (
	"fmt"
	"strings"

	"github.com/contextlens/contextlens/internal/core"
)

// Format names a rendering.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

var formatAliases = map[string]Format{
	"":         FormatTable,
	"table":    FormatTable,
	"text":     FormatTable,
	"json":     FormatJSON,
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
}

// Formatter renders engine results for the CLI.
type Formatter interface {
	FormatResponse(resp *core.GenerationResponse) (string, error)
	FormatTasks(tasks []*core.BackgroundTask) (string, error)
	FormatHealth(status core.HealthStatus) (string, error)
	FormatStats(stats core.Stats) (string, error)
}

// ParseFormat resolves a user-supplied format name or alias.
func ParseFormat(value string) (Format, error) {
	if f, ok := formatAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", value)
}

// Extension is the file suffix used when writing f to --out-dir.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// Usage joins formats for flag help text.
func Usage(formats ...Format) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, "|")
}

// NewFormatter returns a formatter for f; unknown formats render as tables.
func NewFormatter(f Format) Formatter {
	switch f {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
