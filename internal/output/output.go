// Package output renders search results and service reports for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tradelens/tradelens/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders one search session.
type Formatter interface {
	FormatSearch(result *core.SearchResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// FormatSearchList renders several sessions, e.g. from a batch item file.
func FormatSearchList(format Format, results []*core.SearchResult) (string, error) {
	if format == FormatJSON {
		return marshalJSON(results)
	}

	formatter := NewFormatter(format)
	rendered := make([]string, 0, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		value, err := formatter.FormatSearch(result)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(value) != "" {
			rendered = append(rendered, value)
		}
	}
	return strings.Join(rendered, "\n\n"), nil
}

func marshalJSON(value any) (string, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
