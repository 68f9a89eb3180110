package output

import (
	"encoding/json"

	"github.com/tradelens/tradelens/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatSearch renders a search result as JSON.
func (f *JSONFormatter) FormatSearch(result *core.SearchResult) (string, error) {
	if result == nil {
		return "", nil
	}
	if f.Indent {
		return marshalJSON(result)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
