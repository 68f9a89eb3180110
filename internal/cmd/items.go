package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tradelens/tradelens/internal/core"
)

// readItemsFile loads search criteria from a YAML or JSON file ("-" reads
// stdin). The document is a single item, a list of items, or a mapping with
// an "items" list.
func readItemsFile(path string) ([]core.SearchCriteria, error) {
	var reader io.Reader
	if strings.TrimSpace(path) == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck
		reader = file
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read item file: %w", err)
	}
	return parseItems(data)
}

func parseItems(data []byte) ([]core.SearchCriteria, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("item file is empty")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse item file: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	var items []core.SearchCriteria
	switch {
	case root.Kind == yaml.SequenceNode:
		if err := root.Decode(&items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
	case root.Kind == yaml.MappingNode && mappingHas(root, "items"):
		var wrapper struct {
			Items []core.SearchCriteria `yaml:"items"`
		}
		if err := root.Decode(&wrapper); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		items = wrapper.Items
	case root.Kind == yaml.MappingNode:
		var item core.SearchCriteria
		if err := root.Decode(&item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = []core.SearchCriteria{item}
	default:
		return nil, fmt.Errorf("item file must hold an item or a list of items")
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no items found")
	}
	for i := range items {
		items[i].Rarity = core.ParseRarity(string(items[i].Rarity))
	}
	return items, nil
}

func mappingHas(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

var (
	statIDPattern = regexp.MustCompile(`^[a-z_]+\.[a-z0-9_.]+$`)
	numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
)

// parseModifier reads a --mod flag: either "stat.id=value" or modifier text
// such as "+60 to maximum Life", whose first number becomes the value.
func parseModifier(raw string) (core.Modifier, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return core.Modifier{}, fmt.Errorf("empty modifier")
	}

	if id, value, ok := strings.Cut(text, "="); ok && statIDPattern.MatchString(strings.TrimSpace(id)) {
		mod := core.Modifier{ID: strings.TrimSpace(id), Text: strings.TrimSpace(id), Enabled: true}
		if strings.TrimSpace(value) != "" {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return core.Modifier{}, fmt.Errorf("modifier %q: value must be a number", raw)
			}
			mod.Value = &parsed
		}
		return mod, nil
	}
	if statIDPattern.MatchString(text) {
		return core.Modifier{ID: text, Text: text, Enabled: true}, nil
	}

	mod := core.Modifier{Text: text, Enabled: true}
	if match := numberPattern.FindString(text); match != "" {
		if parsed, err := strconv.ParseFloat(match, 64); err == nil {
			mod.Value = &parsed
		}
	}
	return mod, nil
}
