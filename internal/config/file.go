package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a config file encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the format from a file extension. Unknown extensions
// are treated as YAML.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	}
	return FormatYAML
}

// Document is a decoded config file.
type Document struct {
	Root map[string]any
	// Services lists service names in declaration order.
	Services []string
}

// LoadFile reads and decodes path.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read config file: %w", err)
	}
	doc, err := Parse(data, FormatOf(path))
	if err != nil {
		return Document{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes data. The "services" section may be a map keyed by name
// or a list of tables each carrying a "name" key.
func Parse(data []byte, format Format) (Document, error) {
	root := map[string]any{}
	var order []string

	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &root); err != nil {
			return Document{}, err
		}
	default:
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return Document{}, err
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := node.Decode(&root); err != nil {
				return Document{}, err
			}
			order = yamlServiceOrder(&node)
		}
	}

	root, _ = normalize(root).(map[string]any)
	if root == nil {
		root = map[string]any{}
	}

	services, listOrder, err := canonicalServices(root[ServicesKey])
	if err != nil {
		return Document{}, err
	}
	if listOrder != nil {
		order = listOrder
	}
	if services != nil {
		root[ServicesKey] = services
	}

	return Document{Root: root, Services: completeOrder(order, services)}, nil
}

func canonicalServices(raw any) (map[string]any, []string, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil, nil
	case map[string]any:
		for name, v := range t {
			if v == nil {
				t[name] = map[string]any{}
			}
		}
		return t, nil, nil
	case []any:
		out := make(map[string]any, len(t))
		order := make([]string, 0, len(t))
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, nil, fmt.Errorf("services[%d]: expected a table", i)
			}
			name := strings.TrimSpace(ToString(m["name"]))
			if name == "" {
				return nil, nil, fmt.Errorf("services[%d]: missing name", i)
			}
			if _, dup := out[name]; dup {
				return nil, nil, fmt.Errorf("services[%d]: duplicate service %q", i, name)
			}
			delete(m, "name")
			out[name] = m
			order = append(order, name)
		}
		return out, order, nil
	}
	return nil, nil, fmt.Errorf("services: unsupported value %T", raw)
}

func yamlServiceOrder(doc *yaml.Node) []string {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	top := doc.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != ServicesKey {
			continue
		}
		svc := top.Content[i+1]
		if svc.Kind != yaml.MappingNode {
			return nil
		}
		order := make([]string, 0, len(svc.Content)/2)
		for j := 0; j+1 < len(svc.Content); j += 2 {
			order = append(order, svc.Content[j].Value)
		}
		return order
	}
	return nil
}

// completeOrder keeps order and appends undeclared names alphabetically.
func completeOrder(order []string, services map[string]any) []string {
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(services))
	for _, n := range order {
		if _, ok := services[n]; ok && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range sortedKeys(services) {
		if !seen[n] {
			out = append(out, n)
		}
	}
	return out
}
