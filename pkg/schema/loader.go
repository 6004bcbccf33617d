package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON decodes and validates a JSON schema document: either a bare
// field array or an object with a "fields" key.
func ParseJSON(data []byte) ([]Field, error) {
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		var doc struct {
			Fields []Field `json:"fields"`
		}
		if docErr := json.Unmarshal(data, &doc); docErr != nil || doc.Fields == nil {
			return nil, fmt.Errorf("schema: parse json: %w", err)
		}
		fields = doc.Fields
	}
	if err := Validate(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ParseYAML decodes and validates a YAML schema document with the same
// shapes ParseJSON accepts.
func ParseYAML(data []byte) ([]Field, error) {
	var fields []Field
	if err := yaml.Unmarshal(data, &fields); err != nil {
		var doc struct {
			Fields []Field `yaml:"fields"`
		}
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil || doc.Fields == nil {
			return nil, fmt.Errorf("schema: parse yaml: %w", err)
		}
		fields = doc.Fields
	}
	normalizeYAMLOptions(fields)
	if err := Validate(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// LoadFile reads a schema from disk, dispatching on extension. ".yaml" and
// ".yml" select the YAML parser, everything else is treated as JSON.
func LoadFile(path string) ([]Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// yaml.v3 decodes mappings inside `any` as map[string]any already, but
// nested option lists may come back as []any of map[string]any with
// interface keys under some shapes; normalise so option key resolution only
// ever sees map[string]any.
func normalizeYAMLOptions(fields []Field) {
	for i := range fields {
		fields[i].Options = normalizeYAMLValue(fields[i].Options)
	}
}

func normalizeYAMLValue(value any) any {
	switch v := value.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			out[fmt.Sprint(key)] = normalizeYAMLValue(inner)
		}
		return out
	case map[string]any:
		for key, inner := range v {
			v[key] = normalizeYAMLValue(inner)
		}
		return v
	case []any:
		for i, inner := range v {
			v[i] = normalizeYAMLValue(inner)
		}
		return v
	default:
		return value
	}
}
