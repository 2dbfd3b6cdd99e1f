package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/remerge/internal/schema"
)

// LoadSchemaFile reads and parses a native schema document. Files may be
// JSON (the canonical schema format) or YAML; YAML documents are converted
// to JSON before parsing so the stored schema text is always JSON.
func LoadSchemaFile(path string) (*schema.RecordSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	text := string(data)
	if !json.Valid(data) {
		text, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: %w", path, err)
		}
	}
	return schema.Parse(text)
}

func yamlToJSON(data []byte) (string, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("not valid JSON or YAML: %w", err)
	}
	out, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return "", fmt.Errorf("convert to JSON: %w", err)
	}
	return string(out), nil
}

// normalizeYAML rewrites map[any]any keys (which yaml can produce for
// non-string keys) so the document marshals as JSON.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	}
	return v
}
