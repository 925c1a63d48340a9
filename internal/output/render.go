package output

import (
	"encoding/json"
	"fmt"
	"strings"

	utiljson "k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/yaml"
)

// Format is the serialization of a processed resource.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Options control Process.
type Options struct {
	Mode    Mode
	Summary bool
	Format  Format
}

// Decode parses a kubectl JSON document. Whole numbers decode as int64.
func Decode(data []byte) (map[string]any, error) {
	var obj map[string]any
	if err := utiljson.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decode resource: document is not an object")
	}
	return obj, nil
}

// Render serializes v as indented JSON or YAML.
func Render(v any, format Format) (string, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("render yaml: %w", err)
		}
		return strings.TrimSpace(string(out)), nil
	case FormatJSON, "":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("render json: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported render format %q", format)
	}
}

// Process decodes raw kubectl JSON, summarizes or reduces it and renders the result.
func Process(raw string, opts Options) (string, error) {
	obj, err := Decode([]byte(raw))
	if err != nil {
		return "", err
	}
	var result map[string]any
	if opts.Summary {
		result = Summarize(obj)
	} else {
		result = Reduce(obj, opts.Mode)
	}
	return Render(result, opts.Format)
}
