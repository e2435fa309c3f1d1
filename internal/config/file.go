package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a flat YAML document whose keys are the same names accepted
// from the environment. List values are joined with commas.
func LoadFile(path string) (LookupFunc, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var document map[string]any
	if err := yaml.Unmarshal(content, &document); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	values := make(map[string]string, len(document))
	for key, value := range document {
		normalized := strings.ToUpper(strings.TrimSpace(key))
		if normalized == "" || value == nil {
			continue
		}
		switch typed := value.(type) {
		case map[string]any:
			return nil, fmt.Errorf("config file key %q: nested sections are not supported", key)
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			values[normalized] = strings.Join(parts, ",")
		default:
			values[normalized] = fmt.Sprint(typed)
		}
	}

	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}, nil
}

// Chain returns the first hit across lookups, in order.
func Chain(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}
