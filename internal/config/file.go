package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. An empty path means
// ".env", which may be absent.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadYAMLFile reads a flat YAML mapping of environment variable names to
// values and exports the ones not already set, e.g.
//
//	BOT_PLATFORM: discord
//	OTEL_ENABLED: true
func LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	values, err := parseYAMLValues(data)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	for key, value := range values {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to export %s: %w", key, err)
		}
	}
	return nil
}

func parseYAMLValues(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		name := strings.ToUpper(strings.TrimSpace(key))
		if name == "" {
			return nil, fmt.Errorf("empty key")
		}
		switch v := value.(type) {
		case nil:
			values[name] = ""
		case map[string]any, []any:
			return nil, fmt.Errorf("key %s: nested values are not supported", name)
		default:
			values[name] = fmt.Sprint(v)
		}
	}
	return values, nil
}
