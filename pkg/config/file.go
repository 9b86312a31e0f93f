package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override file configuration.
// Double underscores separate key segments:
// AISLE__CONSENSUS__HEARTBEAT_INTERVAL overrides "consensus.heartbeat_interval".
const EnvPrefix = "AISLE__"

// LoadFile reads a YAML file and merges its flattened keys into the config.
// Nested mappings become dotted keys; scalar sequences become comma-joined
// strings. Environment overrides are applied last.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	flat := make(map[string]string)
	flatten("", raw, flat)
	c.Update(flat)
	c.applyEnvOverrides()
	return nil
}

// ApplyEnvOverrides merges AISLE__* environment variables into the config.
// Useful when no config file is present.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

func (c *Config) applyEnvOverrides() {
	overrides := make(map[string]string)
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, EnvPrefix) {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(env, EnvPrefix), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(kv[0], "__", "."))
		overrides[key] = kv[1]
	}
	if len(overrides) > 0 {
		c.Update(overrides)
	}
}

func flatten(prefix string, value interface{}, out map[string]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprintf("%v", v)
	}
}
