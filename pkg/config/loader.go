package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads the config file, selects pathSelector (e.g. "research"),
// expands environment variables, applies defaults, and validates.
func Load(path string, pathSelector string) (*ResearchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data, pathSelector)
}

// Parse decodes raw config bytes (JSON or YAML) the same way Load does.
func Parse(data []byte, pathSelector string) (*ResearchConfig, error) {
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	selected := interface{}(rawMap)
	if pathSelector != "" {
		for _, part := range strings.Split(pathSelector, ".") {
			m, ok := selected.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("config path %q not found", pathSelector)
			}
			selected, ok = m[part]
			if !ok {
				return nil, fmt.Errorf("config path %q not found", pathSelector)
			}
		}
	}

	expanded := expandEnvVars(selected)

	cfg := &ResearchConfig{}
	if err := decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault returns the loaded config, or defaults when the file does
// not exist. Parse errors in an existing file are still fatal.
func LoadOrDefault(path string, pathSelector string) (*ResearchConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &ResearchConfig{}
		cfg.SetDefaults()
		return cfg, nil
	}
	return Load(path, pathSelector)
}

func decode(input interface{}, out *ResearchConfig) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		// Embedded structs (SearcherConfig.AgentConfig) decode from the
		// parent level, so searcher.main_llm lands on the embedded field.
		Squash: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// expandEnvVars walks the raw config and substitutes ${VAR} and
// ${VAR:-default} references in string values.
func expandEnvVars(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return envVarPattern.ReplaceAllStringFunc(v, func(match string) string {
			groups := envVarPattern.FindStringSubmatch(match)
			if env, ok := os.LookupEnv(groups[1]); ok {
				return env
			}
			return groups[2]
		})
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = expandEnvVars(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = expandEnvVars(item)
		}
		return out
	default:
		return value
	}
}
