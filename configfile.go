package tiercache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a configuration file. The format is chosen
// by extension: .toml parses as TOML, anything else as YAML. Environment
// variables in the format ${VAR_NAME} are expanded before parsing.
//
// Parsing starts from DefaultConfig, so a partial file only overrides the
// fields it names. Call Validate on the result before use.
func LoadConfig(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(content, filepath.Ext(path))
}

// ParseConfig parses raw configuration bytes in the format implied by ext
// (".toml" for TOML, anything else for YAML).
func ParseConfig(content []byte, ext string) (Config, error) {
	expanded := os.ExpandEnv(string(content))

	cfg := DefaultConfig()
	if strings.EqualFold(ext, ".toml") {
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}
