package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document used to pre-populate the ai_config table:
//
//	settings:
//	  system_prompt: "You are a helpful assistant."
//	  deepseek_model: deepseek-chat
//	  temperature: "0.7"
type Seed struct {
	Settings map[string]string `yaml:"settings"`
}

// LoadSeed reads a settings seed file. An empty path yields an empty Seed.
func LoadSeed(path string) (Seed, error) {
	if path == "" {
		return Seed{}, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Seed{}, fmt.Errorf("config: settings file %q does not exist", path)
	}
	if err != nil {
		return Seed{}, fmt.Errorf("config: read settings file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("config: parse settings file %q: %w", path, err)
	}
	if seed.Settings == nil {
		seed.Settings = map[string]string{}
	}
	return seed, nil
}
