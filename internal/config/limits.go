package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelLimits carries per-model context ceilings in tokens. Prompts
// estimated above the ceiling fail the turn before the provider is called.
type ModelLimits struct {
	// Default applies to models not listed in Ceilings.
	Default int `yaml:"default"`

	// Ceilings maps model names to their context limits.
	Ceilings map[string]int `yaml:"ceilings"`
}

// DefaultModelLimits are the compiled-in ceilings used when no limits
// file is configured.
func DefaultModelLimits() *ModelLimits {
	return &ModelLimits{
		Default: 128_000,
		Ceilings: map[string]int{
			"gpt-4o":      128_000,
			"gpt-4o-mini": 128_000,
			"gpt-4.1":     1_000_000,
			"o3-mini":     200_000,
		},
	}
}

// LoadModelLimits reads ceilings from a YAML file, falling back to the
// compiled-in defaults when path is empty.
func LoadModelLimits(path string) (*ModelLimits, error) {
	if path == "" {
		return DefaultModelLimits(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model limits: %w", err)
	}

	limits := DefaultModelLimits()
	if err := yaml.Unmarshal(data, limits); err != nil {
		return nil, fmt.Errorf("parse model limits: %w", err)
	}
	return limits, nil
}

// CeilingFor returns the ceiling for a model.
func (l *ModelLimits) CeilingFor(model string) int {
	if c, ok := l.Ceilings[model]; ok {
		return c
	}
	return l.Default
}
