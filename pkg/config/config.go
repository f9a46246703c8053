// Package config provides configuration loading and management for dwicompare.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dwicompare/pkg/compare"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Comparison tolerances
	Tolerances struct {
		// Coordinate is the absolute tolerance for spacing, origin and direction
		Coordinate float64 `yaml:"coordinate"`

		// BValueRelative is the accepted relative b-value difference
		BValueRelative float64 `yaml:"bValueRelative"`

		// GradientDegrees is the colinearity tolerance for gradient directions
		GradientDegrees float64 `yaml:"gradientDegrees"`
	} `yaml:"tolerances"`

	// Output parameters
	Output struct {
		// Verbose prints progress and pixel statistics
		Verbose bool `yaml:"verbose"`

		// DiffDir receives difference slices when set
		DiffDir string `yaml:"diffDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	tol := compare.DefaultTolerances()
	cfg.Tolerances.Coordinate = tol.Coordinate
	cfg.Tolerances.BValueRelative = tol.BValueRelative
	cfg.Tolerances.GradientDegrees = tol.GradientDegrees

	cfg.Output.Verbose = false
	cfg.Output.DiffDir = ""

	return cfg
}

// CompareTolerances converts the tolerance section for the comparators
func (c *Config) CompareTolerances() compare.Tolerances {
	return compare.Tolerances{
		Coordinate:      c.Tolerances.Coordinate,
		BValueRelative:  c.Tolerances.BValueRelative,
		GradientDegrees: c.Tolerances.GradientDegrees,
	}
}

// Validate rejects negative tolerances
func (c *Config) Validate() error {
	if c.Tolerances.Coordinate < 0 {
		return fmt.Errorf("coordinate tolerance must be non-negative, got %g", c.Tolerances.Coordinate)
	}
	if c.Tolerances.BValueRelative < 0 {
		return fmt.Errorf("b-value tolerance must be non-negative, got %g", c.Tolerances.BValueRelative)
	}
	if c.Tolerances.GradientDegrees < 0 || c.Tolerances.GradientDegrees > 90 {
		return fmt.Errorf("gradient tolerance must be within [0, 90] degrees, got %g", c.Tolerances.GradientDegrees)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
