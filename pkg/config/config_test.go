package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadMissingConfig verifies that a missing file yields defaults
func TestLoadMissingConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	tol := cfg.CompareTolerances()
	if tol.Coordinate != 1e-3 || tol.BValueRelative != 0.5 || tol.GradientDegrees != 1 {
		t.Errorf("Unexpected default tolerances %+v", tol)
	}
}

// TestLoadPartialConfig verifies that unspecified keys keep their defaults
func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dwicompare.yaml")
	data := "tolerances:\n  gradientDegrees: 2.5\noutput:\n  verbose: true\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Tolerances.GradientDegrees != 2.5 {
		t.Errorf("Expected gradient tolerance 2.5, got %f", cfg.Tolerances.GradientDegrees)
	}
	if cfg.Tolerances.Coordinate != 1e-3 {
		t.Errorf("Expected default coordinate tolerance, got %f", cfg.Tolerances.Coordinate)
	}
	if !cfg.Output.Verbose {
		t.Error("Expected verbose output")
	}
}

// TestSaveAndLoad verifies a configuration survives a save/load cycle
func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dwicompare.yaml")
	cfg := DefaultConfig()
	cfg.Output.DiffDir = "diffs"
	cfg.Tolerances.BValueRelative = 0.1

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Output.DiffDir != "diffs" || loaded.Tolerances.BValueRelative != 0.1 {
		t.Errorf("Unexpected loaded config %+v", loaded)
	}
}

// TestInvalidConfig verifies that bad values are rejected
func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"negative.yaml": "tolerances:\n  coordinate: -1\n",
		"angle.yaml":    "tolerances:\n  gradientDegrees: 120\n",
		"syntax.yaml":   "tolerances: [\n",
	}
	for name, data := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
