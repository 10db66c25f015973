package config_test

import (
	"os"
	"testing"

	"github.com/quadgate/fabric/pkg/config"
)

func TestConfigWithEnvOverrides(t *testing.T) {
	yamlContent := `
name: "demo-fabric"
workerscount: 4
coopblockingthresholdinms: 10
`
	tmpFile := "test_config.yaml"
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile)

	os.Setenv("FABRIC_NAME", "env-fabric")
	os.Setenv("FABRIC_WORKERSCOUNT", "8")
	defer os.Unsetenv("FABRIC_NAME")
	defer os.Unsetenv("FABRIC_WORKERSCOUNT")

	type fileSettings struct {
		Name                      string  `yaml:"name"`
		WorkersCount              int     `yaml:"workerscount"`
		CoopBlockingThresholdInMs int64   `yaml:"coopblockingthresholdinms"`
		BlockingWorkersThreshold  float64 `yaml:"blockingworkersthreshold"`
	}

	var cfg fileSettings
	if err := config.LoadWithEnv(tmpFile, "FABRIC", &cfg); err != nil {
		t.Fatalf("LoadWithEnv failed: %v", err)
	}

	// Environment variables should override file values.
	if cfg.Name != "env-fabric" {
		t.Errorf("Name = %v, want env-fabric", cfg.Name)
	}
	if cfg.WorkersCount != 8 {
		t.Errorf("WorkersCount = %v, want 8", cfg.WorkersCount)
	}
	// CoopBlockingThresholdInMs has no env override set, so the file
	// value must survive.
	if cfg.CoopBlockingThresholdInMs != 10 {
		t.Errorf("CoopBlockingThresholdInMs = %v, want 10", cfg.CoopBlockingThresholdInMs)
	}
}
