package config_test

import (
	"os"
	"testing"

	"github.com/quadgate/fabric/pkg/config"
)

func TestLoadFabricSettingsAppliesEnvOverride(t *testing.T) {
	yamlContent := `
name: "file-fabric"
workers_count: 4
coop_blocking_threshold_in_ms: 10
external_blocking_threshold_in_ms: 1000
blocking_workers_threshold: 0.5
`
	tmpFile := "fabric_settings_test.yaml"
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	defer os.Remove(tmpFile)

	os.Setenv("FABRIC_WORKERSCOUNT", "16")
	defer os.Unsetenv("FABRIC_WORKERSCOUNT")

	settings, err := config.LoadFabricSettings(tmpFile)
	if err != nil {
		t.Fatalf("LoadFabricSettings() error = %v", err)
	}
	if settings.WorkersCount != 16 {
		t.Fatalf("WorkersCount = %d, want 16 (env override)", settings.WorkersCount)
	}
	if settings.Name != "file-fabric" {
		t.Fatalf("Name = %q, want file-fabric (no env override)", settings.Name)
	}
	if err := settings.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
