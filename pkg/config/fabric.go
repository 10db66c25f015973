package config

import "fmt"

// FabricFile is the on-disk (YAML/JSON) shape of Fabric_Settings,
// loaded via LoadFabricSettings and then applied onto a
// fabric.Settings by the caller — kept independent of pkg/fabric so
// this package never imports it (pkg/fabric is free to import
// pkg/config instead, avoiding a cycle).
type FabricFile struct {
	Name                          string  `yaml:"name" json:"name"`
	WorkersCount                  int     `yaml:"workers_count" json:"workers_count"`
	PutAsideWorkerCount           int     `yaml:"put_aside_worker_count" json:"put_aside_worker_count"`
	CoopBlockingThresholdInMs     int64   `yaml:"coop_blocking_threshold_in_ms" json:"coop_blocking_threshold_in_ms"`
	ExternalBlockingThresholdInMs int64   `yaml:"external_blocking_threshold_in_ms" json:"external_blocking_threshold_in_ms"`
	BlockingWorkersThreshold      float64 `yaml:"blocking_workers_threshold" json:"blocking_workers_threshold"`
}

// LoadFabricSettings loads a FabricFile from path (YAML or JSON by
// extension, per Load) and applies FABRIC_*-prefixed environment
// variable overrides on top, per spec.md §6's Fabric_Settings fields.
func LoadFabricSettings(path string) (FabricFile, error) {
	var f FabricFile
	if err := LoadWithEnv(path, "FABRIC", &f); err != nil {
		return FabricFile{}, fmt.Errorf("config: load fabric settings: %w", err)
	}
	return f, nil
}

// Validate checks the loaded settings are usable before they're
// applied to fabric.New, via this package's generic Validator machinery.
func (f FabricFile) Validate() error {
	return Validate(f,
		RangeValidator("WorkersCount", 0, 1<<20),
		RangeValidator("BlockingWorkersThreshold", 0, 1),
	)
}
