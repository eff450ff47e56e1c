// Package config loads the vaultd process configuration from a YAML
// file, the way the teacher's `warren apply` subcommand reads resource
// manifests via gopkg.in/yaml.v3 (cmd/warren/apply.go). This is
// distinct from the engine's own one-time init_config operation (spec.md
// §4.9), which writes the GlobalConfig cell inside the region store:
// File only configures the host process that runs the engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the process-level configuration loaded at startup.
type File struct {
	DataDir string `yaml:"dataDir"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	RateLimit struct {
		BucketSize       int           `yaml:"bucketSize"`
		RefillPerSecond  float64       `yaml:"refillPerSecond"`
		IdleEvictAfter   time.Duration `yaml:"idleEvictAfter"`
	} `yaml:"rateLimit"`

	Audit struct {
		CapEntries int `yaml:"capEntries"`
		KeepLastN  int `yaml:"keepLastN"`
	} `yaml:"audit"`

	Metrics struct {
		ListenAddr      string        `yaml:"listenAddr"`
		PollInterval    time.Duration `yaml:"pollInterval"`
	} `yaml:"metrics"`
}

// Default returns a File populated with SPEC_FULL.md's documented
// defaults.
func Default() File {
	var f File
	f.DataDir = "./data/vault.db"
	f.Log.Level = "info"
	f.Log.JSON = true
	f.RateLimit.BucketSize = 20
	f.RateLimit.RefillPerSecond = 1
	f.RateLimit.IdleEvictAfter = 10 * time.Minute
	f.Audit.CapEntries = 500
	f.Audit.KeepLastN = 200
	f.Metrics.ListenAddr = ":9090"
	f.Metrics.PollInterval = 15 * time.Second
	return f
}

// Load reads and parses a YAML config file, filling in any field left
// zero-valued with Default()'s value.
func Load(path string) (File, error) {
	f := Default()
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}
