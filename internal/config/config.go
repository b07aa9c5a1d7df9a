// Package config loads the pipeline configuration file. Every field has a
// working default so the binary runs inside the benchmarks repository with no
// config at all; CI jobs override paths through the file or flags.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds the on-disk layout and collaborator settings for the pipeline.
type Config struct {
	// EngineDir is the directory holding the versioned engine trees,
	// one resctl-demo-v<version>/resctl-bench binary per version bucket.
	EngineDir string `yaml:"engine_dir"`

	// DatabaseDir is the root of the persisted result database
	// (database/<version>/<model>/result-<hash>.json.gz).
	DatabaseDir string `yaml:"database_dir"`

	// HwdbInputDir collects per-bucket hwdb snippets during aggregation.
	HwdbInputDir string `yaml:"hwdb_input_dir"`

	// PDFDir collects per-bucket PDFs during aggregation.
	PDFDir string `yaml:"pdf_dir"`

	// HwdbOutput is the consolidated hardware-database file written by
	// the aggregate subcommand.
	HwdbOutput string `yaml:"hwdb_output"`

	// Repository is the issue-tracker repository name failure comments are
	// posted to. The owner comes from the event payload.
	Repository string `yaml:"repository"`

	// Workers bounds the aggregation worker pool. Zero means one worker
	// per CPU core.
	Workers int `yaml:"workers"`
}

// Default returns the configuration used by the production CI jobs.
func Default() Config {
	return Config{
		EngineDir:    ".",
		DatabaseDir:  "database",
		HwdbInputDir: "hwdb-inputs",
		PDFDir:       "pdfs",
		HwdbOutput:   "90-iocost-tune.hwdb",
		Repository:   "iocost-benchmarks",
	}
}

// LoadFromPath reads a config file and returns the parsed Config merged over
// the defaults. A missing file is not an error; it yields the defaults.
func LoadFromPath(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Load(data)
}

// Load parses config YAML bytes merged over the defaults.
func Load(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	return cfg, nil
}

// WorkerCount resolves Workers to a concrete pool size.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
