package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/config"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/engine"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/resultdb"
)

var validateCmd = &cobra.Command{
	Use:   "validate <files...>",
	Short: "Dry-run validate local result files against the engine",
	Long: `Validate checks result files the way the import pipeline would: each
file is parsed for metadata and merged in isolation against a throwaway
output path. Nothing is stored. Useful before attaching files to an issue.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromPath(rootFlags.config)
	if err != nil {
		return err
	}
	eng := &engine.Exec{Dir: cfg.EngineDir}

	scratch, err := os.MkdirTemp("", "iocost-validate-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	failures := 0
	for _, path := range args {
		meta, err := resultdb.ExtractFile(path)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
			failures++
			continue
		}

		out := filepath.Join(scratch, "merged.json.gz")
		if _, err := eng.Run(cmd.Context(), meta.VersionBucket, "--result", out, "merge", path); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
			failures++
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "OK   %s: version %s, model %s\n",
			path, meta.BenchVersion, meta.Model)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d files failed validation", failures, len(args))
	}
	return nil
}
