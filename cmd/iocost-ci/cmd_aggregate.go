package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/artifact"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/config"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/engine"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/hwdbgen"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/ingest"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/logging"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/merge"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/resultdb"
)

var aggregateFlags struct {
	commit string
	output string
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Re-merge the whole database and emit the consolidated hwdb file",
	Long: `Aggregate re-merges every (version, model) bucket in the database in
parallel, regenerates PDFs and hwdb snippets, and writes one consolidated
hardware-database file with the best snippet per device model.

A snippet can be pinned per model with an OVERRIDE_BEST_<MODEL> environment
variable (non-alphanumeric characters in the model replaced by underscores)
naming the preferred snippet file, e.g.:

  OVERRIDE_BEST_HFS256GD9TNG_62A0A=iocost-tune-2.2-HFS256GD9TNG-62A0A-2022-09-19.hwdb`,
	RunE: runAggregate,
}

func init() {
	f := aggregateCmd.Flags()
	f.StringVar(&aggregateFlags.commit, "commit", "", "Source commit id for the header (default: sha from $GITHUB_CONTEXT)")
	f.StringVar(&aggregateFlags.output, "output", "", "Output path (default: hwdb_output from config)")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	log := logging.New("aggregate")

	cfg, err := config.LoadFromPath(rootFlags.config)
	if err != nil {
		return err
	}

	commit := aggregateFlags.commit
	if commit == "" {
		if raw := os.Getenv("GITHUB_CONTEXT"); raw != "" {
			ectx, err := ingest.ParseContext([]byte(raw))
			if err != nil {
				return err
			}
			commit = ectx.SHA
		}
	}
	if commit == "" {
		return fmt.Errorf("source commit id is required: pass --commit or set GITHUB_CONTEXT")
	}

	store, err := resultdb.NewStore(cfg.DatabaseDir)
	if err != nil {
		return err
	}
	eng := &engine.Exec{Dir: cfg.EngineDir}

	aggregator := &hwdbgen.Aggregator{
		Store:        store,
		Merger:       merge.NewOrchestrator(store, eng),
		Generator:    artifact.NewGenerator(eng),
		HwdbInputDir: cfg.HwdbInputDir,
		PDFDir:       cfg.PDFDir,
		Workers:      cfg.WorkerCount(),
	}

	contents, err := aggregator.Aggregate(cmd.Context(), commit, overridesFromEnv(os.Environ()), time.Now())
	if err != nil {
		return err
	}

	output := aggregateFlags.output
	if output == "" {
		output = cfg.HwdbOutput
	}
	if err := os.WriteFile(output, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write %q: %w", output, err)
	}
	log.Info("hwdb file written", "path", output, "commit", commit)
	return nil
}

// overridesFromEnv picks the OVERRIDE_BEST_* variables out of the
// environment.
func overridesFromEnv(environ []string) map[string]string {
	overrides := make(map[string]string)
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if ok && strings.HasPrefix(key, "OVERRIDE_BEST_") {
			overrides[key] = value
		}
	}
	return overrides
}
