// Package hwdbgen re-merges the whole result database and assembles the
// consolidated hardware-database file, selecting one best snippet per device
// model across all engine version buckets.
package hwdbgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/artifact"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/logging"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/merge"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/resultdb"
)

// excludedVersion predates hwdb output and never yields candidates.
const excludedVersion = "2.1"

// Alternative is one (bucket, snippet) candidate for a model.
type Alternative struct {
	Version    string
	DataPoints int
	Filename   string
}

// Aggregator fans bucket processing out over a worker pool and performs the
// deterministic selection pass once every worker has finished.
type Aggregator struct {
	Store        *resultdb.Store
	Merger       *merge.Orchestrator
	Generator    *artifact.Generator
	HwdbInputDir string
	PDFDir       string
	Workers      int
}

// Aggregate rebuilds every bucket and returns the consolidated hwdb file
// contents. commit names the database revision the output was generated
// from. Overrides force-select a snippet filename per override key; naming a
// file that does not exist is fatal, misconfiguration must not silently fall
// back.
func (a *Aggregator) Aggregate(ctx context.Context, commit string, overrides map[string]string, when time.Time) (string, error) {
	log := logging.New("hwdbgen")

	buckets, err := a.Store.Buckets()
	if err != nil {
		return "", err
	}

	// Buckets are disjoint directories with disjoint outputs; the only
	// shared state is the alternatives map.
	var mu sync.Mutex
	alternatives := make(map[string][]Alternative)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())

	for _, bucket := range buckets {
		if bucket == excludedVersion {
			log.Info("ignoring version bucket without hwdb support", "version", bucket)
			continue
		}
		models, err := a.Store.Models(bucket)
		if err != nil {
			return "", err
		}
		for _, model := range models {
			bucket, model := bucket, model
			g.Go(func() error {
				m, fw, err := a.Merger.Merge(gctx, bucket, model)
				if err != nil {
					return err
				}
				if _, err := a.Generator.SavePDFIn(gctx, m, a.PDFDir, when); err != nil {
					return err
				}
				name, err := a.Generator.SaveHwdbIn(gctx, m, fw, a.HwdbInputDir, when)
				if err != nil {
					return err
				}
				if name == "" {
					return nil
				}
				mu.Lock()
				alternatives[model] = append(alternatives[model], Alternative{
					Version:    bucket,
					DataPoints: m.DataPoints,
					Filename:   name,
				})
				mu.Unlock()
				return nil
			})
		}
	}

	// Full barrier: the selection pass must see every alternative or the
	// output would vary run to run.
	if err := g.Wait(); err != nil {
		return "", err
	}

	return a.assemble(alternatives, commit, overrides, when)
}

func (a *Aggregator) assemble(alternatives map[string][]Alternative, commit string, overrides map[string]string, when time.Time) (string, error) {
	log := logging.New("hwdbgen")

	models := make([]string, 0, len(alternatives))
	for model := range alternatives {
		models = append(models, model)
	}
	sort.Strings(models)

	var b strings.Builder
	fmt.Fprintf(&b, "# This file is auto-generated on %s.\n", when.UTC().Format(time.RFC1123Z))
	b.WriteString("# From the following commit:\n")
	fmt.Fprintf(&b, "# https://github.com/iocost-benchmark/iocost-benchmarks/commit/%s\n", commit)
	b.WriteString("#\n")
	b.WriteString("# Match key format:\n")
	b.WriteString("# block:<devpath>:name:<model name>:fwrev:<firmware revision>:\n")
	b.WriteString("\n")

	for _, model := range models {
		best, err := a.selectBest(model, alternatives[model], overrides, log)
		if err != nil {
			return "", err
		}
		contents, err := os.ReadFile(filepath.Join(a.HwdbInputDir, best))
		if err != nil {
			return "", fmt.Errorf("hwdbgen: read selected snippet: %w", err)
		}
		b.Write(contents)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func (a *Aggregator) selectBest(model string, alts []Alternative, overrides map[string]string, log *slog.Logger) (string, error) {
	if override, ok := overrides[OverrideKey(model)]; ok {
		if _, err := os.Stat(filepath.Join(a.HwdbInputDir, override)); err != nil {
			return "", fmt.Errorf("hwdbgen: override for %s names missing file %q: %w", model, override, err)
		}
		log.Info("override selected", "model", model, "file", override)
		return override, nil
	}

	best := alts[0]
	for _, alt := range alts[1:] {
		if alt.DataPoints > best.DataPoints {
			best = alt
		}
	}
	log.Info("best alternative selected", "model", model,
		"data_points", best.DataPoints, "file", best.Filename)
	return best.Filename, nil
}

func (a *Aggregator) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return 1
}

// OverrideKey maps a model name to its override variable name, with each
// non-alphanumeric character replaced by an underscore:
// OVERRIDE_BEST_HFS256GD9TNG_62A0A for model HFS256GD9TNG-62A0A.
func OverrideKey(model string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, model)
	return "OVERRIDE_BEST_" + sanitized
}
