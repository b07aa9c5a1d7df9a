// Package artifact derives the published outputs of a merged bucket: the
// formatted summary, a PDF, and, where the engine release supports them,
// hwdb snippets and a high-level summary.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/engine"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/logging"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/merge"
)

// Outputs of one bucket. HwdbSnippet and HighLevel stay empty when the
// bucket's engine release predates those modes; that is not a failure.
type Outputs struct {
	SummaryText string
	SummaryPath string
	PDFPath     string
	HwdbPath    string
	HwdbSnippet string
	HighLevel   string
}

// Generator drives the engine's format modes.
type Generator struct {
	Engine engine.Runner
}

func NewGenerator(eng engine.Runner) *Generator {
	return &Generator{Engine: eng}
}

// Generate produces all supported outputs for a merged bucket, written next
// to the merged artifact. A surviving firmware refinement contributes its
// own hwdb snippet, appended after the generic one.
func (g *Generator) Generate(ctx context.Context, m *merge.Artifact, fw *merge.FirmwareArtifact) (*Outputs, error) {
	log := logging.New("artifact")

	caps, err := g.capabilities(ctx, m.Version)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(m.Path)
	out := &Outputs{}

	out.SummaryText, err = g.format(ctx, m.Version, m.Path, "iocost-tune")
	if err != nil {
		return nil, err
	}
	out.SummaryPath = filepath.Join(dir, m.Model+".txt")
	if err := os.WriteFile(out.SummaryPath, []byte(out.SummaryText), 0o644); err != nil {
		return nil, fmt.Errorf("artifact: write summary: %w", err)
	}

	out.PDFPath = filepath.Join(dir, m.Model+".pdf")
	if _, err := g.format(ctx, m.Version, m.Path, "iocost-tune:pdf="+out.PDFPath); err != nil {
		return nil, err
	}

	if caps.Hwdb() {
		snippet, err := g.format(ctx, m.Version, m.Path, "iocost-tune:hwdb")
		if err != nil {
			return nil, err
		}
		out.HwdbSnippet = snippet
		if fw != nil {
			fwSnippet, err := g.format(ctx, fw.Version, fw.Path, "iocost-tune:hwdb-fwrev")
			if err != nil {
				return nil, err
			}
			snippet += fwSnippet
		}
		out.HwdbPath = filepath.Join(dir, m.Model+".hwdb")
		if err := os.WriteFile(out.HwdbPath, []byte(snippet), 0o644); err != nil {
			return nil, fmt.Errorf("artifact: write hwdb: %w", err)
		}
	} else {
		log.Info("engine predates hwdb output, skipping", "version", m.Version, "model", m.Model)
	}

	if caps.HighLevel() {
		out.HighLevel, err = g.format(ctx, m.Version, m.Path, "iocost-tune:high-level")
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// SavePDFIn writes the bucket's PDF under dir with a descriptive filename,
// creating dir if needed. Used both for the per-issue PDF drops and the
// aggregation pass.
func (g *Generator) SavePDFIn(ctx context.Context, m *merge.Artifact, dir string, when time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create %q: %w", dir, err)
	}
	path := filepath.Join(dir, DescriptiveFilename(m.Version, m.Model, "pdf", when))
	if _, err := g.format(ctx, m.Version, m.Path, "iocost-tune:pdf="+path); err != nil {
		return "", err
	}
	return path, nil
}

// SaveHwdbIn writes the bucket's hwdb snippet (generic, plus firmware-scoped
// when present) under dir with a descriptive filename and returns that
// filename. Returns "" without error when the engine release has no hwdb
// support.
func (g *Generator) SaveHwdbIn(ctx context.Context, m *merge.Artifact, fw *merge.FirmwareArtifact, dir string, when time.Time) (string, error) {
	caps, err := g.capabilities(ctx, m.Version)
	if err != nil {
		return "", err
	}
	if !caps.Hwdb() {
		return "", nil
	}

	snippet, err := g.format(ctx, m.Version, m.Path, "iocost-tune:hwdb")
	if err != nil {
		return "", err
	}
	if fw != nil {
		fwSnippet, err := g.format(ctx, fw.Version, fw.Path, "iocost-tune:hwdb-fwrev")
		if err != nil {
			return "", err
		}
		snippet += fwSnippet
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create %q: %w", dir, err)
	}
	name := DescriptiveFilename(m.Version, m.Model, "hwdb", when)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(snippet), 0o644); err != nil {
		return "", fmt.Errorf("artifact: write %q: %w", name, err)
	}
	return name, nil
}

func (g *Generator) capabilities(ctx context.Context, versionBucket string) (engine.Capabilities, error) {
	full, err := g.Engine.Version(ctx, versionBucket)
	if err != nil {
		return engine.Capabilities{}, err
	}
	return engine.CapabilitiesFor(full), nil
}

func (g *Generator) format(ctx context.Context, versionBucket, resultPath, mode string) (string, error) {
	return g.Engine.Run(ctx, versionBucket, "--result", resultPath, "format", mode)
}

// DescriptiveFilename names standalone artifacts after their bucket and
// generation date, e.g. iocost-tune-2.2-Foo_Bar-2026-08-31.hwdb.
func DescriptiveFilename(version, model, ext string, when time.Time) string {
	return fmt.Sprintf("iocost-tune-%s-%s-%s.%s", version, model, when.UTC().Format("2006-01-02"), ext)
}
