// Package merge combines every result file of one (version, model) bucket
// into a canonical merged artifact via the external engine, optionally
// refining it by the most recent firmware revision.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/engine"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/logging"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/resultdb"
)

const (
	// MergedFileName is the fixed per-bucket output. Merges are always
	// recomputed in full and overwrite it, so the artifact reflects the
	// bucket's current contents.
	MergedFileName         = "merged-results.json.gz"
	firmwareMergedFileName = "merged-results-fwrev.json.gz"

	// A firmware-scoped merge is published only when it is big enough to
	// mean something and differs from the generic merge by at least one
	// data point. Anything else is noise.
	minFirmwareDataPoints = 4
	minFirmwareDivergence = 1
)

// Artifact is the canonical merged result of one bucket.
type Artifact struct {
	Version    string
	Model      string
	Path       string
	DataPoints int
}

// FirmwareArtifact is an Artifact restricted to the bucket's most recent
// firmware revision. It exists only when it passed the divergence test.
type FirmwareArtifact struct {
	Artifact
	Firmware string
}

// Orchestrator runs bucket merges against the engine.
type Orchestrator struct {
	Store  *resultdb.Store
	Engine engine.Runner
}

func NewOrchestrator(store *resultdb.Store, eng engine.Runner) *Orchestrator {
	return &Orchestrator{Store: store, Engine: eng}
}

// Merge re-merges a whole bucket. Engine failures are fatal: a corrupt input
// must block publication rather than silently drop data. The returned
// FirmwareArtifact is nil when no firmware refinement survived.
func (o *Orchestrator) Merge(ctx context.Context, versionBucket, model string) (*Artifact, *FirmwareArtifact, error) {
	log := logging.New("merge")

	files, err := o.Store.Results(versionBucket, model)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("merge: bucket %s/%s has no result files", versionBucket, model)
	}

	outPath := filepath.Join(o.Store.BucketPath(versionBucket, model), MergedFileName)
	if err := o.runMerge(ctx, versionBucket, outPath, files); err != nil {
		return nil, nil, err
	}

	dataPoints, err := ReadDataPoints(outPath)
	if err != nil {
		return nil, nil, err
	}
	log.Info("bucket merged", "version", versionBucket, "model", model,
		"files", len(files), "data_points", dataPoints)

	artifact := &Artifact{
		Version:    versionBucket,
		Model:      model,
		Path:       outPath,
		DataPoints: dataPoints,
	}

	fw, err := o.refineByFirmware(ctx, artifact, files)
	if err != nil {
		return nil, nil, err
	}
	return artifact, fw, nil
}

func (o *Orchestrator) runMerge(ctx context.Context, versionBucket, outPath string, files []string) error {
	args := append([]string{"--result", outPath, "merge"}, files...)
	_, err := o.Engine.Run(ctx, versionBucket, args...)
	return err
}

// refineByFirmware re-merges the subset of files sharing the most recent
// firmware revision. Revisions are compared as opaque strings: vendors do
// not version firmware semantically, and the published database depends on
// this ordering staying as it is.
func (o *Orchestrator) refineByFirmware(ctx context.Context, base *Artifact, files []string) (*FirmwareArtifact, error) {
	log := logging.New("merge")

	byFirmware := make(map[string][]string)
	for _, file := range files {
		meta, err := o.Store.ReadSidecar(file)
		if err != nil {
			// Sidecars predate some of the database; fall back to the
			// file itself.
			meta, err = resultdb.ExtractFile(file)
			if err != nil {
				return nil, err
			}
		}
		if meta.Firmware == "" {
			continue
		}
		byFirmware[meta.Firmware] = append(byFirmware[meta.Firmware], file)
	}
	if len(byFirmware) == 0 {
		return nil, nil
	}

	var latest string
	for rev := range byFirmware {
		if rev > latest {
			latest = rev
		}
	}

	outPath := filepath.Join(filepath.Dir(base.Path), firmwareMergedFileName)
	if err := o.runMerge(ctx, base.Version, outPath, byFirmware[latest]); err != nil {
		return nil, err
	}

	dataPoints, err := ReadDataPoints(outPath)
	if err != nil {
		return nil, err
	}

	divergence := dataPoints - base.DataPoints
	if divergence < 0 {
		divergence = -divergence
	}
	if dataPoints < minFirmwareDataPoints || divergence < minFirmwareDivergence {
		log.Info("firmware merge discarded", "model", base.Model, "firmware", latest,
			"data_points", dataPoints, "divergence", divergence)
		if err := os.Remove(outPath); err != nil {
			return nil, fmt.Errorf("merge: discard firmware artifact: %w", err)
		}
		return nil, nil
	}

	log.Info("firmware merge kept", "model", base.Model, "firmware", latest,
		"data_points", dataPoints)
	return &FirmwareArtifact{
		Artifact: Artifact{
			Version:    base.Version,
			Model:      base.Model,
			Path:       outPath,
			DataPoints: dataPoints,
		},
		Firmware: latest,
	}, nil
}

// mergedPayload is the slice of the merged JSON this layer reads: the
// primary-metric (MOF) sample and outlier arrays.
type mergedPayload struct {
	IocostTune struct {
		Mof struct {
			Data     []json.RawMessage `json:"data"`
			Outliers []json.RawMessage `json:"outliers"`
		} `json:"mof"`
	} `json:"iocost_tune"`
}

// ReadDataPoints reads the data-point count back from a merged artifact:
// primary-metric samples plus outliers.
func ReadDataPoints(path string) (int, error) {
	var payload []mergedPayload
	if err := resultdb.DecodeFile(path, &payload); err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("merge: merged file %q holds an empty result array", path)
	}
	mof := payload[0].IocostTune.Mof
	return len(mof.Data) + len(mof.Outliers), nil
}
