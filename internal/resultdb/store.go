// Package resultdb persists raw benchmark result files in a content-addressed
// directory layout keyed by (engine version bucket, device model).
package resultdb

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	resultPrefix  = "result-"
	resultSuffix  = ".json.gz"
	sidecarSuffix = ".metadata.json"
)

// FileName derives the content-addressed name for a raw result file. The
// digest covers the raw (still compressed) bytes, so byte-identical
// submissions collapse to the same name no matter where they came from.
func FileName(data []byte) string {
	sum := blake3.Sum256(data)
	return resultPrefix + hex.EncodeToString(sum[:16]) + resultSuffix
}

// Store is the on-disk result database rooted at (typically) database/.
type Store struct {
	Root string
}

// NewStore creates a Store rooted at root, creating the directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("resultdb: create root: %w", err)
	}
	return &Store{Root: root}, nil
}

// BucketPath is the directory owning all results for a (version, model) key.
func (s *Store) BucketPath(versionBucket, model string) string {
	return filepath.Join(s.Root, versionBucket, model)
}

// Put writes a raw result file and its metadata sidecar into the bucket
// named by meta. Writing the same bytes twice yields the same path; the
// second write is a harmless overwrite.
func (s *Store) Put(data []byte, meta Metadata) (string, error) {
	dir := s.BucketPath(meta.VersionBucket, meta.Model)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("resultdb: create bucket %s/%s: %w", meta.VersionBucket, meta.Model, err)
	}

	path := filepath.Join(dir, FileName(data))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("resultdb: write %q: %w", path, err)
	}

	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("resultdb: marshal sidecar for %q: %w", path, err)
	}
	if err := os.WriteFile(SidecarPath(path), sidecar, 0o644); err != nil {
		return "", fmt.Errorf("resultdb: write sidecar for %q: %w", path, err)
	}

	return path, nil
}

// SidecarPath maps a stored result path to its metadata sidecar path.
func SidecarPath(resultPath string) string {
	return strings.TrimSuffix(resultPath, resultSuffix) + sidecarSuffix
}

// ReadSidecar loads the metadata sidecar written alongside a stored result.
func (s *Store) ReadSidecar(resultPath string) (Metadata, error) {
	data, err := os.ReadFile(SidecarPath(resultPath))
	if err != nil {
		return Metadata{}, fmt.Errorf("resultdb: read sidecar: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("resultdb: parse sidecar %q: %w", SidecarPath(resultPath), err)
	}
	return meta, nil
}

// Results lists every stored result file in a bucket, sorted by name.
// Merged artifacts and sidecars are not results and are skipped.
func (s *Store) Results(versionBucket, model string) ([]string, error) {
	dir := s.BucketPath(versionBucket, model)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("resultdb: list bucket %s/%s: %w", versionBucket, model, err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, resultPrefix) || !strings.HasSuffix(name, resultSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Buckets lists the version-bucket directories under the database root.
func (s *Store) Buckets() ([]string, error) {
	return s.subdirs(s.Root)
}

// Models lists the model directories inside one version bucket.
func (s *Store) Models(versionBucket string) ([]string, error) {
	return s.subdirs(filepath.Join(s.Root, versionBucket))
}

func (s *Store) subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("resultdb: list %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
