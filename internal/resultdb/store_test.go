package resultdb

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
)

// gzResult builds a gzipped result fixture with the fields this layer reads.
func gzResult(t *testing.T, version, model, fwrev string) []byte {
	t.Helper()
	payload := fmt.Sprintf(
		`[{"sysinfo":{"bench_version":%q,"sysreqs_report":{"scr_dev_model":%q,"scr_dev_fwrev":%q}}}]`,
		version, model, fwrev)
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(payload)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestFileName_Deterministic(t *testing.T) {
	data := []byte("raw result bytes")

	a := FileName(data)
	b := FileName(data)
	if a != b {
		t.Errorf("same bytes produced different names: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "result-") || !strings.HasSuffix(a, ".json.gz") {
		t.Errorf("unexpected name shape: %q", a)
	}

	if c := FileName([]byte("other bytes")); c == a {
		t.Errorf("different bytes produced the same name: %q", c)
	}
}

func TestPut_IdempotentDedup(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	data := gzResult(t, "2.2.3", "Foo Bar", "1B2QEXP7")
	meta, err := Extract(data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	first, err := store.Put(data, meta)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := store.Put(data, meta)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first != second {
		t.Errorf("byte-identical submissions stored at %q and %q", first, second)
	}

	results, err := store.Results("2.2", "Foo_Bar")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(Results) = %d, want 1 after duplicate Put", len(results))
	}
}

func TestPut_WritesSidecar(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	data := gzResult(t, "2.2.3", "Foo Bar", "1B2QEXP7")
	meta, err := Extract(data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	meta.SourceURL = "https://github.com/user/files/1/result.json.gz"
	meta.Issue = 42

	path, err := store.Put(data, meta)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.ReadSidecar(path)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if diff := cmp.Diff(meta, got); diff != "" {
		t.Errorf("sidecar mismatch (-want +got):\n%s", diff)
	}
}

func TestResults_SkipsMergedAndSidecars(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	data := gzResult(t, "2.2.3", "Foo Bar", "")
	meta, err := Extract(data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := store.Put(data, meta); err != nil {
		t.Fatalf("Put: %v", err)
	}

	dir := store.BucketPath("2.2", "Foo_Bar")
	if err := os.WriteFile(filepath.Join(dir, "merged-results.json.gz"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write merged: %v", err)
	}

	results, err := store.Results("2.2", "Foo_Bar")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(Results) = %d, want 1 (merged artifact and sidecar must not count)", len(results))
	}
}

func TestBucketsAndModels_Sorted(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	for _, pair := range [][2]string{{"2.2", "Zeta"}, {"2.1", "Alpha"}, {"2.2", "Alpha"}} {
		if err := os.MkdirAll(store.BucketPath(pair[0], pair[1]), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	buckets, err := store.Buckets()
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}
	if diff := cmp.Diff([]string{"2.1", "2.2"}, buckets); diff != "" {
		t.Errorf("Buckets (-want +got):\n%s", diff)
	}

	models, err := store.Models("2.2")
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if diff := cmp.Diff([]string{"Alpha", "Zeta"}, models); diff != "" {
		t.Errorf("Models (-want +got):\n%s", diff)
	}
}
