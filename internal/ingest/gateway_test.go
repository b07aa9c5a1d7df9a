package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/engine"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/resultdb"
)

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

// fakeDownloader serves canned bytes and records which URLs were fetched.
type fakeDownloader struct {
	files   map[string][]byte
	fetched []string
}

func (d *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	d.fetched = append(d.fetched, url)
	data, ok := d.files[url]
	if !ok {
		return nil, fmt.Errorf("fake: no such file %q", url)
	}
	return data, nil
}

// fakeRunner accepts every file unless its stderr field is set.
type fakeRunner struct {
	stderr string
	calls  [][]string
}

func (r *fakeRunner) Run(_ context.Context, bucket string, args ...string) (string, error) {
	r.calls = append(r.calls, append([]string{bucket}, args...))
	if r.stderr != "" {
		return "", &engine.Error{Binary: "fake", Args: args, Stderr: r.stderr}
	}
	return "", nil
}

func (r *fakeRunner) Version(context.Context, string) (string, error) {
	return "2.2.5", nil
}

func submissionContext(body string) *Context {
	return &Context{
		EventName:       "issues",
		RepositoryOwner: "iocost-benchmark",
		Event: Event{
			Action: "opened",
			Issue:  Issue{Number: 12, Body: body, State: "open"},
		},
	}
}

func TestIngest_FiltersBeforeFetch(t *testing.T) {
	store, err := resultdb.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	good := "https://iocost-submit.s3.us-east-1.amazonaws.com/run/good.json.gz"
	evil := "https://evil.example.com/bad.json.gz"

	dl := &fakeDownloader{files: map[string][]byte{
		good: gzResult(t, "2.2.3", "Foo Bar", "FW1"),
	}}
	gw := NewGateway(store, &fakeRunner{}, dl)

	accepted, rejected, err := gw.Ingest(context.Background(),
		submissionContext("results: "+good+" and "+evil))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(dl.fetched) != 1 || dl.fetched[0] != good {
		t.Errorf("fetched = %v, want only the allow-listed URL", dl.fetched)
	}
	if len(accepted) != 1 {
		t.Fatalf("len(accepted) = %d, want 1", len(accepted))
	}
	if accepted[0].Meta.Model != "Foo_Bar" || accepted[0].Meta.VersionBucket != "2.2" {
		t.Errorf("accepted meta = %+v", accepted[0].Meta)
	}
	if accepted[0].Meta.Issue != 12 {
		t.Errorf("Issue = %d, want 12", accepted[0].Meta.Issue)
	}

	report := FailureReport(rejected)
	if !strings.Contains(report, evil) {
		t.Errorf("report should name the rejected URL:\n%s", report)
	}
	if strings.Contains(report, good) {
		t.Errorf("report must not name the accepted URL:\n%s", report)
	}
}

func TestIngest_EngineRejectionIsPerFile(t *testing.T) {
	store, err := resultdb.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	url := "https://iocost-submit.s3.us-east-1.amazonaws.com/run/bad.json.gz"
	dl := &fakeDownloader{files: map[string][]byte{
		url: gzResult(t, "2.2.3", "Foo Bar", ""),
	}}
	gw := NewGateway(store, &fakeRunner{stderr: "merge: unsupported benchmark"}, dl)

	accepted, rejected, err := gw.Ingest(context.Background(), submissionContext(url))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(accepted) != 0 {
		t.Errorf("accepted = %v, want none", accepted)
	}
	if len(rejected) != 1 || !strings.Contains(rejected[0].Reason, "unsupported benchmark") {
		t.Errorf("rejected = %+v, want engine stderr text", rejected)
	}

	// A rejected file must never land in a bucket.
	if _, err := store.Results("2.2", "Foo_Bar"); err == nil {
		t.Error("bucket directory exists for a rejected file")
	}
}

func TestIngest_UnparseableFileRejected(t *testing.T) {
	store, err := resultdb.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	url := "https://iocost-submit.s3.us-east-1.amazonaws.com/run/junk.json.gz"
	dl := &fakeDownloader{files: map[string][]byte{url: []byte("not gzip at all")}}
	runner := &fakeRunner{}
	gw := NewGateway(store, runner, dl)

	accepted, rejected, err := gw.Ingest(context.Background(), submissionContext(url))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(accepted) != 0 || len(rejected) != 1 {
		t.Fatalf("accepted=%d rejected=%d, want 0/1", len(accepted), len(rejected))
	}
	if len(runner.calls) != 0 {
		t.Error("engine should not run on an unparseable file")
	}
}

func TestIngest_SkipsLockedIssue(t *testing.T) {
	store, err := resultdb.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	dl := &fakeDownloader{}
	gw := NewGateway(store, &fakeRunner{}, dl)

	ctx := submissionContext("https://iocost-submit.s3.us-east-1.amazonaws.com/x.json.gz")
	ctx.Event.Issue.Locked = true

	accepted, rejected, err := gw.Ingest(context.Background(), ctx)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if accepted != nil || rejected != nil || len(dl.fetched) != 0 {
		t.Error("locked issue must be a complete no-op")
	}
}

func TestGroupByBucket(t *testing.T) {
	accepted := []Accepted{
		{Meta: resultdb.Metadata{VersionBucket: "2.2", Model: "A"}},
		{Meta: resultdb.Metadata{VersionBucket: "2.2", Model: "A"}},
		{Meta: resultdb.Metadata{VersionBucket: "2.1", Model: "A"}},
		{Meta: resultdb.Metadata{VersionBucket: "2.2", Model: "B"}},
	}
	groups := GroupByBucket(accepted)
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	if n := len(groups[Bucket{Version: "2.2", Model: "A"}]); n != 2 {
		t.Errorf("2.2/A group size = %d, want 2", n)
	}
}
