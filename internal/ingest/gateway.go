package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/engine"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/logging"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/resultdb"
)

// Downloader fetches raw bytes from an already allow-listed URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// HTTPDownloader is the production Downloader. Client may be nil to use
// http.DefaultClient.
type HTTPDownloader struct {
	Client *http.Client
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: download %q: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ingest: download %q: %s: %s", url, resp.Status, string(body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %q: %w", url, err)
	}
	return data, nil
}

// Accepted is one validated, stored result file.
type Accepted struct {
	URL  string
	Path string
	Meta resultdb.Metadata
}

// Bucket is the (version, model) grouping key of the database.
type Bucket struct {
	Version string
	Model   string
}

// Gateway validates and stores the result files referenced by one event.
type Gateway struct {
	Store      *resultdb.Store
	Engine     engine.Runner
	Downloader Downloader
}

func NewGateway(store *resultdb.Store, eng engine.Runner, dl Downloader) *Gateway {
	return &Gateway{Store: store, Engine: eng, Downloader: dl}
}

// Ingest processes one submission event. Per-item failures (unparseable
// files, engine validation errors) end up in rejected; download and storage
// failures abort the whole call.
func (g *Gateway) Ingest(ctx context.Context, ectx *Context) (accepted []Accepted, rejected []Rejection, err error) {
	log := logging.New("ingest")

	if ectx.Skip() {
		log.Info("issue locked or not open, ignoring event", "issue", ectx.Event.Issue.Number)
		return nil, nil, nil
	}

	body, err := ectx.SubmissionBody()
	if err != nil {
		return nil, nil, err
	}

	urls, rejected := ScanBody(body)
	for _, r := range rejected {
		log.Info("url rejected before fetch", "url", r.URL, "reason", r.Reason)
	}

	// URLs are processed sequentially so failures stay attributable to one
	// URL and one submission never fans out concurrent downloads.
	for _, url := range urls {
		data, err := g.Downloader.Download(ctx, url)
		if err != nil {
			return nil, nil, err
		}

		meta, err := resultdb.Extract(data)
		if err != nil {
			var parseErr *resultdb.ParseError
			if errors.As(err, &parseErr) {
				rejected = append(rejected, Rejection{URL: url, Reason: err.Error()})
				continue
			}
			return nil, nil, err
		}

		if verr := g.validate(ctx, data, meta.VersionBucket); verr != nil {
			rejected = append(rejected, Rejection{URL: url, Reason: verr.Error()})
			continue
		}

		meta.SourceURL = url
		meta.Issue = ectx.Event.Issue.Number

		path, err := g.Store.Put(data, meta)
		if err != nil {
			return nil, nil, err
		}
		log.Info("result stored", "url", url, "path", path,
			"version", meta.VersionBucket, "model", meta.Model)

		accepted = append(accepted, Accepted{URL: url, Path: path, Meta: meta})
	}

	return accepted, rejected, nil
}

// validate runs the engine over the single new file in isolation, merging it
// against a throwaway output path. A file the engine rejects never reaches a
// bucket.
func (g *Gateway) validate(ctx context.Context, data []byte, versionBucket string) error {
	dir, err := os.MkdirTemp("", "iocost-validate-")
	if err != nil {
		return fmt.Errorf("ingest: create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	candidate := filepath.Join(dir, resultdb.FileName(data))
	if err := os.WriteFile(candidate, data, 0o644); err != nil {
		return fmt.Errorf("ingest: write scratch file: %w", err)
	}

	scratch := filepath.Join(dir, "merged.json.gz")
	_, err = g.Engine.Run(ctx, versionBucket, "--result", scratch, "merge", candidate)
	return err
}

// GroupByBucket groups accepted files by their (version, model) key, one
// merge per distinct group.
func GroupByBucket(accepted []Accepted) map[Bucket][]Accepted {
	groups := make(map[Bucket][]Accepted)
	for _, a := range accepted {
		key := Bucket{Version: a.Meta.VersionBucket, Model: a.Meta.Model}
		groups[key] = append(groups[key], a)
	}
	return groups
}
