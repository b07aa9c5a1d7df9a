package resultdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/mod/semver"
)

// Metadata is the handful of fields this layer reads out of a result file.
// The rest of the payload is opaque and belongs to the engine.
type Metadata struct {
	BenchVersion  string `json:"bench_version"`
	VersionBucket string `json:"version_bucket"`
	Model         string `json:"model"`
	Firmware      string `json:"firmware,omitempty"`

	// Origin of the submission; empty for locally imported files.
	SourceURL string `json:"source_url,omitempty"`
	Issue     int    `json:"issue,omitempty"`
}

// ParseError marks a result file this layer could not understand. It fails
// the one submission, never the batch.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resultdb: %s: %v", e.Reason, e.Err)
	}
	return "resultdb: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// resultPayload is the first element of the gzipped JSON array a result file
// contains, restricted to the fields we extract.
type resultPayload struct {
	Sysinfo struct {
		BenchVersion  string `json:"bench_version"`
		SysreqsReport struct {
			Model    string `json:"scr_dev_model"`
			Firmware string `json:"scr_dev_fwrev"`
		} `json:"sysreqs_report"`
	} `json:"sysinfo"`
}

// Extract derives Metadata from the raw (gzipped) bytes of a result file.
func Extract(data []byte) (Metadata, error) {
	var payload []resultPayload
	if err := decode(bytes.NewReader(data), &payload); err != nil {
		return Metadata{}, err
	}
	if len(payload) == 0 {
		return Metadata{}, &ParseError{Reason: "result file holds an empty result array"}
	}
	sys := payload[0].Sysinfo

	// The version field carries trailing build info; only the leading
	// token is the semantic version.
	fields := strings.Fields(sys.BenchVersion)
	if len(fields) == 0 {
		return Metadata{}, &ParseError{Reason: "missing sysinfo.bench_version"}
	}
	full := fields[0]
	if !semver.IsValid("v" + full) {
		return Metadata{}, &ParseError{Reason: fmt.Sprintf("bench_version %q is not a semantic version", full)}
	}

	model := NormalizeModel(sys.SysreqsReport.Model)
	if model == "" {
		return Metadata{}, &ParseError{Reason: "missing sysinfo.sysreqs_report.scr_dev_model"}
	}

	return Metadata{
		BenchVersion:  full,
		VersionBucket: VersionBucket(full),
		Model:         model,
		Firmware:      strings.TrimSpace(sys.SysreqsReport.Firmware),
	}, nil
}

// ExtractFile extracts Metadata from a stored result file.
func ExtractFile(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("resultdb: read %q: %w", path, err)
	}
	return Extract(data)
}

// DecodeFile gunzips and unmarshals a stored result or merged-result file
// into v. Callers supply their own view of the payload.
func DecodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("resultdb: open %q: %w", path, err)
	}
	defer f.Close()
	return decode(f, v)
}

func decode(r io.Reader, v any) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return &ParseError{Reason: "not a gzip archive", Err: err}
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return &ParseError{Reason: "decompress", Err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ParseError{Reason: "not valid result JSON", Err: err}
	}
	return nil
}

// NormalizeModel collapses whitespace runs in a free-text device-model name
// to single underscores, matching the directory naming of the database.
func NormalizeModel(model string) string {
	return strings.Join(strings.Fields(model), "_")
}

// VersionBucket truncates a full semantic version to its major.minor key.
// The caller must have validated the version.
func VersionBucket(full string) string {
	return strings.TrimPrefix(semver.MajorMinor("v"+full), "v")
}
