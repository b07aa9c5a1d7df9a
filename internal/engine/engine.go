// Package engine invokes the external resctl-bench binary. One binary tree is
// kept per version bucket so old results stay mergeable by the engine release
// that produced them.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
)

// Runner abstracts the engine subprocess so pipeline stages can be tested
// without a binary on disk.
type Runner interface {
	// Run invokes the engine for a version bucket and returns its stdout.
	Run(ctx context.Context, versionBucket string, args ...string) (string, error)
	// Version reports the full semantic version of the engine binary
	// serving a version bucket.
	Version(ctx context.Context, versionBucket string) (string, error)
}

// Error is a failed engine invocation. The engine writes diagnostics to
// stderr, so any stderr output is a failure regardless of exit code.
type Error struct {
	Binary   string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("engine: %s %s (exit %d)", e.Binary, strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Exec runs the real binaries under Dir/resctl-demo-v<bucket>/resctl-bench.
type Exec struct {
	Dir string
}

// Binary resolves the engine binary path for a version bucket.
func (e *Exec) Binary(versionBucket string) string {
	return filepath.Join(e.Dir, "resctl-demo-v"+versionBucket, "resctl-bench")
}

func (e *Exec) Run(ctx context.Context, versionBucket string, args ...string) (string, error) {
	bin := e.Binary(versionBucket)
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil || stderr.Len() > 0 {
		exit := -1
		if cmd.ProcessState != nil {
			exit = cmd.ProcessState.ExitCode()
		}
		return "", &Error{
			Binary:   bin,
			Args:     args,
			ExitCode: exit,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      runErr,
		}
	}
	return stdout.String(), nil
}

func (e *Exec) Version(ctx context.Context, versionBucket string) (string, error) {
	out, err := e.Run(ctx, versionBucket, "--version")
	if err != nil {
		return "", err
	}
	v, err := ParseVersionOutput(out)
	if err != nil {
		return "", fmt.Errorf("engine: %s --version: %w", e.Binary(versionBucket), err)
	}
	return v, nil
}

// ParseVersionOutput finds the semantic-version token in the engine's
// --version output (e.g. "resctl-bench 2.2.4 (diskstats)").
func ParseVersionOutput(out string) (string, error) {
	for _, field := range strings.Fields(out) {
		if semver.IsValid("v" + field) {
			return field, nil
		}
	}
	return "", fmt.Errorf("no version token in %q", strings.TrimSpace(out))
}
