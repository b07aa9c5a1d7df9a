// Package gitops is the thin version-control binding: stage the pipeline's
// output paths, commit them, and point a per-issue branch at the commit. The
// push and pull-request steps live in the workflow, not here.
package gitops

import (
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	botName  = "iocost bot"
	botEmail = "iocost-bot@has.no.email"
)

// Committer is what the import pipeline needs from version control.
type Committer interface {
	Add(paths ...string) error
	Commit(message string) (string, error)
	Branch(name, commit string) error
}

// Repo wraps an existing work tree.
type Repo struct {
	repo *git.Repository
	wt   *git.Worktree
}

// Open opens the repository containing path (typically ".").
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("gitops: open %q: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("gitops: worktree: %w", err)
	}
	return &Repo{repo: repo, wt: wt}, nil
}

// Add stages paths relative to the repository root.
func (r *Repo) Add(paths ...string) error {
	for _, path := range paths {
		if _, err := r.wt.Add(path); err != nil {
			return fmt.Errorf("gitops: stage %q: %w", path, err)
		}
	}
	return nil
}

// Commit records the staged changes under the bot identity and returns the
// commit hash.
func (r *Repo) Commit(message string) (string, error) {
	sig := &object.Signature{Name: botName, Email: botEmail, When: time.Now()}
	hash, err := r.wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("gitops: commit: %w", err)
	}
	return hash.String(), nil
}

// Branch points refs/heads/<name> at commit, creating or moving it.
func (r *Repo) Branch(name, commit string) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(commit))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("gitops: branch %q: %w", name, err)
	}
	return nil
}
