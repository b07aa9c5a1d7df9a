// Package tracker is the thin issue-tracker binding: the pipeline only ever
// posts one aggregated comment per submission event.
package tracker

import (
	"context"
	"fmt"

	"github.com/google/go-github/v66/github"
)

// Commenter posts a text comment to an issue.
type Commenter interface {
	PostComment(ctx context.Context, owner, repo string, number int, body string) error
}

// GitHub is the production Commenter.
type GitHub struct {
	client *github.Client
}

// NewGitHub returns a client authenticated with the workflow token.
func NewGitHub(token string) *GitHub {
	return &GitHub{client: github.NewClient(nil).WithAuthToken(token)}
}

func (g *GitHub) PostComment(ctx context.Context, owner, repo string, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := g.client.Issues.CreateComment(ctx, owner, repo, number, comment); err != nil {
		return fmt.Errorf("tracker: comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}
