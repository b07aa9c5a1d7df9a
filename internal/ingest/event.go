// Package ingest turns an issue-tracker submission event into validated,
// stored result files grouped by database bucket.
package ingest

import (
	"encoding/json"
	"fmt"
)

// Context is the CI event context payload handed to the import job.
type Context struct {
	EventName       string `json:"event_name"`
	Token           string `json:"token"`
	SHA             string `json:"sha"`
	RepositoryOwner string `json:"repository_owner"`
	Event           Event  `json:"event"`
}

// Event is the issue or issue-comment event inside the context.
type Event struct {
	Action     string      `json:"action"`
	Issue      Issue       `json:"issue"`
	Comment    *Comment    `json:"comment,omitempty"`
	Repository *Repository `json:"repository,omitempty"`
}

type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Locked bool   `json:"locked"`
	State  string `json:"state"`
}

type Comment struct {
	Body string `json:"body"`
}

type Repository struct {
	Name  string `json:"name"`
	Owner Owner  `json:"owner"`
}

type Owner struct {
	Login string `json:"login"`
}

// ParseContext decodes a context payload.
func ParseContext(data []byte) (*Context, error) {
	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("ingest: parse event context: %w", err)
	}
	return &ctx, nil
}

// UnsupportedEventError marks an event kind/action this pipeline does not
// handle. The workflow trigger list should prevent these from arriving.
type UnsupportedEventError struct {
	EventName string
	Action    string
}

func (e *UnsupportedEventError) Error() string {
	return fmt.Sprintf("ingest: unsupported event %s/%s", e.EventName, e.Action)
}

// Skip reports whether the event should be ignored outright: a locked or
// non-open issue accepts no submissions. This is a no-op, not an error.
func (c *Context) Skip() bool {
	return c.Event.Issue.Locked || c.Event.Issue.State != "open"
}

// SubmissionBody selects the free text that may carry result URLs.
// "created" is always a comment, "opened" always an issue; "edited" is
// disambiguated by the event name.
func (c *Context) SubmissionBody() (string, error) {
	switch c.Event.Action {
	case "created":
		if c.Event.Comment == nil {
			return "", &UnsupportedEventError{EventName: c.EventName, Action: c.Event.Action}
		}
		return c.Event.Comment.Body, nil
	case "opened":
		return c.Event.Issue.Body, nil
	case "edited":
		if c.EventName == "issue_comment" {
			if c.Event.Comment == nil {
				return "", &UnsupportedEventError{EventName: c.EventName, Action: c.Event.Action}
			}
			return c.Event.Comment.Body, nil
		}
		return c.Event.Issue.Body, nil
	default:
		return "", &UnsupportedEventError{EventName: c.EventName, Action: c.Event.Action}
	}
}
