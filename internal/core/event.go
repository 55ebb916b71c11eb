package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIgnoredEvent is returned for webhook deliveries that never start a
	// run, such as pings or closed pull requests.
	ErrIgnoredEvent = errors.New("event ignored")
)

// Event is a repository event that may trigger a workflow run.
type Event struct {
	Name   string `json:"event"`
	Ref    string `json:"ref"`
	SHA    string `json:"sha,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// BranchName is the branch used for trigger filters: the explicit Branch
// when set, otherwise the short name of a refs/heads/ ref. Other refs have
// no branch.
func (e Event) BranchName() string {
	if e.Branch != "" {
		return e.Branch
	}
	name, ok := strings.CutPrefix(e.Ref, "refs/heads/")
	if !ok {
		return ""
	}
	return name
}

// RefName is the short form of Ref.
func (e Event) RefName() string {
	for _, prefix := range []string{"refs/heads/", "refs/tags/", "refs/"} {
		if strings.HasPrefix(e.Ref, prefix) {
			return strings.TrimPrefix(e.Ref, prefix)
		}
	}
	return e.Ref
}

func (e Event) Validate() error {
	if !supportedEvents[e.Name] {
		return fmt.Errorf("unsupported event %q", e.Name)
	}
	if e.Ref == "" {
		return errors.New("event has no ref")
	}
	return nil
}

type githubPush struct {
	Ref     string `json:"ref"`
	After   string `json:"after"`
	Deleted bool   `json:"deleted"`
}

type githubPullRequest struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

// EventFromGitHub converts a GitHub webhook delivery into an Event. name
// is the X-GitHub-Event header.
func EventFromGitHub(name string, payload []byte) (Event, error) {
	switch name {
	case EventPush:
		var push githubPush
		if err := json.Unmarshal(payload, &push); err != nil {
			return Event{}, fmt.Errorf("decode push payload: %w", err)
		}
		if push.Deleted {
			return Event{}, ErrIgnoredEvent
		}
		return Event{Name: EventPush, Ref: push.Ref, SHA: push.After}, nil

	case EventPullRequest:
		var pr githubPullRequest
		if err := json.Unmarshal(payload, &pr); err != nil {
			return Event{}, fmt.Errorf("decode pull_request payload: %w", err)
		}
		switch pr.Action {
		case "opened", "synchronize", "reopened":
		default:
			return Event{}, ErrIgnoredEvent
		}
		return Event{
			Name:   EventPullRequest,
			Ref:    fmt.Sprintf("refs/pull/%d/merge", pr.Number),
			SHA:    pr.PullRequest.Head.SHA,
			Branch: pr.PullRequest.Base.Ref,
		}, nil

	default:
		return Event{}, ErrIgnoredEvent
	}
}
