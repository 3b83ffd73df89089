package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is one GitHub webhook event kind this service handles, taken from the
// X-GitHub-Event header.
type Kind string

const (
	KindRepository   Kind = "repository"
	KindIssues       Kind = "issues"
	KindIssueComment Kind = "issue_comment"
	KindPullRequest  Kind = "pull_request"
	KindPush         Kind = "push"
	KindOrganization Kind = "organization"
)

// ErrUnhandledEvent reports an event kind or action this service deliberately
// ignores. Ingress acknowledges these with 200 so GitHub does not retry.
var ErrUnhandledEvent = errors.New("unhandled event")

// ParseKind validates an event header value.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindRepository, KindIssues, KindIssueComment, KindPullRequest, KindPush, KindOrganization:
		return Kind(s), true
	}
	return "", false
}

// Task kinds produced by the router; the worker subscribes to these.
const (
	TaskRepoCreated    = "repo.created"
	TaskIssueOpened    = "issue.opened"
	TaskIssueUpdated   = "issue.updated"
	TaskCommentCreated = "comment.created"
	TaskPROpened       = "pr.opened"
	TaskPRUpdated      = "pr.updated"
	TaskPush           = "push"
	TaskOrgMemberAdded = "org.member_added"
)

// Task is one classified delivery, ready to enqueue.
type Task struct {
	Kind    string
	Payload any
}

// Route classifies one webhook delivery by (kind, action) and returns exactly
// one task, after validating the body against the kind's schema. Schema
// failures return ErrMalformedEvent (wrapped); deliberately ignored actions
// return ErrUnhandledEvent.
func Route(kind Kind, body []byte) (Task, error) {
	switch kind {
	case KindRepository:
		var e RepositoryEvent
		if err := decode(body, &e); err != nil {
			return Task{}, err
		}
		if e.Action != "created" {
			return Task{}, fmt.Errorf("%w: repository %s", ErrUnhandledEvent, e.Action)
		}
		return Task{Kind: TaskRepoCreated, Payload: e}, nil

	case KindIssues:
		var e IssuesEvent
		if err := decode(body, &e); err != nil {
			return Task{}, err
		}
		if e.Action == "opened" {
			return Task{Kind: TaskIssueOpened, Payload: e}, nil
		}
		return Task{Kind: TaskIssueUpdated, Payload: e}, nil

	case KindIssueComment:
		var e IssueCommentEvent
		if err := decode(body, &e); err != nil {
			return Task{}, err
		}
		if e.Action != "created" {
			return Task{}, fmt.Errorf("%w: issue_comment %s", ErrUnhandledEvent, e.Action)
		}
		return Task{Kind: TaskCommentCreated, Payload: e}, nil

	case KindPullRequest:
		var e PullRequestEvent
		if err := decode(body, &e); err != nil {
			return Task{}, err
		}
		if e.Action == "opened" {
			return Task{Kind: TaskPROpened, Payload: e}, nil
		}
		return Task{Kind: TaskPRUpdated, Payload: e}, nil

	case KindPush:
		var e PushEvent
		if err := decode(body, &e); err != nil {
			return Task{}, err
		}
		return Task{Kind: TaskPush, Payload: e}, nil

	case KindOrganization:
		var e OrganizationEvent
		if err := decode(body, &e); err != nil {
			return Task{}, err
		}
		if e.Action != "member_added" {
			return Task{}, fmt.Errorf("%w: organization %s", ErrUnhandledEvent, e.Action)
		}
		return Task{Kind: TaskOrgMemberAdded, Payload: e}, nil
	}
	return Task{}, fmt.Errorf("%w: %s", ErrUnhandledEvent, kind)
}

type validator interface{ Validate() error }

func decode(body []byte, into validator) error {
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return into.Validate()
}
