package events

import "errors"

// ErrMalformedEvent reports a webhook body that fails its kind's schema.
var ErrMalformedEvent = errors.New("malformed event payload")

// Account is the common shape of GitHub users and organizations.
type Account struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

type Installation struct {
	ID int64 `json:"id"`
}

type Repository struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	FullName    string  `json:"full_name"`
	Description string  `json:"description"`
	Private     bool    `json:"private"`
	Owner       Account `json:"owner"`
}

type Issue struct {
	ID     int64   `json:"id"`
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	User   Account `json:"user"`
	// Present only when the "issue" is actually a pull request.
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
}

type PullRequest struct {
	ID     int64   `json:"id"`
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	Merged bool    `json:"merged"`
	User   Account `json:"user"`
	Head   Ref     `json:"head"`
	Base   Ref     `json:"base"`
}

type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type Comment struct {
	ID   int64   `json:"id"`
	Body string  `json:"body"`
	User Account `json:"user"`
}

type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
	Author  struct {
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"author"`
}

// RepositoryEvent mirrors the `repository` webhook envelope.
type RepositoryEvent struct {
	Action       string       `json:"action"`
	Repository   Repository   `json:"repository"`
	Sender       Account      `json:"sender"`
	Installation Installation `json:"installation"`
}

func (e RepositoryEvent) Validate() error {
	if e.Action == "" || e.Sender.Login == "" || e.Installation.ID == 0 || e.Repository.ID == 0 {
		return ErrMalformedEvent
	}
	return nil
}

type IssuesEvent struct {
	Action       string       `json:"action"`
	Issue        Issue        `json:"issue"`
	Repository   Repository   `json:"repository"`
	Sender       Account      `json:"sender"`
	Installation Installation `json:"installation"`
}

func (e IssuesEvent) Validate() error {
	if e.Action == "" || e.Sender.Login == "" || e.Installation.ID == 0 ||
		e.Repository.ID == 0 || e.Issue.Number == 0 {
		return ErrMalformedEvent
	}
	return nil
}

type IssueCommentEvent struct {
	Action       string       `json:"action"`
	Comment      Comment      `json:"comment"`
	Issue        Issue        `json:"issue"`
	Repository   Repository   `json:"repository"`
	Sender       Account      `json:"sender"`
	Installation Installation `json:"installation"`
}

func (e IssueCommentEvent) Validate() error {
	if e.Action == "" || e.Sender.Login == "" || e.Installation.ID == 0 ||
		e.Repository.ID == 0 || e.Issue.Number == 0 || e.Comment.ID == 0 {
		return ErrMalformedEvent
	}
	return nil
}

type PullRequestEvent struct {
	Action       string       `json:"action"`
	PullRequest  PullRequest  `json:"pull_request"`
	Repository   Repository   `json:"repository"`
	Sender       Account      `json:"sender"`
	Installation Installation `json:"installation"`
}

func (e PullRequestEvent) Validate() error {
	if e.Action == "" || e.Sender.Login == "" || e.Installation.ID == 0 ||
		e.Repository.ID == 0 || e.PullRequest.Number == 0 {
		return ErrMalformedEvent
	}
	return nil
}

// PushEvent has no action field; the ref and commit log drive handling.
type PushEvent struct {
	Ref          string       `json:"ref"`
	Before       string       `json:"before"`
	After        string       `json:"after"`
	Commits      []Commit     `json:"commits"`
	Repository   Repository   `json:"repository"`
	Sender       Account      `json:"sender"`
	Installation Installation `json:"installation"`
}

func (e PushEvent) Validate() error {
	if e.Ref == "" || e.Sender.Login == "" || e.Installation.ID == 0 || e.Repository.ID == 0 {
		return ErrMalformedEvent
	}
	return nil
}

type OrganizationEvent struct {
	Action     string `json:"action"`
	Membership struct {
		Role string  `json:"role"`
		User Account `json:"user"`
	} `json:"membership"`
	Organization Account      `json:"organization"`
	Sender       Account      `json:"sender"`
	Installation Installation `json:"installation"`
}

func (e OrganizationEvent) Validate() error {
	if e.Action == "" || e.Sender.Login == "" || e.Installation.ID == 0 || e.Organization.Login == "" {
		return ErrMalformedEvent
	}
	return nil
}
