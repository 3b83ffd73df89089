package ghapp

import (
	"context"
	"strings"

	"github.com/google/go-github/v57/github"
)

// Repo-level and issue-level operations invoked by chat commands. Each takes
// the client to act with so callers choose bot vs user attribution.

func CloseIssue(ctx context.Context, gc *github.Client, owner, repo string, number int) (*github.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	state := "closed"
	issue, _, err := gc.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{State: &state})
	return issue, err
}

func ReopenIssue(ctx context.Context, gc *github.Client, owner, repo string, number int) (*github.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	state := "open"
	issue, _, err := gc.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{State: &state})
	return issue, err
}

func EditIssueTitle(ctx context.Context, gc *github.Client, owner, repo string, number int, title string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, _, err := gc.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{Title: &title})
	return err
}

func AddIssueLabel(ctx context.Context, gc *github.Client, owner, repo string, number int, label string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, _, err := gc.Issues.AddLabelsToIssue(ctx, owner, repo, number, []string{label})
	return err
}

func CreateIssueComment(ctx context.Context, gc *github.Client, owner, repo string, number int, body string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, _, err := gc.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: &body})
	return err
}

func RenameRepo(ctx context.Context, gc *github.Client, owner, repo, newName string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, _, err := gc.Repositories.Edit(ctx, owner, repo, &github.Repository{Name: &newName})
	return err
}

func EditRepoDescription(ctx context.Context, gc *github.Client, owner, repo, description string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, _, err := gc.Repositories.Edit(ctx, owner, repo, &github.Repository{Description: &description})
	return err
}

func SetRepoHomepage(ctx context.Context, gc *github.Client, owner, repo, url string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, _, err := gc.Repositories.Edit(ctx, owner, repo, &github.Repository{Homepage: github.String(url)})
	return err
}

func SetRepoArchived(ctx context.Context, gc *github.Client, owner, repo string, archived bool) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, _, err := gc.Repositories.Edit(ctx, owner, repo, &github.Repository{Archived: &archived})
	return err
}

func SetRepoVisibility(ctx context.Context, gc *github.Client, owner, repo, visibility string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	private := strings.EqualFold(visibility, "private")
	_, _, err := gc.Repositories.Edit(ctx, owner, repo, &github.Repository{Private: &private})
	return err
}

// AddCollaborator grants a user access to a repo: permission is one of
// pull, push, admin, maintain, triage.
func AddCollaborator(ctx context.Context, gc *github.Client, owner, repo, username, permission string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, _, err := gc.Repositories.AddCollaborator(ctx, owner, repo, username,
		&github.RepositoryAddCollaboratorOptions{Permission: permission})
	return err
}

// ListOrgAdmins pages through the org's admin members.
func ListOrgAdmins(ctx context.Context, gc *github.Client, org string) ([]string, error) {
	var admins []string
	opts := &github.ListMembersOptions{
		Role:        "admin",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		ctx2, cancel := context.WithTimeout(ctx, requestTimeout)
		users, resp, err := gc.Organizations.ListMembers(ctx2, org, opts)
		cancel()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			admins = append(admins, u.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return admins, nil
}

// ParseRepoURL extracts (owner, repo) from forms like
// https://github.com/Org/Repo or Org/Repo.
func ParseRepoURL(raw string) (owner, repo string, ok bool) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), ".git")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.Trim(s, "/")
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
