package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuesBody(t *testing.T, action string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"action":       action,
		"issue":        map[string]any{"id": 1, "number": 7, "title": "t", "state": "open", "user": map[string]any{"id": 2, "login": "alice"}},
		"repository":   map[string]any{"id": 10, "name": "repo", "full_name": "org/repo", "owner": map[string]any{"id": 3, "login": "org"}},
		"sender":       map[string]any{"id": 2, "login": "alice"},
		"installation": map[string]any{"id": 99},
	})
	require.NoError(t, err)
	return b
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"repository", "issues", "issue_comment", "pull_request", "push", "organization"} {
		k, ok := ParseKind(s)
		assert.True(t, ok, s)
		assert.Equal(t, Kind(s), k)
	}
	_, ok := ParseKind("ping")
	assert.False(t, ok)
}

func TestRoute_IssuesOpenedVsUpdated(t *testing.T) {
	task, err := Route(KindIssues, issuesBody(t, "opened"))
	require.NoError(t, err)
	assert.Equal(t, TaskIssueOpened, task.Kind)

	for _, action := range []string{"edited", "closed", "reopened", "labeled"} {
		task, err := Route(KindIssues, issuesBody(t, action))
		require.NoError(t, err, action)
		assert.Equal(t, TaskIssueUpdated, task.Kind, action)
	}
}

func TestRoute_RepositoryOnlyCreated(t *testing.T) {
	body := func(action string) []byte {
		b, _ := json.Marshal(map[string]any{
			"action":       action,
			"repository":   map[string]any{"id": 10, "name": "repo", "full_name": "org/repo", "owner": map[string]any{"id": 3, "login": "org"}},
			"sender":       map[string]any{"id": 2, "login": "alice"},
			"installation": map[string]any{"id": 99},
		})
		return b
	}
	task, err := Route(KindRepository, body("created"))
	require.NoError(t, err)
	assert.Equal(t, TaskRepoCreated, task.Kind)

	_, err = Route(KindRepository, body("deleted"))
	assert.ErrorIs(t, err, ErrUnhandledEvent)
}

func TestRoute_OrganizationOnlyMemberAdded(t *testing.T) {
	body := func(action string) []byte {
		b, _ := json.Marshal(map[string]any{
			"action":       action,
			"membership":   map[string]any{"role": "member", "user": map[string]any{"id": 5, "login": "bob"}},
			"organization": map[string]any{"id": 6, "login": "org"},
			"sender":       map[string]any{"id": 2, "login": "alice"},
			"installation": map[string]any{"id": 99},
		})
		return b
	}
	task, err := Route(KindOrganization, body("member_added"))
	require.NoError(t, err)
	assert.Equal(t, TaskOrgMemberAdded, task.Kind)

	_, err = Route(KindOrganization, body("member_removed"))
	assert.ErrorIs(t, err, ErrUnhandledEvent)
}

func TestRoute_PushAlwaysRoutes(t *testing.T) {
	b, _ := json.Marshal(map[string]any{
		"ref":          "refs/heads/feature-x",
		"before":       "aaa",
		"after":        "bbb",
		"commits":      []map[string]any{{"id": "bbb", "message": "fix"}},
		"repository":   map[string]any{"id": 10, "name": "repo", "full_name": "org/repo", "owner": map[string]any{"id": 3, "login": "org"}},
		"sender":       map[string]any{"id": 2, "login": "alice"},
		"installation": map[string]any{"id": 99},
	})
	task, err := Route(KindPush, b)
	require.NoError(t, err)
	assert.Equal(t, TaskPush, task.Kind)
	ev, ok := task.Payload.(PushEvent)
	require.True(t, ok)
	assert.Equal(t, "refs/heads/feature-x", ev.Ref)
}

func TestRoute_MalformedBody(t *testing.T) {
	_, err := Route(KindIssues, []byte(`{"action": "opened"`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestRoute_SchemaValidation(t *testing.T) {
	// Missing sender and installation must fail validation, not route.
	b, _ := json.Marshal(map[string]any{
		"action": "opened",
		"issue":  map[string]any{"id": 1, "number": 7, "title": "t"},
	})
	_, err := Route(KindIssues, b)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestRoute_PullRequestOpenedVsUpdated(t *testing.T) {
	body := func(action string) []byte {
		b, _ := json.Marshal(map[string]any{
			"action": action,
			"pull_request": map[string]any{
				"id": 1, "number": 4, "title": "t", "state": "open",
				"user": map[string]any{"id": 2, "login": "alice"},
				"head": map[string]any{"ref": "feature-x", "sha": "bbb"},
				"base": map[string]any{"ref": "main", "sha": "aaa"},
			},
			"repository":   map[string]any{"id": 10, "name": "repo", "full_name": "org/repo", "owner": map[string]any{"id": 3, "login": "org"}},
			"sender":       map[string]any{"id": 2, "login": "alice"},
			"installation": map[string]any{"id": 99},
		})
		return b
	}
	task, err := Route(KindPullRequest, body("opened"))
	require.NoError(t, err)
	assert.Equal(t, TaskPROpened, task.Kind)

	task, err = Route(KindPullRequest, body("synchronize"))
	require.NoError(t, err)
	assert.Equal(t, TaskPRUpdated, task.Kind)
}
