package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"gitmaya/internal/events"
	"gitmaya/internal/ghapp"
	"gitmaya/internal/lark/card"
	"gitmaya/internal/logx"
	"gitmaya/internal/store"
)

// repoWiring is the chat-side context of one tracked repository: its
// installation, its mirror row, and (when matched) the active chat group and
// a messenger for that group's bot application.
type repoWiring struct {
	codeApp *store.CodeApplication
	repo    *store.Repo
	group   *store.ChatGroup
	msgr    Messenger
}

// wiringFor resolves a webhook event's repo down to its chat group. A nil
// wiring with nil error means the repo is not tracked and the event should be
// acked without work.
func (h *Handler) wiringFor(ctx context.Context, installationID, repoExternalID int64) (*repoWiring, error) {
	codeApp, err := h.db.GetCodeApplicationByInstallation(ctx, installationID)
	if errors.Is(err, sql.ErrNoRows) {
		logx.Structured("info", map[string]any{
			"event":           "task.untracked_installation",
			"installation_id": installationID,
		})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	repo, err := h.db.GetRepoByExternalID(ctx, codeApp.ID, repoExternalID)
	if errors.Is(err, sql.ErrNoRows) {
		logx.Structured("info", map[string]any{
			"event":            "task.untracked_repo",
			"installation_id":  installationID,
			"repo_external_id": repoExternalID,
		})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	w := &repoWiring{codeApp: codeApp, repo: repo}
	group, err := h.db.GetActiveChatGroupByRepo(ctx, repo.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return w, nil // tracked but unmatched: mirror rows, no cards
	}
	if err != nil {
		return nil, err
	}
	w.group = group
	imApp, err := h.db.GetIMApplicationByID(ctx, group.IMApplicationID)
	if err != nil {
		return nil, err
	}
	w.msgr = h.messenger(imApp.AppID, imApp.AppSecret)
	return w, nil
}

// repoCreated registers the installation and repo, then announces the repo to
// each org admin with a bound chat identity. The announcement card is the
// anchor for /new replies.
func (h *Handler) repoCreated(ctx context.Context, ev events.RepositoryEvent) error {
	codeApp, err := h.db.UpsertCodeApplication(ctx, ev.Installation.ID, ev.Repository.Owner.Login)
	if err != nil {
		return err
	}
	extra, _ := json.Marshal(map[string]any{
		"private": ev.Repository.Private,
		"owner":   ev.Repository.Owner.Login,
	})
	repo, err := h.db.UpsertRepo(ctx, codeApp.ID, ev.Repository.ID, ev.Repository.FullName, ev.Repository.Description, extra)
	if err != nil {
		return err
	}
	if repo.MessageID.Valid && repo.MessageID.String != "" {
		// Duplicate delivery; the card exists already.
		return nil
	}
	if h.gh == nil {
		return nil
	}

	gc, err := h.gh.InstallationClient(ctx, ev.Installation.ID)
	if err != nil {
		logx.Structured("error", map[string]any{
			"event": "task.repo_created.client",
			"repo":  ev.Repository.FullName,
			"error": err.Error(),
		})
		return nil
	}
	admins, err := ghapp.ListOrgAdmins(ctx, gc, ev.Repository.Owner.Login)
	if err != nil {
		logx.Structured("error", map[string]any{
			"event": "task.repo_created.admins",
			"repo":  ev.Repository.FullName,
			"error": err.Error(),
		})
		return nil
	}

	msgr := h.messenger(h.cfg.LarkAppID, h.cfg.LarkAppSecret)
	if codeApp.TeamID.Valid {
		if imApp, err := h.db.GetIMApplicationForTeam(ctx, codeApp.TeamID.String); err == nil {
			msgr = h.messenger(imApp.AppID, imApp.AppSecret)
		}
	}
	cardJSON := card.Repo(ev.Repository.FullName, ev.Repository.Description, githubURL(ev.Repository.FullName))
	for _, admin := range admins {
		openID, err := h.db.ResolveIMOpenID(ctx, admin)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		msgID, err := msgr.SendCardToUser(ctx, openID, cardJSON)
		if err != nil {
			logx.Structured("error", map[string]any{
				"event": "task.repo_created.notify",
				"repo":  ev.Repository.FullName,
				"admin": admin,
				"error": err.Error(),
			})
			continue
		}
		if !repo.MessageID.Valid || repo.MessageID.String == "" {
			if err := h.db.SetRepoMessageID(ctx, repo.ID, msgID); err != nil {
				return err
			}
			repo.MessageID = sql.NullString{String: msgID, Valid: true}
		}
	}
	return nil
}

func (h *Handler) issueOpened(ctx context.Context, ev events.IssuesEvent) error {
	w, err := h.wiringFor(ctx, ev.Installation.ID, ev.Repository.ID)
	if err != nil || w == nil {
		return err
	}
	extra, _ := json.Marshal(map[string]any{
		"state":  ev.Issue.State,
		"author": ev.Issue.User.Login,
	})
	issue, created, err := h.db.CreateIssueIfAbsent(ctx, w.repo.ID, ev.Issue.Number, ev.Issue.Title, ev.Issue.Body, extra)
	if err != nil {
		return err
	}
	if !created && issue.MessageID.Valid {
		// Replayed delivery; the mirror and its card exist.
		return nil
	}
	if w.msgr == nil || w.group == nil {
		return nil
	}
	cardJSON := card.Issue(ev.Repository.FullName, ev.Issue.Number, ev.Issue.Title, ev.Issue.Body,
		ev.Issue.User.Login, "open", issueURL(ev.Repository.FullName, ev.Issue.Number))
	msgID, err := w.msgr.SendCard(ctx, w.group.ChatID, cardJSON)
	if err != nil {
		logx.Structured("error", map[string]any{
			"event": "task.issue_opened.send",
			"repo":  ev.Repository.FullName,
			"issue": ev.Issue.Number,
			"error": err.Error(),
		})
		return nil
	}
	return h.db.SetIssueMessageID(ctx, issue.ID, msgID)
}

// issueUpdated refreshes the mirror and its card. An update for an issue that
// was never mirrored is a no-op, never a create.
func (h *Handler) issueUpdated(ctx context.Context, ev events.IssuesEvent) error {
	w, err := h.wiringFor(ctx, ev.Installation.ID, ev.Repository.ID)
	if err != nil || w == nil {
		return err
	}
	extra, _ := json.Marshal(map[string]any{
		"state":  ev.Issue.State,
		"author": ev.Issue.User.Login,
	})
	issue, err := h.db.UpdateIssue(ctx, w.repo.ID, ev.Issue.Number, ev.Issue.Title, ev.Issue.Body, extra)
	if errors.Is(err, sql.ErrNoRows) {
		logx.Structured("info", map[string]any{
			"event":  "task.issue_updated.absent",
			"repo":   ev.Repository.FullName,
			"issue":  ev.Issue.Number,
			"action": ev.Action,
		})
		return nil
	}
	if err != nil {
		return err
	}
	if w.msgr == nil || !issue.MessageID.Valid {
		return nil
	}
	cardJSON := card.Issue(ev.Repository.FullName, ev.Issue.Number, ev.Issue.Title, ev.Issue.Body,
		ev.Issue.User.Login, ev.Issue.State, issueURL(ev.Repository.FullName, ev.Issue.Number))
	if err := w.msgr.UpdateCard(ctx, issue.MessageID.String, cardJSON); err != nil {
		logx.Structured("error", map[string]any{
			"event": "task.issue_updated.card",
			"repo":  ev.Repository.FullName,
			"issue": ev.Issue.Number,
			"error": err.Error(),
		})
	}
	return nil
}

// commentCreated relays a GitHub comment into the entity's chat thread.
func (h *Handler) commentCreated(ctx context.Context, ev events.IssueCommentEvent) error {
	w, err := h.wiringFor(ctx, ev.Installation.ID, ev.Repository.ID)
	if err != nil || w == nil {
		return err
	}
	var rootID string
	if ev.Issue.PullRequest != nil {
		pr, err := h.db.GetPullRequest(ctx, w.repo.ID, ev.Issue.Number)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if pr.MessageID.Valid {
			rootID = pr.MessageID.String
		}
	} else {
		issue, err := h.db.GetIssue(ctx, w.repo.ID, ev.Issue.Number)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if issue.MessageID.Valid {
			rootID = issue.MessageID.String
		}
	}
	if rootID == "" || w.msgr == nil {
		return nil
	}
	if _, err := w.msgr.ReplyText(ctx, rootID, ev.Comment.User.Login+": "+ev.Comment.Body); err != nil {
		logx.Structured("error", map[string]any{
			"event": "task.comment_created.reply",
			"repo":  ev.Repository.FullName,
			"issue": ev.Issue.Number,
			"error": err.Error(),
		})
	}
	return nil
}

func (h *Handler) pullRequestOpened(ctx context.Context, ev events.PullRequestEvent) error {
	w, err := h.wiringFor(ctx, ev.Installation.ID, ev.Repository.ID)
	if err != nil || w == nil {
		return err
	}
	extra, _ := json.Marshal(map[string]any{
		"state":  ev.PullRequest.State,
		"author": ev.PullRequest.User.Login,
		"base":   ev.PullRequest.Base.Ref,
	})
	pr, created, err := h.db.CreatePullRequestIfAbsent(ctx, w.repo.ID, ev.PullRequest.Number,
		ev.PullRequest.Title, ev.PullRequest.Body, ev.PullRequest.Head.Ref, extra)
	if err != nil {
		return err
	}
	if !created && pr.MessageID.Valid {
		return nil
	}
	if w.msgr == nil || w.group == nil {
		return nil
	}
	cardJSON := card.PullRequest(ev.Repository.FullName, ev.PullRequest.Number, ev.PullRequest.Title,
		ev.PullRequest.Body, ev.PullRequest.User.Login, "open", ev.PullRequest.Head.Ref,
		pullURL(ev.Repository.FullName, ev.PullRequest.Number))
	msgID, err := w.msgr.SendCard(ctx, w.group.ChatID, cardJSON)
	if err != nil {
		logx.Structured("error", map[string]any{
			"event": "task.pr_opened.send",
			"repo":  ev.Repository.FullName,
			"pr":    ev.PullRequest.Number,
			"error": err.Error(),
		})
		return nil
	}
	return h.db.SetPullRequestMessageID(ctx, pr.ID, msgID)
}

func (h *Handler) pullRequestUpdated(ctx context.Context, ev events.PullRequestEvent) error {
	w, err := h.wiringFor(ctx, ev.Installation.ID, ev.Repository.ID)
	if err != nil || w == nil {
		return err
	}
	state := ev.PullRequest.State
	if ev.PullRequest.Merged {
		state = "merged"
	}
	extra, _ := json.Marshal(map[string]any{
		"state":  state,
		"author": ev.PullRequest.User.Login,
		"base":   ev.PullRequest.Base.Ref,
	})
	pr, err := h.db.UpdatePullRequest(ctx, w.repo.ID, ev.PullRequest.Number,
		ev.PullRequest.Title, ev.PullRequest.Body, ev.PullRequest.Head.Ref, extra)
	if errors.Is(err, sql.ErrNoRows) {
		logx.Structured("info", map[string]any{
			"event":  "task.pr_updated.absent",
			"repo":   ev.Repository.FullName,
			"pr":     ev.PullRequest.Number,
			"action": ev.Action,
		})
		return nil
	}
	if err != nil {
		return err
	}
	if w.msgr == nil || !pr.MessageID.Valid {
		return nil
	}
	cardJSON := card.PullRequest(ev.Repository.FullName, ev.PullRequest.Number, ev.PullRequest.Title,
		ev.PullRequest.Body, ev.PullRequest.User.Login, state, ev.PullRequest.Head.Ref,
		pullURL(ev.Repository.FullName, ev.PullRequest.Number))
	if err := w.msgr.UpdateCard(ctx, pr.MessageID.String, cardJSON); err != nil {
		logx.Structured("error", map[string]any{
			"event": "task.pr_updated.card",
			"repo":  ev.Repository.FullName,
			"pr":    ev.PullRequest.Number,
			"error": err.Error(),
		})
	}
	return nil
}

// push replies the commit log under the PR whose head branch matches the
// pushed ref. A push to a branch with no tracked PR is a plain no-op.
func (h *Handler) push(ctx context.Context, ev events.PushEvent) error {
	w, err := h.wiringFor(ctx, ev.Installation.ID, ev.Repository.ID)
	if err != nil || w == nil {
		return err
	}
	branch := strings.TrimPrefix(ev.Ref, "refs/heads/")
	pr, err := h.db.FindPullRequestByHeadRef(ctx, w.repo.ID, branch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if w.msgr == nil || !pr.MessageID.Valid || len(ev.Commits) == 0 {
		return nil
	}
	lines := make([]card.CommitLine, 0, len(ev.Commits))
	for _, c := range ev.Commits {
		lines = append(lines, card.CommitLine{SHA: c.ID, Message: c.Message, Author: c.Author.Username})
	}
	if _, err := w.msgr.ReplyCard(ctx, pr.MessageID.String, card.PushSummary(branch, lines)); err != nil {
		logx.Structured("error", map[string]any{
			"event":  "task.push.reply",
			"repo":   ev.Repository.FullName,
			"branch": branch,
			"error":  err.Error(),
		})
	}
	return nil
}

// orgMemberAdded registers the new member's identity and team membership.
// Replays find the existing rows and change nothing.
func (h *Handler) orgMemberAdded(ctx context.Context, ev events.OrganizationEvent) error {
	bind, created, err := h.db.EnsureBindUser(ctx, store.PlatformGitHub,
		ev.Membership.User.Login, ev.Membership.User.Login)
	if err != nil {
		return err
	}
	codeApp, err := h.db.UpsertCodeApplication(ctx, ev.Installation.ID, ev.Organization.Login)
	if err != nil {
		return err
	}
	if codeApp.TeamID.Valid {
		if err := h.db.AddTeamMember(ctx, codeApp.TeamID.String, bind.ID); err != nil {
			return err
		}
	}
	logx.Structured("info", map[string]any{
		"event":   "task.org_member_added",
		"org":     ev.Organization.Login,
		"member":  ev.Membership.User.Login,
		"created": created,
	})
	return nil
}
