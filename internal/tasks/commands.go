package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"

	"gitmaya/internal/ghapp"
	"gitmaya/internal/lark/card"
	"gitmaya/internal/logx"
	"gitmaya/internal/store"
)

// commandTarget is what a chat command acts on, resolved from where it was
// issued: a thread under an issue/PR/repo card targets that entity, a bound
// group chat targets the group's repo.
type commandTarget struct {
	msgr    Messenger
	imApp   *store.IMApplication
	codeApp *store.CodeApplication
	repo    *store.Repo
	issue   *store.Issue
	pr      *store.PullRequest
}

func (h *Handler) resolveCommandTarget(ctx context.Context, p CommandPayload) (*commandTarget, error) {
	imApp, msgr, err := h.messengerForApp(ctx, p.AppID)
	if err != nil {
		return nil, err
	}
	t := &commandTarget{msgr: msgr, imApp: imApp}

	if p.RootID != "" {
		if issue, err := h.db.FindIssueByMessageID(ctx, p.RootID); err == nil {
			t.issue = issue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if t.issue == nil {
			if pr, err := h.db.FindPullRequestByMessageID(ctx, p.RootID); err == nil {
				t.pr = pr
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		}
		if t.issue == nil && t.pr == nil {
			if repo, err := h.db.GetRepoByMessageID(ctx, p.RootID); err == nil {
				t.repo = repo
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		}
	}

	switch {
	case t.issue != nil:
		t.repo, err = h.db.GetRepoByID(ctx, t.issue.RepoID)
	case t.pr != nil:
		t.repo, err = h.db.GetRepoByID(ctx, t.pr.RepoID)
	case t.repo != nil:
		// already resolved from the repo card
	default:
		var group *store.ChatGroup
		group, err = h.db.GetChatGroupByChatID(ctx, p.ChatID)
		if err == nil {
			t.repo, err = h.db.GetRepoByID(ctx, group.RepoID)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return t, nil // unresolvable target; handlers reply a not-found tip
	}
	if err != nil {
		return nil, err
	}

	if t.repo != nil {
		t.codeApp, err = h.db.GetCodeApplicationByID(ctx, t.repo.CodeApplicationID)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// tip replies a card under the command message. Failures here are logged and
// dropped; a tip must never fail the task.
func (t *commandTarget) tip(ctx context.Context, p CommandPayload, cardJSON string) {
	if t == nil || t.msgr == nil {
		return
	}
	if _, err := t.msgr.ReplyCard(ctx, p.MessageID, cardJSON); err != nil {
		logx.Structured("error", map[string]any{
			"event":   "task.command.tip",
			"chat_id": p.ChatID,
			"error":   err.Error(),
		})
	}
}

// ownerRepo splits the stored "owner/name" full name.
func (t *commandTarget) ownerRepo() (string, string) {
	if t.repo == nil {
		return "", ""
	}
	owner, name, ok := strings.Cut(t.repo.Name, "/")
	if !ok {
		return t.codeApp.OrgName, t.repo.Name
	}
	return owner, name
}

// userClientFor resolves a chat sender to a GitHub client on their own OAuth
// token. ErrNoBoundIdentity when the sender never bound or never authorized.
func (h *Handler) userClientFor(ctx context.Context, openID string) (*github.Client, string, error) {
	login, token, err := h.db.ResolveCodeLogin(ctx, openID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNoBoundIdentity
	}
	if err != nil {
		return nil, "", err
	}
	if token == "" {
		return nil, login, ErrNoBoundIdentity
	}
	return ghapp.UserClient(ctx, token), login, nil
}

// oauthBindURL is the GitHub authorize URL that lands back on our OAuth
// callback. The sender's open_id rides in state so the callback can join the
// two identities.
func (h *Handler) oauthBindURL(openID string) string {
	q := url.Values{}
	q.Set("client_id", h.cfg.GitHubClientID)
	q.Set("redirect_uri", h.cfg.Domain+"/api/github/oauth")
	if openID != "" {
		q.Set("state", openID)
	}
	return "https://github.com/login/oauth/authorize?" + q.Encode()
}

// threadNumber returns the issue/PR number a thread command targets, or false
// when the thread maps to neither.
func (t *commandTarget) threadNumber() (int, bool) {
	switch {
	case t.issue != nil:
		return t.issue.IssueNumber, true
	case t.pr != nil:
		return t.pr.PullRequestNumber, true
	}
	return 0, false
}

// issueClose closes the thread's issue or PR as the sender. No pre-check of
// the current state: the external call is issued and its result decides the
// tip.
func (h *Handler) issueClose(ctx context.Context, p CommandPayload) error {
	return h.issueStateChange(ctx, p, "closed")
}

func (h *Handler) issueReopen(ctx context.Context, p CommandPayload) error {
	return h.issueStateChange(ctx, p, "open")
}

func (h *Handler) issueStateChange(ctx context.Context, p CommandPayload, state string) error {
	t, err := h.resolveCommandTarget(ctx, p)
	if err != nil {
		return err
	}
	number, ok := t.threadNumber()
	if !ok {
		t.tip(ctx, p, card.NotFound("对应的 Issue / PR"))
		return nil
	}
	gc, _, err := h.userClientFor(ctx, p.OpenID)
	if errors.Is(err, ErrNoBoundIdentity) {
		t.tip(ctx, p, card.BindPrompt(h.oauthBindURL(p.OpenID)))
		return nil
	}
	if err != nil {
		return err
	}
	owner, name := t.ownerRepo()
	// Pull requests are issues to the issues API, so one call covers both.
	if state == "closed" {
		_, err = ghapp.CloseIssue(ctx, gc, owner, name, number)
	} else {
		_, err = ghapp.ReopenIssue(ctx, gc, owner, name, number)
	}
	if err != nil {
		t.tip(ctx, p, card.Failure(fmt.Sprintf("GitHub 调用失败：%v", err)))
		return nil
	}
	if state == "closed" {
		t.tip(ctx, p, card.Success(fmt.Sprintf("#%d 已关闭", number)))
	} else {
		t.tip(ctx, p, card.Success(fmt.Sprintf("#%d 已重新打开", number)))
	}
	return nil
}

// issueEdit renames the thread's issue title (/rename inside a thread).
func (h *Handler) issueEdit(ctx context.Context, p CommandPayload) error {
	t, err := h.resolveCommandTarget(ctx, p)
	if err != nil {
		return err
	}
	number, ok := t.threadNumber()
	if !ok {
		t.tip(ctx, p, card.NotFound("对应的 Issue / PR"))
		return nil
	}
	title := p.Args["name"]
	if title == "" {
		t.tip(ctx, p, card.Failure("用法：/rename <name>"))
		return nil
	}
	gc, _, err := h.userClientFor(ctx, p.OpenID)
	if errors.Is(err, ErrNoBoundIdentity) {
		t.tip(ctx, p, card.BindPrompt(h.oauthBindURL(p.OpenID)))
		return nil
	}
	if err != nil {
		return err
	}
	owner, name := t.ownerRepo()
	if err := ghapp.EditIssueTitle(ctx, gc, owner, name, number, title); err != nil {
		t.tip(ctx, p, card.Failure(fmt.Sprintf("GitHub 调用失败：%v", err)))
		return nil
	}
	t.tip(ctx, p, card.Success(fmt.Sprintf("#%d 标题已更新", number)))
	return nil
}

func (h *Handler) issueLabel(ctx context.Context, p CommandPayload) error {
	t, err := h.resolveCommandTarget(ctx, p)
	if err != nil {
		return err
	}
	number, ok := t.threadNumber()
	if !ok {
		t.tip(ctx, p, card.NotFound("对应的 Issue / PR"))
		return nil
	}
	label := p.Args["label"]
	if label == "" {
		t.tip(ctx, p, card.Failure("用法：/label <label>"))
		return nil
	}
	gc, _, err := h.userClientFor(ctx, p.OpenID)
	if errors.Is(err, ErrNoBoundIdentity) {
		t.tip(ctx, p, card.BindPrompt(h.oauthBindURL(p.OpenID)))
		return nil
	}
	if err != nil {
		return err
	}
	owner, name := t.ownerRepo()
	if err := ghapp.AddIssueLabel(ctx, gc, owner, name, number, label); err != nil {
		t.tip(ctx, p, card.Failure(fmt.Sprintf("GitHub 调用失败：%v", err)))
		return nil
	}
	t.tip(ctx, p, card.Success(fmt.Sprintf("#%d 已添加标签 %s", number, label)))
	return nil
}

// repoOp runs one app-authorized repository mutation with the shared
// resolve/tip plumbing.
func (h *Handler) repoOp(ctx context.Context, p CommandPayload, fn func(ctx context.Context, gc *github.Client, t *commandTarget) (string, error)) error {
	t, err := h.resolveCommandTarget(ctx, p)
	if err != nil {
		return err
	}
	if t.repo == nil || t.codeApp == nil {
		t.tip(ctx, p, card.NotFound("绑定的仓库"))
		return nil
	}
	if h.gh == nil {
		t.tip(ctx, p, card.Failure("GitHub 应用未配置"))
		return nil
	}
	gc, err := h.gh.InstallationClient(ctx, t.codeApp.InstallationID)
	if err != nil {
		t.tip(ctx, p, card.Failure(fmt.Sprintf("GitHub 调用失败：%v", err)))
		return nil
	}
	success, err := fn(ctx, gc, t)
	if err != nil {
		t.tip(ctx, p, card.Failure(fmt.Sprintf("GitHub 调用失败：%v", err)))
		return nil
	}
	t.tip(ctx, p, card.Success(success))
	return nil
}

func (h *Handler) repoRename(ctx context.Context, p CommandPayload) error {
	newName := p.Args["name"]
	if newName == "" {
		return h.usageTip(ctx, p, "/rename <name>")
	}
	return h.repoOp(ctx, p, func(ctx context.Context, gc *github.Client, t *commandTarget) (string, error) {
		owner, name := t.ownerRepo()
		if err := ghapp.RenameRepo(ctx, gc, owner, name, newName); err != nil {
			return "", err
		}
		if err := h.db.RenameRepo(ctx, t.repo.ID, owner+"/"+newName); err != nil {
			return "", err
		}
		return "仓库已重命名为 " + newName, nil
	})
}

func (h *Handler) repoEdit(ctx context.Context, p CommandPayload) error {
	description := p.Args["description"]
	if description == "" {
		return h.usageTip(ctx, p, "/edit <description>")
	}
	return h.repoOp(ctx, p, func(ctx context.Context, gc *github.Client, t *commandTarget) (string, error) {
		owner, name := t.ownerRepo()
		if err := ghapp.EditRepoDescription(ctx, gc, owner, name, description); err != nil {
			return "", err
		}
		if err := h.db.SetRepoDescription(ctx, t.repo.ID, description); err != nil {
			return "", err
		}
		return "仓库描述已更新", nil
	})
}

func (h *Handler) repoLink(ctx context.Context, p CommandPayload) error {
	link := p.Args["url"]
	if link == "" {
		return h.usageTip(ctx, p, "/link <url>")
	}
	return h.repoOp(ctx, p, func(ctx context.Context, gc *github.Client, t *commandTarget) (string, error) {
		owner, name := t.ownerRepo()
		if err := ghapp.SetRepoHomepage(ctx, gc, owner, name, link); err != nil {
			return "", err
		}
		return "仓库主页已设置为 " + link, nil
	})
}

func (h *Handler) repoArchive(ctx context.Context, p CommandPayload) error {
	return h.repoOp(ctx, p, func(ctx context.Context, gc *github.Client, t *commandTarget) (string, error) {
		owner, name := t.ownerRepo()
		if err := ghapp.SetRepoArchived(ctx, gc, owner, name, true); err != nil {
			return "", err
		}
		if err := h.db.SetRepoStatus(ctx, t.repo.ID, store.RepoStatusArchived); err != nil {
			return "", err
		}
		return "仓库已归档", nil
	})
}

func (h *Handler) repoUnarchive(ctx context.Context, p CommandPayload) error {
	return h.repoOp(ctx, p, func(ctx context.Context, gc *github.Client, t *commandTarget) (string, error) {
		owner, name := t.ownerRepo()
		if err := ghapp.SetRepoArchived(ctx, gc, owner, name, false); err != nil {
			return "", err
		}
		if err := h.db.SetRepoStatus(ctx, t.repo.ID, store.RepoStatusActive); err != nil {
			return "", err
		}
		return "仓库已取消归档", nil
	})
}

func (h *Handler) repoVisibility(ctx context.Context, p CommandPayload) error {
	visibility := p.Args["visibility"]
	if visibility != "public" && visibility != "private" {
		return h.usageTip(ctx, p, "/visit <public|private>")
	}
	return h.repoOp(ctx, p, func(ctx context.Context, gc *github.Client, t *commandTarget) (string, error) {
		owner, name := t.ownerRepo()
		if err := ghapp.SetRepoVisibility(ctx, gc, owner, name, visibility); err != nil {
			return "", err
		}
		return "仓库可见性已设置为 " + visibility, nil
	})
}

func (h *Handler) userAccess(ctx context.Context, p CommandPayload) error {
	permission := p.Args["permission"]
	username := p.Args["username"]
	if permission == "" || username == "" {
		return h.usageTip(ctx, p, "/access <permission> <username>")
	}
	return h.repoOp(ctx, p, func(ctx context.Context, gc *github.Client, t *commandTarget) (string, error) {
		owner, name := t.ownerRepo()
		if err := ghapp.AddCollaborator(ctx, gc, owner, name, username, permission); err != nil {
			return "", err
		}
		return fmt.Sprintf("已邀请 %s（%s）", username, permission), nil
	})
}

// chatNew creates a fresh chat group for the target repo and binds it.
func (h *Handler) chatNew(ctx context.Context, p CommandPayload) error {
	t, err := h.resolveCommandTarget(ctx, p)
	if err != nil {
		return err
	}
	if t.repo == nil {
		t.tip(ctx, p, card.NotFound("对应的仓库"))
		return nil
	}
	if _, err := h.db.GetActiveChatGroupByRepo(ctx, t.repo.ID); err == nil {
		t.tip(ctx, p, card.Failure("该仓库已绑定群组，先解绑后再试。"))
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	name := p.Args["name"]
	if name == "" {
		name = t.repo.Name
	}
	chatID, err := t.msgr.CreateChatGroup(ctx, name, []string{p.OpenID})
	if err != nil {
		t.tip(ctx, p, card.Failure(fmt.Sprintf("群组创建失败：%v", err)))
		return nil
	}
	if _, err := h.db.CreateChatGroup(ctx, t.repo.ID, t.imApp.ID, chatID, name); err != nil {
		logx.Structured("error", map[string]any{
			"event":   "task.chat_new.bind",
			"repo":    t.repo.Name,
			"chat_id": chatID,
			"error":   err.Error(),
		})
		t.tip(ctx, p, card.Failure("群组已创建但绑定失败，请重试 /match。"))
		return nil
	}
	if _, err := t.msgr.SendCard(ctx, chatID, card.Welcome(t.repo.Name)); err != nil {
		logx.Structured("error", map[string]any{
			"event":   "task.chat_new.welcome",
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
	t.tip(ctx, p, card.Success("群组 "+name+" 已创建并绑定 "+t.repo.Name))
	return nil
}

// chatUnbind releases the chat's repo binding so the repo can be matched to
// another group.
func (h *Handler) chatUnbind(ctx context.Context, p CommandPayload) error {
	t, err := h.resolveCommandTarget(ctx, p)
	if err != nil {
		return err
	}
	if t.repo == nil {
		t.tip(ctx, p, card.NotFound("本群绑定的仓库"))
		return nil
	}
	group, err := h.db.GetActiveChatGroupByRepo(ctx, t.repo.ID)
	if errors.Is(err, sql.ErrNoRows) {
		t.tip(ctx, p, card.Failure("该仓库未绑定群组。"))
		return nil
	}
	if err != nil {
		return err
	}
	if err := h.db.DeactivateChatGroup(ctx, group.ID); err != nil {
		return err
	}
	t.tip(ctx, p, card.Success("已解除 "+t.repo.Name+" 与本群的绑定"))
	return nil
}

// chatMatch binds the chat the command was issued in to the repo named by its
// URL argument.
func (h *Handler) chatMatch(ctx context.Context, p CommandPayload) error {
	imApp, msgr, err := h.messengerForApp(ctx, p.AppID)
	if err != nil {
		return err
	}
	t := &commandTarget{msgr: msgr, imApp: imApp}

	owner, name, ok := ghapp.ParseRepoURL(p.Args["repo_url"])
	if !ok {
		t.tip(ctx, p, card.Failure("用法：/match <repo_url> <chat_name>"))
		return nil
	}
	codeApp, err := h.db.GetCodeApplicationByOrg(ctx, owner)
	if errors.Is(err, sql.ErrNoRows) {
		t.tip(ctx, p, card.NotFound("仓库 "+owner+"/"+name+" 的应用安装"))
		return nil
	}
	if err != nil {
		return err
	}
	repo, err := h.db.GetRepoByName(ctx, codeApp.ID, owner+"/"+name)
	if errors.Is(err, sql.ErrNoRows) {
		t.tip(ctx, p, card.NotFound("仓库 "+owner+"/"+name))
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := h.db.GetActiveChatGroupByRepo(ctx, repo.ID); err == nil {
		t.tip(ctx, p, card.Failure("该仓库已绑定群组。"))
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	groupName := p.Args["chat_name"]
	if groupName == "" {
		groupName = repo.Name
	}
	if _, err := h.db.CreateChatGroup(ctx, repo.ID, imApp.ID, p.ChatID, groupName); err != nil {
		// Likely lost a race with a concurrent match on the same repo.
		t.tip(ctx, p, card.Failure("绑定失败，该仓库可能刚被其他群绑定。"))
		return nil
	}
	if _, err := msgr.SendCard(ctx, p.ChatID, card.Welcome(repo.Name)); err != nil {
		logx.Structured("error", map[string]any{
			"event":   "task.chat_match.welcome",
			"chat_id": p.ChatID,
			"error":   err.Error(),
		})
	}
	return nil
}

func (h *Handler) usageTip(ctx context.Context, p CommandPayload, usage string) error {
	t, err := h.resolveCommandTarget(ctx, p)
	if err != nil {
		return err
	}
	t.tip(ctx, p, card.Failure("用法："+usage))
	return nil
}
