package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gitmaya/internal/command"
	"gitmaya/internal/lark/card"
	"gitmaya/internal/store"
	"gitmaya/internal/tasks"
)

// Reply tags the dispatcher produces; processLarkMessage branches on these.
const (
	replyCard = "card"
	replyText = "text"
	replyJobs = "jobs"
)

// buildDispatcher registers every supported verb. Informational verbs answer
// inline; mutating verbs enqueue a task and return its job id.
func (h *Handler) buildDispatcher() *command.Dispatcher {
	d := command.NewDispatcher()

	must := func(verb string, fn command.HandlerFunc) {
		if err := d.Register(verb, fn); err != nil {
			panic(err)
		}
	}

	must("/help", func(ctx context.Context, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
		return command.Reply{Tag: replyCard, Data: card.Help()}, nil
	})
	must("/man", func(ctx context.Context, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
		return command.Reply{Tag: replyCard, Data: card.Manual(cmd.Arg("command"))}, nil
	})
	must("@GitMaya", func(ctx context.Context, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
		return command.Reply{Tag: replyText, Data: "我在。发送 /help 查看可用命令。"}, nil
	})
	must("/view", h.cmdView)
	must("/setting", h.cmdSetting)
	must("/insight", h.cmdInsight)

	enqueue := func(verb, kind string) {
		must(verb, func(ctx context.Context, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
			return h.enqueueCommand(ctx, kind, cmd, mctx)
		})
	}
	enqueue("/close", tasks.TaskIssueClose)
	enqueue("/reopen", tasks.TaskIssueReopen)
	enqueue("/label", tasks.TaskIssueLabel)
	enqueue("/edit", tasks.TaskRepoEdit)
	enqueue("/link", tasks.TaskRepoLink)
	enqueue("/archive", tasks.TaskRepoArchive)
	enqueue("/unarchive", tasks.TaskRepoUnarchive)
	enqueue("/visit", tasks.TaskRepoVisibility)
	enqueue("/access", tasks.TaskUserAccess)
	enqueue("/new", tasks.TaskChatNew)
	enqueue("/match", tasks.TaskChatMatch)
	enqueue("/unbind", tasks.TaskChatUnbind)

	// /rename targets the thread's issue when issued inside one, else the
	// chat's repo.
	must("/rename", func(ctx context.Context, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
		kind := tasks.TaskRepoRename
		if mctx.RootID != "" {
			kind = tasks.TaskIssueEdit
		}
		return h.enqueueCommand(ctx, kind, cmd, mctx)
	})

	return d
}

func (h *Handler) enqueueCommand(ctx context.Context, kind string, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
	if h.pub == nil {
		return command.Reply{}, fmt.Errorf("task queue not connected")
	}
	jobID, err := h.pub.Enqueue(ctx, kind, tasks.CommandPayload{
		AppID:     mctx.AppID,
		ChatID:    mctx.ChatID,
		OpenID:    mctx.OpenID,
		MessageID: mctx.MessageID,
		RootID:    mctx.RootID,
		Args:      cmd.Args,
	})
	if err != nil {
		return command.Reply{}, err
	}
	return command.Reply{Tag: replyJobs, JobIDs: []string{jobID}}, nil
}

// cmdView answers with the GitHub page of the thread's issue or PR.
func (h *Handler) cmdView(ctx context.Context, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
	if mctx.RootID == "" {
		return command.Reply{Tag: replyCard, Data: card.NotFound("对应的 Issue / PR")}, nil
	}
	if issue, err := h.db.FindIssueByMessageID(ctx, mctx.RootID); err == nil {
		repo, err := h.db.GetRepoByID(ctx, issue.RepoID)
		if err != nil {
			return command.Reply{}, err
		}
		url := fmt.Sprintf("https://github.com/%s/issues/%d", repo.Name, issue.IssueNumber)
		return command.Reply{Tag: replyCard, Data: card.Info("🔍 "+issue.Title, url)}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return command.Reply{}, err
	}
	if pr, err := h.db.FindPullRequestByMessageID(ctx, mctx.RootID); err == nil {
		repo, err := h.db.GetRepoByID(ctx, pr.RepoID)
		if err != nil {
			return command.Reply{}, err
		}
		url := fmt.Sprintf("https://github.com/%s/pull/%d", repo.Name, pr.PullRequestNumber)
		return command.Reply{Tag: replyCard, Data: card.Info("🔍 "+pr.Title, url)}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return command.Reply{}, err
	}
	return command.Reply{Tag: replyCard, Data: card.NotFound("对应的 Issue / PR")}, nil
}

// cmdSetting shows the chat's repo binding.
func (h *Handler) cmdSetting(ctx context.Context, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
	repo, err := h.repoForChat(ctx, mctx.ChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return command.Reply{Tag: replyCard, Data: card.NotFound("本群绑定的仓库")}, nil
	}
	if err != nil {
		return command.Reply{}, err
	}
	lines := []string{
		"**仓库**：" + repo.Name,
		"**状态**：" + repo.Status,
	}
	if repo.Description.Valid && repo.Description.String != "" {
		lines = append(lines, "**描述**："+repo.Description.String)
	}
	return command.Reply{Tag: replyCard, Data: card.Info("⚙️ 群组设置", lines...)}, nil
}

// cmdInsight shows mirrored activity counts for the chat's repo.
func (h *Handler) cmdInsight(ctx context.Context, cmd command.Command, mctx command.MessageContext) (command.Reply, error) {
	repo, err := h.repoForChat(ctx, mctx.ChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return command.Reply{Tag: replyCard, Data: card.NotFound("本群绑定的仓库")}, nil
	}
	if err != nil {
		return command.Reply{}, err
	}
	issues, pulls, err := h.db.RepoActivity(ctx, repo.ID)
	if err != nil {
		return command.Reply{}, err
	}
	return command.Reply{Tag: replyCard, Data: card.Info("📊 "+repo.Name,
		fmt.Sprintf("**Issue**：%d", issues),
		fmt.Sprintf("**Pull Request**：%d", pulls),
	)}, nil
}

func (h *Handler) repoForChat(ctx context.Context, chatID string) (*store.Repo, error) {
	group, err := h.db.GetChatGroupByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return h.db.GetRepoByID(ctx, group.RepoID)
}
