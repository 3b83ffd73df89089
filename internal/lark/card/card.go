// Package card builds Lark interactive card payloads for mirrored GitHub
// entities. Builders are pure: they return the serialized card JSON and touch
// no network or storage.
package card

import (
	"encoding/json"
	"fmt"
	"strings"
)

func render(card map[string]any) string {
	payload, _ := json.Marshal(card)
	return string(payload)
}

func base(title, color string, elements []map[string]any) map[string]any {
	return map[string]any{
		"schema": "2.0",
		"config": map[string]any{
			"wide_screen_mode": true,
		},
		"header": map[string]any{
			"title": map[string]any{
				"tag":     "plain_text",
				"content": title,
			},
			"template": color,
		},
		"body": map[string]any{
			"elements": elements,
		},
	}
}

func markdown(content string) map[string]any {
	return map[string]any{
		"tag":     "markdown",
		"content": content,
	}
}

func linkButton(text, url string) map[string]any {
	return map[string]any{
		"tag": "button",
		"text": map[string]any{
			"tag":     "plain_text",
			"content": text,
		},
		"type": "default",
		"behaviors": []map[string]any{
			{"type": "open_url", "default_url": url},
		},
	}
}

func actionRow(buttons ...map[string]any) map[string]any {
	return map[string]any{
		"tag":     "action",
		"actions": buttons,
	}
}

// stateColor maps a GitHub entity state to a card header template.
func stateColor(state string) string {
	switch state {
	case "open", "opened":
		return "blue"
	case "closed":
		return "red"
	case "merged":
		return "purple"
	default:
		return "grey"
	}
}

// Repo renders the card announcing a newly installed repository.
func Repo(fullName, description, htmlURL string) string {
	elements := []map[string]any{
		markdown("**仓库**：" + fullName),
	}
	if description != "" {
		elements = append(elements, markdown("**描述**："+description))
	}
	elements = append(elements,
		markdown("发送 `/match "+htmlURL+" <群名称>` 将该仓库绑定到一个群。"),
		actionRow(linkButton("在 GitHub 查看", htmlURL)),
	)
	return render(base("📦 新仓库接入", "blue", elements))
}

// Issue renders the card mirroring an issue into its chat group.
func Issue(repoFullName string, number int, title, body, author, state, htmlURL string) string {
	header := fmt.Sprintf("#%d %s", number, title)
	elements := []map[string]any{
		markdown("**仓库**：" + repoFullName),
		markdown("**发起人**：" + author),
		markdown("**状态**：" + state),
	}
	if body != "" {
		elements = append(elements, markdown(truncate(body, 500)))
	}
	elements = append(elements, actionRow(linkButton("在 GitHub 查看", htmlURL)))
	return render(base("📝 "+header, stateColor(state), elements))
}

// PullRequest renders the card mirroring a pull request.
func PullRequest(repoFullName string, number int, title, body, author, state, headRef, htmlURL string) string {
	header := fmt.Sprintf("#%d %s", number, title)
	elements := []map[string]any{
		markdown("**仓库**：" + repoFullName),
		markdown("**发起人**：" + author),
		markdown("**分支**：" + headRef),
		markdown("**状态**：" + state),
	}
	if body != "" {
		elements = append(elements, markdown(truncate(body, 500)))
	}
	elements = append(elements, actionRow(linkButton("在 GitHub 查看", htmlURL)))
	return render(base("🔀 "+header, stateColor(state), elements))
}

// PushSummary renders the commit log replied under a pull request thread.
func PushSummary(ref string, commits []CommitLine) string {
	var b strings.Builder
	for _, c := range commits {
		b.WriteString("• `")
		b.WriteString(shortSHA(c.SHA))
		b.WriteString("` ")
		b.WriteString(firstLine(c.Message))
		if c.Author != "" {
			b.WriteString("（")
			b.WriteString(c.Author)
			b.WriteString("）")
		}
		b.WriteString("\n")
	}
	elements := []map[string]any{
		markdown("**分支**：" + ref),
		markdown(b.String()),
	}
	return render(base(fmt.Sprintf("⬆️ 新推送（%d 个提交）", len(commits)), "turquoise", elements))
}

// CommitLine is one entry in a push summary.
type CommitLine struct {
	SHA     string
	Message string
	Author  string
}

// Info renders a plain informational card, one markdown element per line.
func Info(title string, lines ...string) string {
	elements := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		elements = append(elements, markdown(l))
	}
	return render(base(title, "blue", elements))
}

// Success renders a short green confirmation tip.
func Success(message string) string {
	return render(base("✅ 操作成功", "green", []map[string]any{markdown(message)}))
}

// Failure renders a short red failure tip.
func Failure(message string) string {
	return render(base("❌ 操作失败", "red", []map[string]any{markdown(message)}))
}

// NotFound renders the tip shown when a command targets a missing entity.
func NotFound(what string) string {
	return render(base("🔍 未找到", "orange", []map[string]any{
		markdown("没有找到" + what + "，请确认后重试。"),
	}))
}

// BindPrompt renders the tip asking the user to bind their GitHub identity,
// shown when a mutating command finds no bound account.
func BindPrompt(oauthURL string) string {
	return render(base("🔗 绑定 GitHub 账号", "orange", []map[string]any{
		markdown("该操作需要以你的 GitHub 身份执行，请先完成绑定。"),
		actionRow(linkButton("立即绑定", oauthURL)),
	}))
}

// Welcome renders the card posted when a chat group is created for a repo.
func Welcome(repoFullName string) string {
	return render(base("🎉 群组已创建", "green", []map[string]any{
		markdown("本群已与仓库 **" + repoFullName + "** 绑定。"),
		markdown("仓库的 Issue、PR 与推送会同步到本群；发送 `/help` 查看可用命令。"),
	}))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
