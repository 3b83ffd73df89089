package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/labstack/echo/v4"

	"gitmaya/internal/command"
	"gitmaya/internal/ghapp"
	"gitmaya/internal/lark"
	"gitmaya/internal/lark/card"
	"gitmaya/internal/store"
	"gitmaya/internal/tasks"
)

// larkEventEnvelope covers the url_verification handshake and the v2 event
// schema in one shape.
type larkEventEnvelope struct {
	Encrypt   string `json:"encrypt"`
	Challenge string `json:"challenge"`
	Type      string `json:"type"`
	Token     string `json:"token"`
	Header    struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Token     string `json:"token"`
		AppID     string `json:"app_id"`
	} `json:"header"`
	Event json.RawMessage `json:"event"`
}

type larkMessageEvent struct {
	Sender struct {
		SenderID struct {
			OpenID string `json:"open_id"`
		} `json:"sender_id"`
	} `json:"sender"`
	Message struct {
		MessageID   string `json:"message_id"`
		RootID      string `json:"root_id"`
		ParentID    string `json:"parent_id"`
		ChatID      string `json:"chat_id"`
		ChatType    string `json:"chat_type"`
		MessageType string `json:"message_type"`
		Content     string `json:"content"`
		Mentions    []struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		} `json:"mentions"`
	} `json:"message"`
}

type larkCardAction struct {
	Operator struct {
		OpenID string `json:"open_id"`
	} `json:"operator"`
	Context struct {
		OpenMessageID string `json:"open_message_id"`
		OpenChatID    string `json:"open_chat_id"`
	} `json:"context"`
	Action struct {
		Value map[string]string `json:"value"`
	} `json:"action"`
}

// LarkHook is the event ingress for one bot application. It answers the
// url_verification challenge, checks the verification token, and hands
// message events and card callbacks to the command dispatcher.
func (h *Handler) LarkHook(c echo.Context) error {
	appID := c.Param("app_id")
	var env larkEventEnvelope
	if err := json.NewDecoder(c.Request().Body).Decode(&env); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if env.Encrypt != "" {
		key := h.larkEncryptKey(c.Request().Context(), appID)
		if key == "" {
			return writeError(c, http.StatusBadRequest, "missing_encrypt_key", "encrypted delivery but no encrypt key configured", nil)
		}
		plain, err := lark.DecryptEvent(key, env.Encrypt)
		if err != nil {
			return writeError(c, http.StatusBadRequest, "decrypt_failed", "event decryption failed", nil)
		}
		env = larkEventEnvelope{}
		if err := json.Unmarshal(plain, &env); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
	}
	if env.Challenge != "" {
		return c.JSON(http.StatusOK, map[string]string{"challenge": env.Challenge})
	}

	token := env.Header.Token
	if token == "" {
		token = env.Token
	}
	if !h.larkTokenValid(c.Request().Context(), appID, token) {
		return writeError(c, http.StatusForbidden, "invalid_token", "verification token mismatch", nil)
	}

	switch env.Header.EventType {
	case "im.message.receive_v1":
		var ev larkMessageEvent
		if err := json.Unmarshal(env.Event, &ev); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		go h.processLarkMessage(appID, ev)
	case "card.action.trigger":
		var ev larkCardAction
		if err := json.Unmarshal(env.Event, &ev); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		go h.processCardAction(appID, ev)
	default:
		LogStructured("info", map[string]any{
			"event":      "feishu.webhook.ignored",
			"app_id":     appID,
			"event_type": env.Header.EventType,
		})
	}
	return c.NoContent(http.StatusOK)
}

// larkEncryptKey returns the encrypt key of the application's stored row,
// falling back to the process-wide one.
func (h *Handler) larkEncryptKey(ctx context.Context, appID string) string {
	if app, err := h.db.GetIMApplicationByAppID(ctx, appID); err == nil && app.EncryptKey.Valid && app.EncryptKey.String != "" {
		return app.EncryptKey.String
	}
	return h.cfg.LarkEncryptKey
}

// larkTokenValid checks the envelope token against the application's stored
// verification token, falling back to the process-wide one.
func (h *Handler) larkTokenValid(ctx context.Context, appID, token string) bool {
	expected := h.cfg.LarkVerificationToken
	if app, err := h.db.GetIMApplicationByAppID(ctx, appID); err == nil && app.VerificationToken.Valid && app.VerificationToken.String != "" {
		expected = app.VerificationToken.String
	}
	if expected == "" {
		return true
	}
	return token == expected
}

// processLarkMessage runs off the request goroutine: Lark retries deliveries
// that are not acked quickly.
func (h *Handler) processLarkMessage(appID string, ev larkMessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text := lark.ExtractText(ev.Message.Content)
	for _, m := range ev.Message.Mentions {
		if m.Name == "GitMaya" {
			text = strings.ReplaceAll(text, m.Key, command.MentionBot)
		}
	}

	mctx := command.MessageContext{
		AppID:     appID,
		MessageID: ev.Message.MessageID,
		ChatID:    ev.Message.ChatID,
		OpenID:    ev.Sender.SenderID.OpenID,
		ChatType:  ev.Message.ChatType,
		RootID:    ev.Message.RootID,
		Content:   ev.Message.Content,
	}
	h.dispatchChatText(ctx, text, mctx)
}

// processCardAction turns a card button press into the equivalent command.
func (h *Handler) processCardAction(appID string, ev larkCardAction) {
	text := ev.Action.Value["command"]
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mctx := command.MessageContext{
		AppID:     appID,
		MessageID: ev.Context.OpenMessageID,
		ChatID:    ev.Context.OpenChatID,
		OpenID:    ev.Operator.OpenID,
		RootID:    ev.Context.OpenMessageID,
	}
	h.dispatchChatText(ctx, text, mctx)
}

func (h *Handler) dispatchChatText(ctx context.Context, text string, mctx command.MessageContext) {
	reply, err := h.dispatcher.Dispatch(ctx, text, mctx)
	switch {
	case errors.Is(err, command.ErrNotCommand):
		h.relayCommentFallback(ctx, text, mctx)
		return
	case err != nil:
		LogStructured("error", map[string]any{
			"event":   "feishu.command.failed",
			"chat_id": mctx.ChatID,
			"text":    truncate(text, 120),
			"error":   err.Error(),
		})
		h.replyCard(ctx, mctx, card.Failure("命令执行失败，请稍后重试。"))
		return
	}

	switch reply.Tag {
	case replyCard:
		if s, ok := reply.Data.(string); ok {
			h.replyCard(ctx, mctx, s)
		}
	case replyText:
		if s, ok := reply.Data.(string); ok {
			h.replyText(ctx, mctx, s)
		}
	case replyJobs:
		LogStructured("info", map[string]any{
			"event":   "feishu.command.enqueued",
			"chat_id": mctx.ChatID,
			"jobs":    reply.JobIDs,
		})
	}
}

// relayCommentFallback treats non-command thread replies as comments on the
// bound issue or PR. Plain chatter outside a mapped thread is ignored.
func (h *Handler) relayCommentFallback(ctx context.Context, text string, mctx command.MessageContext) {
	if mctx.RootID == "" || strings.TrimSpace(text) == "" {
		return
	}
	var repoID string
	var number int
	if issue, err := h.db.FindIssueByMessageID(ctx, mctx.RootID); err == nil {
		repoID, number = issue.RepoID, issue.IssueNumber
	} else if pr, err := h.db.FindPullRequestByMessageID(ctx, mctx.RootID); err == nil {
		repoID, number = pr.RepoID, pr.PullRequestNumber
	} else {
		return
	}

	repo, err := h.db.GetRepoByID(ctx, repoID)
	if err != nil {
		return
	}
	codeApp, err := h.db.GetCodeApplicationByID(ctx, repo.CodeApplicationID)
	if err != nil {
		return
	}
	owner, name, _ := strings.Cut(repo.Name, "/")
	if name == "" {
		owner, name = codeApp.OrgName, repo.Name
	}

	body := text
	gc, err := h.userGitHubClient(ctx, mctx.OpenID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && gc == nil) {
		// Unbound sender: comment as the app, attributing inline.
		if h.gh == nil {
			return
		}
		gc, err = h.gh.InstallationClient(ctx, codeApp.InstallationID)
		if err != nil {
			return
		}
		body = "（来自群聊）" + text
	} else if err != nil {
		return
	}
	if err := ghapp.CreateIssueComment(ctx, gc, owner, name, number, body); err != nil {
		LogStructured("error", map[string]any{
			"event": "feishu.comment_relay.failed",
			"repo":  repo.Name,
			"issue": number,
			"error": err.Error(),
		})
	}
}

func (h *Handler) userGitHubClient(ctx context.Context, openID string) (*github.Client, error) {
	_, token, err := h.db.ResolveCodeLogin(ctx, openID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	return ghapp.UserClient(ctx, token), nil
}

func (h *Handler) replyCard(ctx context.Context, mctx command.MessageContext, cardJSON string) {
	msgr := h.messengerForApp(ctx, mctx.AppID)
	if msgr == nil {
		return
	}
	if _, err := msgr.ReplyCard(ctx, mctx.MessageID, cardJSON); err != nil {
		LogStructured("error", map[string]any{
			"event":   "feishu.reply.failed",
			"chat_id": mctx.ChatID,
			"error":   err.Error(),
		})
	}
}

func (h *Handler) replyText(ctx context.Context, mctx command.MessageContext, text string) {
	msgr := h.messengerForApp(ctx, mctx.AppID)
	if msgr == nil {
		return
	}
	if _, err := msgr.ReplyText(ctx, mctx.MessageID, text); err != nil {
		LogStructured("error", map[string]any{
			"event":   "feishu.reply.failed",
			"chat_id": mctx.ChatID,
			"error":   err.Error(),
		})
	}
}

func (h *Handler) messengerForApp(ctx context.Context, appID string) tasks.Messenger {
	app, err := h.db.GetIMApplicationByAppID(ctx, appID)
	if err != nil {
		// Fall back to the process-wide default application.
		if h.cfg.LarkAppID == "" {
			return nil
		}
		return h.messenger(h.cfg.LarkAppID, h.cfg.LarkAppSecret)
	}
	return h.messenger(app.AppID, app.AppSecret)
}

// LarkOAuth binds the Lark identity of the visiting user.
func (h *Handler) LarkOAuth(c echo.Context) error {
	appID := c.Param("app_id")
	code := c.QueryParam("code")
	if code == "" {
		return writeError(c, http.StatusBadRequest, "missing_code", "code query parameter required", nil)
	}
	app, err := h.db.GetIMApplicationByAppID(c.Request().Context(), appID)
	if err != nil {
		return writeError(c, http.StatusNotFound, "app_not_found", "unknown application", nil)
	}
	cli := lark.NewClient(app.AppID, app.AppSecret)
	openID, name, err := cli.ExchangeUserAccessToken(c.Request().Context(), code)
	if err != nil {
		return writeError(c, http.StatusBadGateway, "oauth_exchange_failed", "code exchange failed", nil)
	}
	if name == "" {
		name = openID
	}
	if _, _, err := h.db.EnsureBindUser(c.Request().Context(), store.PlatformLark, openID, name); err != nil {
		return writeError(c, http.StatusInternalServerError, "bind_failed", "storing identity failed", nil)
	}
	LogStructured("info", map[string]any{
		"event":   "feishu.oauth.bound",
		"app_id":  appID,
		"open_id": openID,
	})
	return c.Redirect(http.StatusFound, h.bindRedirect("lark"))
}
