// Package tasks executes queued work: mirroring GitHub webhook events into
// chat cards, running chat-command mutations against GitHub, and the periodic
// contact sweep. Handlers are idempotent so queue redelivery is safe.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gitmaya/internal/events"
	"gitmaya/internal/ghapp"
	"gitmaya/internal/lark"
	"gitmaya/internal/logx"
	"gitmaya/internal/queue"
	"gitmaya/internal/store"
	"gitmaya/pkg/config"
)

// Command task kinds, enqueued by the chat-command dispatcher. Webhook task
// kinds live in the events package next to the router that emits them.
const (
	TaskIssueClose     = "issue.close"
	TaskIssueReopen    = "issue.reopen"
	TaskIssueEdit      = "issue.edit"
	TaskIssueLabel     = "issue.label"
	TaskRepoRename     = "repo.rename"
	TaskRepoEdit       = "repo.edit"
	TaskRepoLink       = "repo.link"
	TaskRepoArchive    = "repo.archive"
	TaskRepoUnarchive  = "repo.unarchive"
	TaskRepoVisibility = "repo.visit"
	TaskUserAccess     = "user.access"
	TaskChatNew        = "chat.new"
	TaskChatMatch      = "chat.match"
	TaskChatUnbind     = "chat.unbind"
	TaskContactsSync   = "contacts.sync"
)

// ErrNoBoundIdentity reports a mutating command from a chat user who never
// bound a GitHub account. The task replies with a bind prompt instead of
// failing.
var ErrNoBoundIdentity = errors.New("no bound github identity")

// Messenger is the slice of the Lark client the task handlers use. The
// concrete *lark.Client satisfies it; tests substitute a recorder.
type Messenger interface {
	SendCard(ctx context.Context, chatID, cardJSON string) (string, error)
	SendCardToUser(ctx context.Context, openID, cardJSON string) (string, error)
	ReplyText(ctx context.Context, rootMessageID, text string) (string, error)
	ReplyCard(ctx context.Context, rootMessageID, cardJSON string) (string, error)
	UpdateCard(ctx context.Context, messageID, cardJSON string) error
	CreateChatGroup(ctx context.Context, name string, openIDs []string) (string, error)
	ListContacts(ctx context.Context) ([]lark.Contact, error)
}

// MessengerFactory builds a Messenger for one bot application's credentials.
type MessengerFactory func(appID, appSecret string) Messenger

// Handler owns the task dispatch table and the collaborators every task
// shares.
type Handler struct {
	cfg       config.Config
	db        *store.DB
	gh        *ghapp.App
	messenger MessengerFactory

	table map[string]func(ctx context.Context, payload json.RawMessage) error
}

// New wires the dispatch table. A nil factory falls back to real Lark clients.
func New(cfg config.Config, db *store.DB, gh *ghapp.App, factory MessengerFactory) *Handler {
	if factory == nil {
		factory = func(appID, appSecret string) Messenger {
			return lark.NewClient(appID, appSecret)
		}
	}
	h := &Handler{cfg: cfg, db: db, gh: gh, messenger: factory}
	h.table = map[string]func(context.Context, json.RawMessage) error{
		events.TaskRepoCreated: func(ctx context.Context, raw json.RawMessage) error {
			var ev events.RepositoryEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", events.TaskRepoCreated, err)
			}
			return h.repoCreated(ctx, ev)
		},
		events.TaskIssueOpened: func(ctx context.Context, raw json.RawMessage) error {
			var ev events.IssuesEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", events.TaskIssueOpened, err)
			}
			return h.issueOpened(ctx, ev)
		},
		events.TaskIssueUpdated: func(ctx context.Context, raw json.RawMessage) error {
			var ev events.IssuesEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", events.TaskIssueUpdated, err)
			}
			return h.issueUpdated(ctx, ev)
		},
		events.TaskCommentCreated: func(ctx context.Context, raw json.RawMessage) error {
			var ev events.IssueCommentEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", events.TaskCommentCreated, err)
			}
			return h.commentCreated(ctx, ev)
		},
		events.TaskPROpened: func(ctx context.Context, raw json.RawMessage) error {
			var ev events.PullRequestEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", events.TaskPROpened, err)
			}
			return h.pullRequestOpened(ctx, ev)
		},
		events.TaskPRUpdated: func(ctx context.Context, raw json.RawMessage) error {
			var ev events.PullRequestEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", events.TaskPRUpdated, err)
			}
			return h.pullRequestUpdated(ctx, ev)
		},
		events.TaskPush: func(ctx context.Context, raw json.RawMessage) error {
			var ev events.PushEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", events.TaskPush, err)
			}
			return h.push(ctx, ev)
		},
		events.TaskOrgMemberAdded: func(ctx context.Context, raw json.RawMessage) error {
			var ev events.OrganizationEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", events.TaskOrgMemberAdded, err)
			}
			return h.orgMemberAdded(ctx, ev)
		},

		TaskIssueClose:     h.commandTask(h.issueClose),
		TaskIssueReopen:    h.commandTask(h.issueReopen),
		TaskIssueEdit:      h.commandTask(h.issueEdit),
		TaskIssueLabel:     h.commandTask(h.issueLabel),
		TaskRepoRename:     h.commandTask(h.repoRename),
		TaskRepoEdit:       h.commandTask(h.repoEdit),
		TaskRepoLink:       h.commandTask(h.repoLink),
		TaskRepoArchive:    h.commandTask(h.repoArchive),
		TaskRepoUnarchive:  h.commandTask(h.repoUnarchive),
		TaskRepoVisibility: h.commandTask(h.repoVisibility),
		TaskUserAccess:     h.commandTask(h.userAccess),
		TaskChatNew:        h.commandTask(h.chatNew),
		TaskChatMatch:      h.commandTask(h.chatMatch),
		TaskChatUnbind:     h.commandTask(h.chatUnbind),

		TaskContactsSync: func(ctx context.Context, raw json.RawMessage) error {
			var p ContactsSyncPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("decode %s: %w", TaskContactsSync, err)
			}
			return h.contactsSync(ctx, p)
		},
	}
	return h
}

// Kinds lists every task kind the handler serves.
func (h *Handler) Kinds() []string {
	out := make([]string, 0, len(h.table))
	for k := range h.table {
		out = append(out, k)
	}
	return out
}

// Handle executes one queued task. Unknown kinds are logged and acked so a
// stale producer cannot wedge the queue.
func (h *Handler) Handle(ctx context.Context, t queue.Task) error {
	fn, ok := h.table[t.Kind]
	if !ok {
		logx.Structured("warn", map[string]any{
			"event": "task.unknown_kind",
			"kind":  t.Kind,
			"id":    t.ID,
		})
		return nil
	}
	if err := fn(ctx, t.Payload); err != nil {
		logx.Structured("error", map[string]any{
			"event": "task.failed",
			"kind":  t.Kind,
			"id":    t.ID,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

func (h *Handler) commandTask(fn func(ctx context.Context, p CommandPayload) error) func(context.Context, json.RawMessage) error {
	return func(ctx context.Context, raw json.RawMessage) error {
		var p CommandPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode command payload: %w", err)
		}
		return fn(ctx, p)
	}
}

// CommandPayload is what the chat-command dispatcher enqueues for mutating
// verbs: where the command was issued and its bound arguments.
type CommandPayload struct {
	AppID     string            `json:"app_id"` // lark app_id of the receiving bot
	ChatID    string            `json:"chat_id"`
	OpenID    string            `json:"open_id"` // sender
	MessageID string            `json:"message_id"`
	RootID    string            `json:"root_id,omitempty"` // thread root, when replying under a card
	Args      map[string]string `json:"args,omitempty"`
}

// ContactsSyncPayload names the bot application whose directory to refresh.
type ContactsSyncPayload struct {
	IMApplicationID string `json:"im_application_id"`
}

func (h *Handler) messengerForApp(ctx context.Context, appID string) (*store.IMApplication, Messenger, error) {
	app, err := h.db.GetIMApplicationByAppID(ctx, appID)
	if err != nil {
		// Fall back to the process-wide default application, matching the
		// ingress side. A command must still produce a tip in a config-only
		// single-tenant deployment.
		if h.cfg.LarkAppID == "" {
			return nil, nil, err
		}
		app = &store.IMApplication{AppID: h.cfg.LarkAppID, AppSecret: h.cfg.LarkAppSecret}
	}
	return app, h.messenger(app.AppID, app.AppSecret), nil
}

func githubURL(fullName string) string {
	return "https://github.com/" + fullName
}

func issueURL(fullName string, number int) string {
	return fmt.Sprintf("https://github.com/%s/issues/%d", fullName, number)
}

func pullURL(fullName string, number int) string {
	return fmt.Sprintf("https://github.com/%s/pull/%d", fullName, number)
}
