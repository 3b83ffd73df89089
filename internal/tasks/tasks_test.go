package tasks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitmaya/internal/events"
	"gitmaya/internal/lark"
	"gitmaya/internal/queue"
	"gitmaya/pkg/config"
)

// fakeMessenger 记录发出的消息，不访问飞书
type fakeMessenger struct {
	sentCards   []string
	replyCards  []string
	replyTexts  []string
	userCards   []string
	updated     []string
	createdName string
}

func (f *fakeMessenger) SendCard(_ context.Context, _, cardJSON string) (string, error) {
	f.sentCards = append(f.sentCards, cardJSON)
	return "om_sent", nil
}

func (f *fakeMessenger) SendCardToUser(_ context.Context, _, cardJSON string) (string, error) {
	f.userCards = append(f.userCards, cardJSON)
	return "om_user", nil
}

func (f *fakeMessenger) ReplyText(_ context.Context, _, text string) (string, error) {
	f.replyTexts = append(f.replyTexts, text)
	return "om_reply", nil
}

func (f *fakeMessenger) ReplyCard(_ context.Context, _, cardJSON string) (string, error) {
	f.replyCards = append(f.replyCards, cardJSON)
	return "om_reply", nil
}

func (f *fakeMessenger) UpdateCard(_ context.Context, messageID, _ string) error {
	f.updated = append(f.updated, messageID)
	return nil
}

func (f *fakeMessenger) CreateChatGroup(_ context.Context, name string, _ []string) (string, error) {
	f.createdName = name
	return "oc_new", nil
}

func (f *fakeMessenger) ListContacts(_ context.Context) ([]lark.Contact, error) {
	return nil, nil
}

func newTestHandler() (*Handler, *fakeMessenger) {
	fm := &fakeMessenger{}
	h := New(config.Config{Domain: "https://gitmaya.example"}, nil, nil, func(_, _ string) Messenger { return fm })
	return h, fm
}

func TestKinds_CoversEveryTaskConstant(t *testing.T) {
	h, _ := newTestHandler()
	got := map[string]bool{}
	for _, k := range h.Kinds() {
		got[k] = true
	}
	want := []string{
		events.TaskRepoCreated, events.TaskIssueOpened, events.TaskIssueUpdated,
		events.TaskCommentCreated, events.TaskPROpened, events.TaskPRUpdated,
		events.TaskPush, events.TaskOrgMemberAdded,
		TaskIssueClose, TaskIssueReopen, TaskIssueEdit, TaskIssueLabel,
		TaskRepoRename, TaskRepoEdit, TaskRepoLink,
		TaskRepoArchive, TaskRepoUnarchive, TaskRepoVisibility,
		TaskUserAccess, TaskChatNew, TaskChatMatch, TaskChatUnbind, TaskContactsSync,
	}
	for _, k := range want {
		assert.Truef(t, got[k], "kind %s not registered", k)
	}
	assert.Len(t, got, len(want))
}

// 未知类型直接确认，避免积压
func TestHandle_UnknownKindAcked(t *testing.T) {
	h, _ := newTestHandler()
	err := h.Handle(context.Background(), queue.Task{ID: "j1", Kind: "no.such.kind", Payload: []byte(`{}`)})
	assert.NoError(t, err)
}

func TestHandle_DecodeErrorReturned(t *testing.T) {
	h, _ := newTestHandler()
	err := h.Handle(context.Background(), queue.Task{ID: "j2", Kind: events.TaskIssueOpened, Payload: []byte(`{broken`)})
	assert.Error(t, err)
}

// 存储不可用时返回错误，让队列按重试策略重投
func TestHandle_StoreUnavailableRetried(t *testing.T) {
	h, fm := newTestHandler()
	ev := events.IssuesEvent{Action: "opened"}
	ev.Issue.Number = 12
	ev.Issue.Title = "demo"
	ev.Repository.ID = 5
	ev.Repository.FullName = "org/demo"
	ev.Sender.Login = "alice"
	ev.Installation.ID = 42
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	assert.Error(t, h.Handle(context.Background(), queue.Task{ID: "j3", Kind: events.TaskIssueOpened, Payload: raw}))
	assert.Empty(t, fm.sentCards)
}

// 只配置了 LARK_APP_ID、未在库里注册应用的单租户部署，命令也必须给出回执
func TestHandle_CommandFallsBackToConfiguredApp(t *testing.T) {
	fm := &fakeMessenger{}
	h := New(config.Config{
		Domain:        "https://gitmaya.example",
		LarkAppID:     "cli_fallback",
		LarkAppSecret: "s",
	}, nil, nil, func(_, _ string) Messenger { return fm })

	raw, err := json.Marshal(CommandPayload{
		AppID:     "cli_fallback",
		ChatID:    "oc_1",
		OpenID:    "ou_1",
		MessageID: "om_1",
		Args:      map[string]string{},
	})
	require.NoError(t, err)

	assert.NoError(t, h.Handle(context.Background(), queue.Task{ID: "j4", Kind: TaskChatMatch, Payload: raw}))
	require.Len(t, fm.replyCards, 1)
	assert.Contains(t, fm.replyCards[0], "/match")
}

func TestCommandPayload_RoundTripsArgs(t *testing.T) {
	p := CommandPayload{
		AppID:     "cli_x",
		ChatID:    "oc_1",
		OpenID:    "ou_1",
		MessageID: "om_1",
		Args:      map[string]string{"repo_url": "https://github.com/org/demo"},
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var back CommandPayload
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, p, back)
}
