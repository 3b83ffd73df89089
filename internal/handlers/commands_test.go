package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitmaya/internal/command"
	"gitmaya/internal/lark/card"
	"gitmaya/pkg/config"
)

func dispatch(t *testing.T, h *Handler, text string, mctx command.MessageContext) (command.Reply, error) {
	t.Helper()
	return h.dispatcher.Dispatch(context.Background(), text, mctx)
}

func TestDispatcher_HelpRepliesWithManualCard(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	reply, err := dispatch(t, h, "/help", command.MessageContext{ChatID: "oc_1"})
	require.NoError(t, err)
	assert.Equal(t, replyCard, reply.Tag)
	assert.Equal(t, card.Help(), reply.Data)
}

func TestDispatcher_ManSingleCommand(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	reply, err := dispatch(t, h, "/man match", command.MessageContext{})
	require.NoError(t, err)
	assert.Equal(t, replyCard, reply.Tag)
	assert.Contains(t, reply.Data.(string), "/match")
}

func TestDispatcher_MentionRepliesWithText(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	reply, err := dispatch(t, h, "@GitMaya 你好", command.MessageContext{})
	require.NoError(t, err)
	assert.Equal(t, replyText, reply.Tag)
}

// /view 不在回复串里发出时提示未找到
func TestDispatcher_ViewOutsideThreadNotFound(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	reply, err := dispatch(t, h, "/view", command.MessageContext{ChatID: "oc_1"})
	require.NoError(t, err)
	assert.Equal(t, replyCard, reply.Tag)
	assert.Contains(t, reply.Data.(string), "未找到")
}

// 队列未连接时变更类命令返回错误而非静默丢弃
func TestDispatcher_MutatingVerbNeedsQueue(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	_, err := dispatch(t, h, "/close", command.MessageContext{ChatID: "oc_1", RootID: "om_1"})
	assert.Error(t, err)
}

// /unbind 与其它变更类命令一样入队执行
func TestDispatcher_UnbindEnqueues(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	_, err := dispatch(t, h, "/unbind", command.MessageContext{ChatID: "oc_1"})
	// 未连接队列时同样报错，说明 verb 已注册且走入队路径
	assert.Error(t, err)
	assert.NotErrorIs(t, err, command.ErrNotCommand)
}

func TestDispatcher_PlainTextIsNotCommand(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	_, err := dispatch(t, h, "这不是命令", command.MessageContext{})
	assert.ErrorIs(t, err, command.ErrNotCommand)
}
