package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MatchBindsPositionals(t *testing.T) {
	cmd, err := Parse("/match https://github.com/Org/Repo my-chat")
	require.NoError(t, err)
	assert.Equal(t, "/match", cmd.Verb)
	assert.Equal(t, "https://github.com/Org/Repo", cmd.Arg("repo_url"))
	assert.Equal(t, "my-chat", cmd.Arg("chat_name"))
	assert.Empty(t, cmd.Unrecognized)
}

func TestParse_MissingTrailingArgsBindEmpty(t *testing.T) {
	cmd, err := Parse("/match")
	require.NoError(t, err)
	assert.Equal(t, "", cmd.Arg("repo_url"))
	assert.Equal(t, "", cmd.Arg("chat_name"))
}

func TestParse_ExcessTokensCollected(t *testing.T) {
	cmd, err := Parse("/close now please")
	require.NoError(t, err)
	assert.Equal(t, "/close", cmd.Verb)
	assert.Equal(t, []string{"now", "please"}, cmd.Unrecognized)
}

func TestParse_UnknownVerb(t *testing.T) {
	_, err := Parse("/frobnicate")
	assert.ErrorIs(t, err, ErrNotCommand)
}

func TestParse_PlainTextIsNotCommand(t *testing.T) {
	for _, text := range []string{"", "   ", "hello world", "close", "看起来不错"} {
		_, err := Parse(text)
		assert.ErrorIs(t, err, ErrNotCommand, "text=%q", text)
	}
}

func TestParse_VerbMustLead(t *testing.T) {
	_, err := Parse("please /close")
	assert.ErrorIs(t, err, ErrNotCommand)
}

func TestParse_ReservedMentionsStripped(t *testing.T) {
	cmd, err := Parse("@_user_1 /close")
	require.NoError(t, err)
	assert.Equal(t, "/close", cmd.Verb)
}

func TestParse_BotMentionVerb(t *testing.T) {
	cmd, err := Parse("@GitMaya 你好")
	require.NoError(t, err)
	assert.Equal(t, MentionBot, cmd.Verb)
}

func TestParse_CaseSensitive(t *testing.T) {
	_, err := Parse("/CLOSE")
	assert.ErrorIs(t, err, ErrNotCommand)
}

func TestDispatcher_RejectsUnknownVerb(t *testing.T) {
	d := NewDispatcher()
	err := d.Register("/bogus", func(ctx context.Context, cmd Command, mctx MessageContext) (Reply, error) {
		return Reply{}, nil
	})
	assert.Error(t, err)
}

func TestDispatcher_NotCommandPropagatesUnwrapped(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), "just chatting", MessageContext{})
	assert.True(t, errors.Is(err, ErrNotCommand))
}

func TestDispatcher_InvokesHandler(t *testing.T) {
	d := NewDispatcher()
	called := false
	require.NoError(t, d.Register("/close", func(ctx context.Context, cmd Command, mctx MessageContext) (Reply, error) {
		called = true
		assert.Equal(t, "chat-1", mctx.ChatID)
		return Reply{JobIDs: []string{"job-1"}}, nil
	}))
	reply, err := d.Dispatch(context.Background(), "/close", MessageContext{ChatID: "chat-1"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []string{"job-1"}, reply.JobIDs)
}
