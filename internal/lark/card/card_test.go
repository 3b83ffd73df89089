package card

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decode 解析卡片 JSON 并取出 header 模板色
func decode(t *testing.T, raw string) (map[string]any, string) {
	t.Helper()
	var card map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &card))
	require.Equal(t, "2.0", card["schema"])
	header, ok := card["header"].(map[string]any)
	require.True(t, ok)
	color, _ := header["template"].(string)
	return card, color
}

func TestIssueCard_StateDrivesColor(t *testing.T) {
	_, color := decode(t, Issue("org/demo", 7, "fix it", "", "alice", "open", "https://github.com/org/demo/issues/7"))
	assert.Equal(t, "blue", color)

	_, color = decode(t, Issue("org/demo", 7, "fix it", "", "alice", "closed", "https://github.com/org/demo/issues/7"))
	assert.Equal(t, "red", color)
}

func TestPullRequestCard_MergedIsPurple(t *testing.T) {
	raw := PullRequest("org/demo", 3, "feature", "body", "bob", "merged", "feat/x", "https://github.com/org/demo/pull/3")
	_, color := decode(t, raw)
	assert.Equal(t, "purple", color)
	assert.Contains(t, raw, "feat/x")
	assert.Contains(t, raw, "bob")
}

func TestIssueCard_LongBodyTruncated(t *testing.T) {
	body := strings.Repeat("x", 2000)
	raw := Issue("org/demo", 1, "t", body, "alice", "open", "https://github.com/org/demo/issues/1")
	assert.Less(t, len(raw), 1500)
	assert.Contains(t, raw, "...")
}

func TestPushSummary_ShortSHAAndFirstLine(t *testing.T) {
	raw := PushSummary("main", []CommitLine{
		{SHA: "0123456789abcdef", Message: "first line\nsecond line", Author: "alice"},
	})
	assert.Contains(t, raw, "01234567")
	assert.NotContains(t, raw, "0123456789abcdef")
	assert.Contains(t, raw, "first line")
	assert.NotContains(t, raw, "second line")
}

func TestBindPrompt_CarriesOAuthURL(t *testing.T) {
	url := "https://gitmaya.example/api/github/install"
	raw := BindPrompt(url)
	card, color := decode(t, raw)
	assert.Equal(t, "orange", color)
	assert.Contains(t, raw, url)
	_, hasBody := card["body"]
	assert.True(t, hasBody)
}

func TestManual_FallsBackToFullHelp(t *testing.T) {
	known := Manual("match")
	assert.Contains(t, known, "/match")

	unknown := Manual("/definitely-not-a-verb")
	full := Help()
	assert.Equal(t, full, unknown)
}
