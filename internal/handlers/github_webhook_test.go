package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitmaya/pkg/config"
)

const testWebhookSecret = "test-secret"

func newWebhookTestHandler() *Handler {
	return NewHandler(config.Config{GitHubWebhookSecret: testWebhookSecret}, nil, nil, nil, nil)
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, h *Handler, event, delivery, sig string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/github/hook", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", delivery)
	if sig != "" {
		req.Header.Set("X-Hub-Signature-256", sig)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.GitHubWebhook(c))
	return rec
}

// 签名不匹配必须在任何路由逻辑之前被拒绝
func TestGitHubWebhook_BadSignatureRejectedFirst(t *testing.T) {
	h := newWebhookTestHandler()
	body := []byte(`{"action":"opened"}`)

	rec := postWebhook(t, h, "issues", "d-1", "sha256=deadbeef", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Missing signature counts as a mismatch too.
	rec = postWebhook(t, h, "issues", "d-2", "", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGitHubWebhook_UnknownEventAcked(t *testing.T) {
	h := newWebhookTestHandler()
	body := []byte(`{"zen":"Keep it logically awesome."}`)
	rec := postWebhook(t, h, "ping", "d-3", signBody(body), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["status"])
}

func TestGitHubWebhook_UnhandledActionAcked(t *testing.T) {
	h := newWebhookTestHandler()
	body, _ := json.Marshal(map[string]any{
		"action":       "deleted",
		"repository":   map[string]any{"id": 10, "name": "repo", "full_name": "org/repo", "owner": map[string]any{"id": 3, "login": "org"}},
		"sender":       map[string]any{"id": 2, "login": "alice"},
		"installation": map[string]any{"id": 99},
	})
	rec := postWebhook(t, h, "repository", "d-4", signBody(body), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["status"])
}

func TestGitHubWebhook_MalformedPayloadRejected(t *testing.T) {
	h := newWebhookTestHandler()
	body := []byte(`{"action":"opened"}`) // fails issues schema validation
	rec := postWebhook(t, h, "issues", "d-5", signBody(body), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// 同一 delivery id 的重复投递直接确认为 duplicate
func TestGitHubWebhook_DuplicateDelivery(t *testing.T) {
	h := newWebhookTestHandler()
	body := []byte(`{"zen":"again"}`)
	sig := signBody(body)

	rec := postWebhook(t, h, "ping", "d-6", sig, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhook(t, h, "ping", "d-6", sig, body)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp["status"])
}

// 签名通过且事件可路由时，请求走到入队这一步（测试环境无队列 → 503）
func TestGitHubWebhook_RoutableEventReachesEnqueue(t *testing.T) {
	h := newWebhookTestHandler()
	body, _ := json.Marshal(map[string]any{
		"action":       "opened",
		"issue":        map[string]any{"id": 1, "number": 7, "title": "t", "state": "open", "user": map[string]any{"id": 2, "login": "alice"}},
		"repository":   map[string]any{"id": 10, "name": "repo", "full_name": "org/repo", "owner": map[string]any{"id": 3, "login": "org"}},
		"sender":       map[string]any{"id": 2, "login": "alice"},
		"installation": map[string]any{"id": 99},
	})
	rec := postWebhook(t, h, "issues", "d-7", signBody(body), body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
