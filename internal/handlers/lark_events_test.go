package handlers

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitmaya/pkg/config"
)

// encryptLarkBody wraps an event body the way the platform delivers it when an
// encrypt key is configured: AES-256-CBC over the PKCS#7-padded JSON, key =
// SHA256(encrypt key), random IV prepended, base64, then an {"encrypt":...}
// envelope.
func encryptLarkBody(t *testing.T, encryptKey, body string) string {
	t.Helper()
	plain := []byte(body)
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+pad)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	key := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	buf := make([]byte, aes.BlockSize+len(padded))
	_, err = rand.Read(buf[:aes.BlockSize])
	require.NoError(t, err)
	cipher.NewCBCEncrypter(block, buf[:aes.BlockSize]).CryptBlocks(buf[aes.BlockSize:], padded)

	env, err := json.Marshal(map[string]string{"encrypt": base64.StdEncoding.EncodeToString(buf)})
	require.NoError(t, err)
	return string(env)
}

func postLarkHook(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/feishu/hook/cli_test", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("app_id")
	c.SetParamValues("cli_test")
	require.NoError(t, h.LarkHook(c))
	return rec
}

// url_verification 握手必须原样回显 challenge
func TestLarkHook_ChallengeEcho(t *testing.T) {
	h := NewHandler(config.Config{LarkVerificationToken: "vt"}, nil, nil, nil, nil)
	rec := postLarkHook(t, h, `{"challenge":"abc123","type":"url_verification","token":"whatever"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp["challenge"])
}

func TestLarkHook_TokenMismatch(t *testing.T) {
	h := NewHandler(config.Config{LarkVerificationToken: "vt"}, nil, nil, nil, nil)
	body := `{"header":{"event_id":"e1","event_type":"im.message.receive_v1","token":"wrong"},"event":{}}`
	rec := postLarkHook(t, h, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLarkHook_TokenAcceptedV1Field(t *testing.T) {
	// 老版 schema 把 token 放在顶层
	h := NewHandler(config.Config{LarkVerificationToken: "vt"}, nil, nil, nil, nil)
	body := `{"token":"vt","header":{"event_id":"e2","event_type":"contact.user.updated_v3"},"event":{}}`
	rec := postLarkHook(t, h, body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLarkHook_NoConfiguredTokenAcceptsAll(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	body := `{"header":{"event_id":"e3","event_type":"contact.user.updated_v3","token":""},"event":{}}`
	rec := postLarkHook(t, h, body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// 配置了 encrypt key 时平台会加密整个事件体，握手也一样
func TestLarkHook_EncryptedChallenge(t *testing.T) {
	h := NewHandler(config.Config{LarkEncryptKey: "ek"}, nil, nil, nil, nil)
	body := encryptLarkBody(t, "ek", `{"challenge":"enc-ch","type":"url_verification","token":"vt"}`)
	rec := postLarkHook(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "enc-ch", resp["challenge"])
}

func TestLarkHook_EncryptedWithoutKey(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	rec := postLarkHook(t, h, encryptLarkBody(t, "someone-elses-key", `{"challenge":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLarkHook_EncryptedWrongKeyRejected(t *testing.T) {
	h := NewHandler(config.Config{LarkEncryptKey: "local-key"}, nil, nil, nil, nil)
	rec := postLarkHook(t, h, encryptLarkBody(t, "remote-key", `{"challenge":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLarkHook_BadJSON(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	rec := postLarkHook(t, h, `{"header":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
