package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("DOMAIN", "")
	t.Setenv("CONTACT_SYNC_INTERVAL", "")

	cfg := FromEnv()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, "http://localhost:8080", cfg.Domain)
	assert.Equal(t, time.Minute, cfg.ContactSyncInterval)
	assert.Equal(t, ":8080", cfg.Address())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CONTACT_SYNC_INTERVAL", "5m")
	t.Setenv("GITHUB_APP_NAME", "gitmaya-app")

	cfg := FromEnv()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.ContactSyncInterval)
	assert.Equal(t, "gitmaya-app", cfg.GitHubAppName)
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("CONTACT_SYNC_INTERVAL", "-2m")

	cfg := FromEnv()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Minute, cfg.ContactSyncInterval)
}

func TestAppPrivateKey_InlineWins(t *testing.T) {
	c := Config{GitHubAppPrivateKey: "pem-data", GitHubAppPrivateKeyPath: "/nonexistent"}
	pem, err := c.AppPrivateKey()
	assert.NoError(t, err)
	assert.Equal(t, "pem-data", pem)

	_, err = Config{}.AppPrivateKey()
	assert.Error(t, err)
}
