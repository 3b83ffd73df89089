package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DatabaseURL string
	NATSURL     string
	RedisURL    string
	Domain      string
	FrontendURL string

	// GitHub App
	GitHubAppName           string
	GitHubAppID             string
	GitHubAppPrivateKey     string
	GitHubAppPrivateKeyPath string
	GitHubClientID          string
	GitHubClientSecret      string
	GitHubWebhookSecret     string

	// Feishu (Lark) default tenant app; per-team apps live in im_applications
	LarkAppID             string
	LarkAppSecret         string
	LarkEncryptKey        string
	LarkVerificationToken string

	// Background jobs
	ContactSyncInterval time.Duration
}

func FromEnv() Config {
	// Optional .env for local development; deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Port:        intFromEnv("PORT", 8080),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		NATSURL:     strFromEnv("NATS_URL", "nats://127.0.0.1:4222"),
		RedisURL:    os.Getenv("REDIS_URL"),
		Domain:      strFromEnv("DOMAIN", "http://localhost:8080"),
		FrontendURL: os.Getenv("FRONTEND_BASE_URL"),

		GitHubAppName:           os.Getenv("GITHUB_APP_NAME"),
		GitHubAppID:             os.Getenv("GITHUB_APP_ID"),
		GitHubAppPrivateKey:     os.Getenv("GITHUB_APP_PRIVATE_KEY"),
		GitHubAppPrivateKeyPath: os.Getenv("GITHUB_APP_PRIVATE_KEY_PATH"),
		GitHubClientID:          os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret:      os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubWebhookSecret:     os.Getenv("GITHUB_WEBHOOK_SECRET"),

		LarkAppID:             os.Getenv("LARK_APP_ID"),
		LarkAppSecret:         os.Getenv("LARK_APP_SECRET"),
		LarkEncryptKey:        os.Getenv("LARK_ENCRYPT_KEY"),
		LarkVerificationToken: os.Getenv("LARK_VERIFICATION_TOKEN"),

		ContactSyncInterval: durationFromEnv("CONTACT_SYNC_INTERVAL", time.Minute),
	}
	return cfg
}

// AppPrivateKey returns the GitHub App private key PEM, reading the key file
// when only a path is configured.
func (c Config) AppPrivateKey() (string, error) {
	if c.GitHubAppPrivateKey != "" {
		return c.GitHubAppPrivateKey, nil
	}
	if c.GitHubAppPrivateKeyPath == "" {
		return "", fmt.Errorf("GITHUB_APP_PRIVATE_KEY or GITHUB_APP_PRIVATE_KEY_PATH required")
	}
	b, err := os.ReadFile(c.GitHubAppPrivateKeyPath)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func intFromEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func strFromEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}
