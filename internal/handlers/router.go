package handlers

import (
	"github.com/labstack/echo/v4"

	"gitmaya/internal/ghapp"
	"gitmaya/internal/queue"
	"gitmaya/internal/store"
	"gitmaya/pkg/config"
)

func RegisterRoutes(e *echo.Echo, cfg config.Config, db *store.DB, pub *queue.Publisher, gh *ghapp.App) *Handler {
	h := NewHandler(cfg, db, pub, gh, nil)

	// Health
	e.GET("/healthz", h.Healthz)
	e.GET("/", h.Root)

	// GitHub App: webhook ingress, install entry, identity bind
	e.POST("/api/github/hook", h.GitHubWebhook)
	e.GET("/api/github/install", h.GitHubInstall)
	e.GET("/api/github/oauth", h.GitHubOAuth)

	// Feishu (Lark): per-application event ingress and identity bind
	e.POST("/api/feishu/hook/:app_id", h.LarkHook)
	e.GET("/api/feishu/oauth/:app_id", h.LarkOAuth)

	// Read APIs
	e.GET("/api/team", h.TeamList)
	e.GET("/api/team/:team_id/member", h.TeamMembers)
	e.GET("/api/account", h.Account)
	e.GET("/api/contact", h.Contacts)

	return h
}
