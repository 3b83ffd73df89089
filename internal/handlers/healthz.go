package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"gitmaya/internal/version"
)

func (h *Handler) Healthz(c echo.Context) error {
	dbStatus := "not_connected"
	if h.db != nil && h.db.SQL != nil {
		dbStatus = statusForHealth(h.db.Ping(c.Request().Context()))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"time":    time.Now().Format(time.RFC3339),
		"db":      dbStatus,
	})
}
