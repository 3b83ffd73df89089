package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"gitmaya/internal/store"
)

// Account reports the bound identities of one chat user (?open_id=).
func (h *Handler) Account(c echo.Context) error {
	openID := c.QueryParam("open_id")
	if openID == "" {
		return writeError(c, http.StatusBadRequest, "missing_open_id", "open_id query parameter required", nil)
	}
	resp := map[string]any{"open_id": openID, "lark_bound": false, "github_bound": false}

	if _, err := h.db.GetBindUser(c.Request().Context(), store.PlatformLark, openID); err == nil {
		resp["lark_bound"] = true
	} else if !errors.Is(err, sql.ErrNoRows) {
		return writeError(c, http.StatusInternalServerError, "store_error", "identity lookup failed", nil)
	}

	login, _, err := h.db.ResolveCodeLogin(c.Request().Context(), openID)
	if err == nil {
		resp["github_bound"] = true
		resp["github_login"] = login
	} else if !errors.Is(err, sql.ErrNoRows) {
		return writeError(c, http.StatusInternalServerError, "store_error", "identity lookup failed", nil)
	}
	return c.JSON(http.StatusOK, resp)
}
