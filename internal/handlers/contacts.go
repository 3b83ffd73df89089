package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Contacts returns the cached contact list of one bot application, as last
// refreshed by the periodic contact sweep.
func (h *Handler) Contacts(c echo.Context) error {
	appID := c.QueryParam("app_id")
	if appID == "" {
		return writeError(c, http.StatusBadRequest, "missing_app_id", "app_id query parameter required", nil)
	}
	app, err := h.db.GetIMApplicationByAppID(c.Request().Context(), appID)
	if errors.Is(err, sql.ErrNoRows) {
		return writeError(c, http.StatusNotFound, "unknown_app", "no application registered for "+appID, nil)
	}
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "store_error", "application lookup failed", nil)
	}
	contacts, err := h.db.ListLarkContacts(c.Request().Context(), app.ID)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "store_error", "listing contacts failed", nil)
	}
	out := make([]map[string]any, 0, len(contacts))
	for _, ct := range contacts {
		item := map[string]any{
			"open_id": ct.OpenID,
			"name":    ct.Name,
		}
		if ct.EnName.Valid && ct.EnName.String != "" {
			item["en_name"] = ct.EnName.String
		}
		if ct.Avatar.Valid && ct.Avatar.String != "" {
			item["avatar"] = ct.Avatar.String
		}
		out = append(out, item)
	}
	return c.JSON(http.StatusOK, map[string]any{"app_id": appID, "contacts": out})
}
