package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GET /
// If FRONTEND_BASE_URL is set, redirect to it; otherwise return 404 JSON
func (h *Handler) Root(c echo.Context) error {
	if h.cfg.FrontendURL != "" {
		return c.Redirect(http.StatusFound, h.cfg.FrontendURL)
	}
	return c.JSON(http.StatusNotFound, map[string]any{"message": "Not Found"})
}

// bindRedirect is where OAuth callbacks land the user after binding.
func (h *Handler) bindRedirect(platform string) string {
	base := h.cfg.FrontendURL
	if base == "" {
		base = h.cfg.Domain
	}
	return base + "/?bind=" + platform
}
