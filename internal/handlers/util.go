package handlers

import (
	"github.com/labstack/echo/v4"

	"gitmaya/internal/logx"
)

// truncate returns at most n bytes of s (best-effort, not rune-safe, for logs only).
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// writeError writes a unified error response and logs a structured entry.
func writeError(c echo.Context, status int, code, message string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	reqID := c.Response().Header().Get(echo.HeaderXRequestID)
	if reqID == "" {
		reqID = c.Request().Header.Get(echo.HeaderXRequestID)
	}
	ep := c.Path()
	if ep == "" {
		ep = c.Request().URL.Path
	}
	logx.Structured("error", map[string]any{
		"request_id": reqID,
		"endpoint":   ep,
		"source":     DetectSource(ep),
		"status":     status,
		"result":     "error",
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"code":       code,
			"message":    message,
			"details":    details,
			"request_id": reqID,
		},
	})
}

func statusForHealth(err error) string {
	if err != nil {
		return "not_connected"
	}
	return "connected"
}
