package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// TeamList returns every team.
func (h *Handler) TeamList(c echo.Context) error {
	teams, err := h.db.ListTeams(c.Request().Context())
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "store_error", "listing teams failed", nil)
	}
	out := make([]map[string]any, 0, len(teams))
	for _, t := range teams {
		item := map[string]any{
			"id":   t.ID,
			"name": t.Name,
		}
		if t.Description.Valid {
			item["description"] = t.Description.String
		}
		out = append(out, item)
	}
	return c.JSON(http.StatusOK, map[string]any{"teams": out})
}

// TeamMembers returns a team's members with their bind status.
func (h *Handler) TeamMembers(c echo.Context) error {
	teamID := c.Param("team_id")
	members, err := h.db.ListTeamMembers(c.Request().Context(), teamID)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "store_error", "listing members failed", nil)
	}
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		item := map[string]any{
			"id":         m.ID,
			"code_bound": m.CodeUserID.Valid,
			"im_bound":   m.IMUserID.Valid,
		}
		if m.CodeUserID.Valid {
			item["code_user_id"] = m.CodeUserID.String
		}
		if m.IMUserID.Valid {
			item["im_user_id"] = m.IMUserID.String
		}
		out = append(out, item)
	}
	return c.JSON(http.StatusOK, map[string]any{"team_id": teamID, "members": out})
}
