package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"gitmaya/internal/ghapp"
	"gitmaya/internal/store"
)

// GitHubInstall redirects to the GitHub App installation page.
func (h *Handler) GitHubInstall(c echo.Context) error {
	if h.cfg.GitHubAppName == "" {
		return writeError(c, http.StatusNotFound, "app_not_configured", "GITHUB_APP_NAME not set", nil)
	}
	return c.Redirect(http.StatusFound, ghapp.InstallURL(h.cfg.GitHubAppName))
}

// GitHubOAuth exchanges the authorization code for a user token and binds the
// GitHub identity. When state carries a Lark open_id the two identities are
// joined onto one internal user.
func (h *Handler) GitHubOAuth(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return writeError(c, http.StatusBadRequest, "missing_code", "code query parameter required", nil)
	}
	conf := &oauth2.Config{
		ClientID:     h.cfg.GitHubClientID,
		ClientSecret: h.cfg.GitHubClientSecret,
		Endpoint:     githuboauth.Endpoint,
	}
	token, err := conf.Exchange(c.Request().Context(), code)
	if err != nil {
		return writeError(c, http.StatusBadGateway, "oauth_exchange_failed", "code exchange failed", nil)
	}

	gc := ghapp.UserClient(c.Request().Context(), token.AccessToken)
	user, _, err := gc.Users.Get(c.Request().Context(), "")
	if err != nil || user.GetLogin() == "" {
		return writeError(c, http.StatusBadGateway, "oauth_user_failed", "fetching authorized user failed", nil)
	}
	login := user.GetLogin()

	bind, _, err := h.db.EnsureBindUser(c.Request().Context(), store.PlatformGitHub, login, login)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "bind_failed", "storing identity failed", nil)
	}
	if err := h.db.SetBindUserToken(c.Request().Context(), store.PlatformGitHub, login, token.AccessToken); err != nil {
		return writeError(c, http.StatusInternalServerError, "bind_failed", "storing token failed", nil)
	}
	if openID := c.QueryParam("state"); openID != "" {
		if err := h.db.LinkBindUser(c.Request().Context(), bind.UserID, store.PlatformLark, openID); err != nil {
			return writeError(c, http.StatusInternalServerError, "bind_failed", "linking chat identity failed", nil)
		}
		// Fill in the chat side of any team member rows created from
		// member_added webhooks. Best effort, the identity join above already
		// makes commands work.
		if larkBind, err := h.db.GetBindUser(c.Request().Context(), store.PlatformLark, openID); err == nil {
			if err := h.db.BindTeamMemberIM(c.Request().Context(), bind.ID, larkBind.ID); err != nil {
				LogStructured("error", map[string]any{
					"event": "github.oauth.team_bind",
					"login": login,
					"error": err.Error(),
				})
			}
		}
	}
	LogStructured("info", map[string]any{
		"event": "github.oauth.bound",
		"login": login,
	})
	return c.Redirect(http.StatusFound, h.bindRedirect("github"))
}
