package ghapp

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// requestTimeout is the fixed timeout for every GitHub API call.
const requestTimeout = 10 * time.Second

// App issues GitHub REST calls on behalf of a GitHub App: app-level calls are
// authenticated with a short-lived RS256 JWT, per-installation calls with an
// exchanged installation token, and user-attributed calls with the user's
// OAuth token.
type App struct {
	appID      string
	privateKey *rsa.PrivateKey
	cache      *TokenCache
}

func New(appID, privateKeyPEM string, cache *TokenCache) (*App, error) {
	if appID == "" {
		return nil, fmt.Errorf("github app id required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse github app private key: %w", err)
	}
	return &App{appID: appID, privateKey: key, cache: cache}, nil
}

// appJWT mints the App-level JWT: 60s clock-skew backdate, 9 minute validity
// (GitHub rejects anything over 10).
func (a *App) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    a.appID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
}

func httpClientFor(ctx context.Context, token string) *http.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = requestTimeout
	return hc
}

// appClient is authenticated as the App itself (JWT), for installation-token
// exchange and app metadata calls.
func (a *App) appClient(ctx context.Context) (*github.Client, error) {
	token, err := a.appJWT()
	if err != nil {
		return nil, err
	}
	return github.NewClient(httpClientFor(ctx, token)), nil
}

// InstallationToken exchanges (and caches) an installation access token.
func (a *App) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	key := fmt.Sprintf("ghapp:inst:%d", installationID)
	if tok, ok := a.cache.Get(ctx, key); ok {
		return tok, nil
	}
	gc, err := a.appClient(ctx)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	tok, _, err := gc.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("create installation token: %w", err)
	}
	a.cache.Set(ctx, key, tok.GetToken(), tok.GetExpiresAt().Time)
	return tok.GetToken(), nil
}

// InstallationClient returns a REST client scoped to one installation.
func (a *App) InstallationClient(ctx context.Context, installationID int64) (*github.Client, error) {
	token, err := a.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return github.NewClient(httpClientFor(ctx, token)), nil
}

// UserClient returns a REST client authenticated with a user OAuth token, for
// actions that should be attributed to the user rather than the bot.
func UserClient(ctx context.Context, token string) *github.Client {
	return github.NewClient(httpClientFor(ctx, token))
}

// InstallURL is the GitHub App installation page for this app's slug.
func InstallURL(appSlug string) string {
	return "https://github.com/apps/" + appSlug + "/installations/new"
}
